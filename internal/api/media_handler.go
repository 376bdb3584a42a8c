package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// getMedia proxies a remote media URL. It returns 200 for every well-formed
// request: upstream failures are absorbed into an SVG placeholder so
// clients can render the response unconditionally.
func (s *Server) getMedia(c *gin.Context) {
	rawURL := c.Query("url")
	if strings.TrimSpace(rawURL) == "" {
		errJSON(c, http.StatusBadRequest, "missing_parameter", "url is required")
		return
	}

	result := s.media.Fetch(c.Request.Context(), rawURL)

	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", result.CacheSeconds))
	c.Header("X-Source-Status", result.SourceStatus)
	if result.IsAV && result.SourceStatus == "ok" {
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", result.Filename))
	}

	c.Data(http.StatusOK, result.ContentType, result.Bytes)
}
