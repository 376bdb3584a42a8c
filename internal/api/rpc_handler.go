package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"farcaster-gallery/internal/chain"
)

const maxRPCBody = 1 << 20

// rpcOptimism forwards a JSON-RPC request to the Optimism endpoint. On any
// upstream failure it answers 502 with a JSON-RPC error envelope carrying
// the caller's request id.
func (s *Server) rpcOptimism(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRPCBody))
	if err != nil {
		errJSON(c, http.StatusBadRequest, "invalid_body", "could not read request body")
		return
	}

	// keep the id so the error envelope stays correlated
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	_ = json.Unmarshal(body, &probe)
	id := probe.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	target := s.rpcTarget
	if target == "" {
		target = "https://" + chain.Optimism.AlchemyHost() + "/v2/" + s.cfg.AlchemyAPIKey
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		s.rpcError(c, id)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.rpcClient.Do(req)
	if err != nil {
		s.log.Warn("rpc_proxy_failed", "error", err)
		s.rpcError(c, id)
		return
	}
	defer resp.Body.Close()

	upstream, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		s.rpcError(c, id)
		return
	}

	c.Data(resp.StatusCode, "application/json", upstream)
}

func (s *Server) rpcError(c *gin.Context, id json.RawMessage) {
	c.JSON(http.StatusBadGateway, gin.H{
		"jsonrpc": "2.0",
		"error": gin.H{
			"code":    -32603,
			"message": "upstream rpc request failed",
		},
		"id": id,
	})
}

// SetRPCTarget overrides the JSON-RPC upstream (tests).
func (s *Server) SetRPCTarget(target string) {
	s.rpcTarget = target
}
