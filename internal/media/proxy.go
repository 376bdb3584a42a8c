package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"farcaster-gallery/internal/httpx"
)

const (
	imageTimeout = 8 * time.Second
	avTimeout    = 15 * time.Second

	maxImageBytes = 10 << 20
	maxAVBytes    = 30 << 20

	maxRedirects = 5

	okCacheSeconds          = 86400
	placeholderCacheSeconds = 3600
)

var avExtensions = map[string]struct{}{
	".mp4": {}, ".webm": {}, ".mov": {}, ".mp3": {}, ".wav": {}, ".ogg": {},
}

var extContentTypes = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
	".gif": "image/gif", ".webp": "image/webp", ".svg": "image/svg+xml",
	".mp4": "video/mp4", ".webm": "video/webm", ".mov": "video/quicktime",
	".mp3": "audio/mpeg", ".wav": "audio/wav", ".ogg": "audio/ogg",
}

// Result is what the proxy handler serves. A placeholder result is still a
// fully renderable 200 response; SourceStatus tells the two apart.
type Result struct {
	Bytes        []byte
	ContentType  string
	SourceStatus string // "ok" | "placeholder"
	CacheSeconds int
	Filename     string
	IsAV         bool
}

// Fetcher retrieves remote media with retries and strict byte/time budgets,
// substituting a placeholder image on every failure path.
type Fetcher struct {
	norm  *Normalizer
	retry httpx.RetryConfig
	log   *slog.Logger

	transport http.RoundTripper
}

func NewFetcher(log *slog.Logger, norm *Normalizer) *Fetcher {
	return &Fetcher{
		norm:      norm,
		retry:     httpx.DefaultRetryConfig(),
		log:       log,
		transport: httpx.NewClient(0).Transport,
	}
}

// SetTransport overrides the HTTP transport (tests).
func (f *Fetcher) SetTransport(rt http.RoundTripper) {
	f.transport = rt
}

// SetRetry overrides the retry policy (tests).
func (f *Fetcher) SetRetry(cfg httpx.RetryConfig) {
	f.retry = cfg
}

// Fetch never returns an error; failures become placeholder results.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *Result {
	target, headers := f.norm.Normalize(rawURL)

	ext := strings.ToLower(path.Ext(urlPath(target)))
	_, isAV := avExtensions[ext]

	timeout := imageTimeout
	maxBytes := int64(maxImageBytes)
	if isAV {
		timeout = avTimeout
		maxBytes = maxAVBytes
	}

	client := &http.Client{
		Transport: f.transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			return nil
		},
	}

	lastStatus := 0
	var lastErr error

	for attempt := 0; attempt <= f.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := httpx.CalculateBackoff(f.retry, attempt-1, 0)
			select {
			case <-ctx.Done():
				return f.placeholder(target, isAV, "timeout")
			case <-time.After(backoff):
			}
		}

		attemptURL := RetryRewrite(target, attempt)
		body, contentType, status, err := f.fetchOnce(ctx, client, attemptURL, headers, maxBytes)
		if err == nil && status == http.StatusOK {
			return &Result{
				Bytes:        body,
				ContentType:  pickContentType(contentType, ext),
				SourceStatus: "ok",
				CacheSeconds: okCacheSeconds,
				Filename:     path.Base(urlPath(attemptURL)),
				IsAV:         isAV,
			}
		}
		if status > 0 {
			lastStatus = status
		}
		lastErr = err

		f.log.Warn("media_fetch_attempt_failed",
			"url", attemptURL,
			"attempt", attempt,
			"status", status,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}

	msg := "fetch failed"
	switch {
	case lastStatus > 0:
		msg = fmt.Sprintf("Error %d", lastStatus)
	case lastErr != nil && (errors.Is(lastErr, context.DeadlineExceeded) || ctx.Err() != nil):
		msg = "timeout"
	}
	return f.placeholder(target, isAV, msg)
}

func (f *Fetcher) fetchOnce(ctx context.Context, client *http.Client, target string, headers http.Header, maxBytes int64) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", 0, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", resp.StatusCode, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	// read one byte beyond the budget to detect oversize bodies
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", resp.StatusCode, err
	}
	if int64(len(body)) > maxBytes {
		return nil, "", resp.StatusCode, fmt.Errorf("response exceeds %d bytes", maxBytes)
	}

	return body, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

func (f *Fetcher) placeholder(target string, isAV bool, msg string) *Result {
	return &Result{
		Bytes:        Placeholder(msg),
		ContentType:  "image/svg+xml",
		SourceStatus: "placeholder",
		CacheSeconds: placeholderCacheSeconds,
		Filename:     path.Base(urlPath(target)),
		IsAV:         isAV,
	}
}

// pickContentType prefers the upstream header unless it is one of the
// useless generic types, then falls back to the URL extension, then jpeg.
func pickContentType(upstream, ext string) string {
	upstream = strings.TrimSpace(upstream)
	if upstream != "" {
		base := upstream
		if i := strings.Index(base, ";"); i >= 0 {
			base = strings.TrimSpace(base[:i])
		}
		if base != "application/octet-stream" && base != "text/plain" {
			return upstream
		}
	}
	if ct, ok := extContentTypes[ext]; ok {
		return ct
	}
	return "image/jpeg"
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
