// Package media canonicalizes token media URLs and fetches them behind a
// proxy that always produces a renderable response.
package media

import (
	"net/http"
	"net/url"
	"strings"
)

// Normalizer rewrites decentralized-storage and CDN URLs into fetchable
// https URLs. Normalization is idempotent.
type Normalizer struct {
	// Gateway is the preferred IPFS gateway host, e.g. "cloudflare-ipfs.com".
	Gateway string
	// AlchemyKey signs nft-cdn.alchemy.com requests.
	AlchemyKey string
}

// renditionSuffixes the Alchemy CDN serves directly; a path without one and
// without a query string gets "/original.jpg" appended.
var renditionSuffixes = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".mp4", ".webm"}

// noProvenanceHosts get no Origin/Referer headers at all.
var noProvenanceHosts = map[string]struct{}{
	"arweave.net":               {},
	"nft-cdn.alchemy.com":       {},
	"ipfs.io":                   {},
	"lh3.googleusercontent.com": {},
}

// originOverrides maps CDN hosts to the origin their edge expects.
var originOverrides = map[string]string{
	"i.seadn.io":          "https://opensea.io",
	"openseauserdata.com": "https://opensea.io",
}

// Normalize returns the canonical https URL and the request headers to use
// when fetching it.
func (n *Normalizer) Normalize(raw string) (string, http.Header) {
	target := n.rewrite(strings.TrimSpace(raw))
	return target, n.headersFor(target)
}

func (n *Normalizer) rewrite(raw string) string {
	switch {
	case strings.HasPrefix(raw, "ipfs://"):
		rest := strings.TrimPrefix(raw, "ipfs://")
		rest = strings.TrimPrefix(rest, "ipfs/")
		return "https://" + n.Gateway + "/ipfs/" + rest

	case strings.HasPrefix(raw, "ar://"):
		return "https://arweave.net/" + strings.TrimPrefix(raw, "ar://")

	case isBareCID(raw):
		return "https://" + n.Gateway + "/ipfs/" + raw
	}

	if strings.HasPrefix(raw, "http://") {
		raw = "https://" + strings.TrimPrefix(raw, "http://")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	if u.Host == "nft-cdn.alchemy.com" {
		q := u.Query()
		if q.Get("apiKey") == "" && n.AlchemyKey != "" {
			if u.RawQuery == "" && !hasRenditionSuffix(u.Path) {
				u.Path = strings.TrimSuffix(u.Path, "/") + "/original.jpg"
			}
			q.Set("apiKey", n.AlchemyKey)
			u.RawQuery = q.Encode()
		}
		return u.String()
	}

	// rehome any foreign-gateway ipfs path onto the configured gateway
	if i := strings.Index(u.Path, "/ipfs/"); i >= 0 && u.Host != n.Gateway {
		u.Host = n.Gateway
		u.Path = u.Path[i:]
		return u.String()
	}

	return u.String()
}

func (n *Normalizer) headersFor(target string) http.Header {
	h := http.Header{}
	u, err := url.Parse(target)
	if err != nil {
		return h
	}
	if _, bare := noProvenanceHosts[u.Host]; bare {
		return h
	}
	if origin, ok := originOverrides[u.Host]; ok {
		h.Set("Origin", origin)
		h.Set("Referer", origin+"/")
		return h
	}
	// default provenance: pretend the request came from the target's own origin
	h.Set("Referer", "https://"+u.Host+"/")
	return h
}

// RetryRewrite mutates a URL for the next fetch attempt: the Alchemy CDN
// drops its query entirely, seadn.io drops its width parameter.
func RetryRewrite(target string, attempt int) string {
	if attempt == 0 {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	switch {
	case u.Host == "nft-cdn.alchemy.com":
		u.RawQuery = ""
		return u.String()
	case strings.HasSuffix(u.Host, "seadn.io"):
		q := u.Query()
		if q.Get("w") != "" {
			q.Del("w")
			u.RawQuery = q.Encode()
		}
		return u.String()
	}
	return target
}

func isBareCID(s string) bool {
	if strings.Contains(s, "/") || strings.Contains(s, ":") {
		return false
	}
	if strings.HasPrefix(s, "Qm") && len(s) == 46 {
		return true
	}
	return strings.HasPrefix(s, "bafy")
}

func hasRenditionSuffix(path string) bool {
	lower := strings.ToLower(path)
	for _, suffix := range renditionSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
