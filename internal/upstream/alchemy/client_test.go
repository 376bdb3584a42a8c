package alchemy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"farcaster-gallery/internal/apperr"
	"farcaster-gallery/internal/chain"
	"farcaster-gallery/internal/httpx"
)

func testClient(srv *httptest.Server) *Client {
	c := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "test-key")
	c.SetBaseURL(srv.URL)
	c.retry = httpx.RetryConfig{
		MaxRetries:     1,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2.0,
	}
	return c
}

func TestNFTsForOwner_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nft/v3/test-key/getNFTsForOwner" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("owner") != "0xabc" {
			t.Errorf("owner = %s", q.Get("owner"))
		}
		if q.Get("withMetadata") != "true" {
			t.Error("withMetadata missing")
		}
		filters := q["excludeFilters[]"]
		if len(filters) != 2 || filters[0] != "SPAM" || filters[1] != "AIRDROPS" {
			t.Errorf("excludeFilters = %v", filters)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"ownedNfts": [
				{"contract": {"address": "0xC0FFEE"}, "tokenId": "1", "name": "First"},
				{"contract": {"address": "0xC0FFEE"}, "tokenId": "2", "name": "Second"}
			],
			"pageKey": "next-page"
		}`))
	}))
	defer srv.Close()

	c := testClient(srv)
	raws, pageKey, err := c.NFTsForOwner(context.Background(), chain.Eth, "0xabc", "", 100, true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(raws) != 2 {
		t.Fatalf("raws = %d, want 2", len(raws))
	}
	if raws[0].Name != "First" {
		t.Errorf("raw 0 name = %s", raws[0].Name)
	}
	if pageKey != "next-page" {
		t.Errorf("pageKey = %s", pageKey)
	}
}

func TestOwnersForContract_AcceptsBothShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"owners": [
				"0x000000000000000000000000000000000000000A",
				{"ownerAddress": "0x000000000000000000000000000000000000000B"}
			]
		}`))
	}))
	defer srv.Close()

	c := testClient(srv)
	owners, pageKey, err := c.OwnersForContract(context.Background(), chain.Base, "0xc0ffee", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(owners) != 2 {
		t.Fatalf("owners = %v", owners)
	}
	if owners[0] != "0x000000000000000000000000000000000000000a" {
		t.Errorf("owner 0 not lowercased: %s", owners[0])
	}
	if owners[1] != "0x000000000000000000000000000000000000000b" {
		t.Errorf("owner 1 = %s", owners[1])
	}
	if pageKey != "" {
		t.Errorf("pageKey = %s", pageKey)
	}
}

func TestGet_TranslatesStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperr.Kind
	}{
		{name: "404 is not found", status: http.StatusNotFound, want: apperr.NotFound},
		{name: "503 is upstream", status: http.StatusServiceUnavailable, want: apperr.Upstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := testClient(srv)
			_, err := c.NFTMetadata(context.Background(), chain.Eth, "0xc0ffee", "1")
			if apperr.KindOf(err) != tt.want {
				t.Errorf("kind = %s, want %s", apperr.KindOf(err), tt.want)
			}
		})
	}
}

func TestPageLimiter_SharedPerStream(t *testing.T) {
	c := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "test-key")

	a := c.pageLimiter("owner:0xabc:eth")
	b := c.pageLimiter("owner:0xabc:eth")
	other := c.pageLimiter("owner:0xdef:eth")

	if a != b {
		t.Error("same stream should share a limiter")
	}
	if a == other {
		t.Error("different streams must not share a limiter")
	}

	// burst of 1: the first page passes without waiting
	if !a.Allow() {
		t.Error("first page should pass immediately")
	}
	if a.Allow() {
		t.Error("second page should be paced")
	}
}
