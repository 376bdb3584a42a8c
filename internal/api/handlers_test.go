package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"farcaster-gallery/internal/config"
	"farcaster-gallery/internal/httpx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() config.Config {
	return config.Config{
		HTTPAddr:      ":0",
		LogLevel:      "error",
		IPFSGateway:   "cloudflare-ipfs.com",
		CORSOrigins:   []string{"*"},
		AlchemyAPIKey: "test-key",
		NeynarAPIKey:  "test-key",
	}
}

func newTestServer() *Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(log, testConfig())
}

func fastRetry() httpx.RetryConfig {
	return httpx.RetryConfig{
		MaxRetries:     1,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func doRequest(s *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestGetFarcasterUser(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/farcaster/user/by_username" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"user": {
				"fid": 42,
				"username": "alice",
				"display_name": "Alice",
				"custody_address": "0x000000000000000000000000000000000000000A",
				"verified_addresses": {"eth_addresses": ["0x000000000000000000000000000000000000000B"]}
			}
		}`))
	}))
	defer upstream.Close()

	s := newTestServer()
	s.social.SetBaseURL(upstream.URL)

	w := doRequest(s, http.MethodGet, "/api/farcaster-user?username=alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	profile, ok := body["profile"].(map[string]any)
	if !ok {
		t.Fatalf("missing profile in %v", body)
	}
	if profile["fid"].(float64) != 42 {
		t.Errorf("fid = %v", profile["fid"])
	}
	if profile["custodyAddress"] != "0x000000000000000000000000000000000000000a" {
		t.Errorf("custody = %v", profile["custodyAddress"])
	}
}

func TestGetFarcasterUser_MissingUsername(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodGet, "/api/farcaster-user", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if code := decodeJSON(t, w)["error"]; code != "missing_parameter" {
		t.Errorf("error code = %v", code)
	}
}

func TestGetFarcasterUser_NotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	s := newTestServer()
	s.social.SetBaseURL(upstream.URL)

	w := doRequest(s, http.MethodGet, "/api/farcaster-user?username=ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", w.Code, w.Body.String())
	}
}

func TestGetCollectionFriends(t *testing.T) {
	holderAddr := "0x000000000000000000000000000000000000000a"

	social := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"users": [
				{"user": {"fid": 10, "username": "holder", "verified_addresses": {"eth_addresses": ["` + holderAddr + `"]}}},
				{"user": {"fid": 11, "username": "bystander", "verified_addresses": {"eth_addresses": ["0x000000000000000000000000000000000000000b"]}}}
			],
			"next": {"cursor": ""}
		}`))
	}))
	defer social.Close()

	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"owners": ["` + holderAddr + `"]}`))
	}))
	defer index.Close()

	s := newTestServer()
	s.social.SetBaseURL(social.URL)
	s.index.SetBaseURL(index.URL)

	contract := "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
	w := doRequest(s, http.MethodGet, "/api/collection-friends?fid=1&contractAddress="+contract, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	if body["contractAddress"] != strings.ToLower(contract) {
		t.Errorf("contractAddress = %v", body["contractAddress"])
	}
	if body["totalFriends"].(float64) != 1 {
		t.Errorf("totalFriends = %v", body["totalFriends"])
	}
	if body["hasMore"].(bool) {
		t.Error("hasMore should be false")
	}
	friendsList := body["friends"].([]any)
	if len(friendsList) != 1 {
		t.Fatalf("friends = %v", friendsList)
	}
	if friendsList[0].(map[string]any)["username"] != "holder" {
		t.Errorf("friend = %v", friendsList[0])
	}
}

func TestGetCollectionFriends_ParamValidation(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name   string
		target string
	}{
		{name: "missing contract", target: "/api/collection-friends?fid=1"},
		{name: "missing fid", target: "/api/collection-friends?contractAddress=0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"},
		{name: "fid not a number", target: "/api/collection-friends?fid=abc&contractAddress=0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"},
		{name: "fid negative", target: "/api/collection-friends?fid=-5&contractAddress=0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"},
		{name: "bad network", target: "/api/collection-friends?fid=1&network=solana&contractAddress=0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"},
		{name: "bad limit", target: "/api/collection-friends?fid=1&limit=-1&contractAddress=0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"},
		{name: "invalid contract", target: "/api/collection-friends?fid=1&contractAddress=lol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, tt.target, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetUserNFTs_ByAddresses(t *testing.T) {
	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"ownedNfts": [
				{"contract": {"address": "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D", "name": "Apes"}, "tokenId": "1", "name": "Ape #1"}
			],
			"pageKey": ""
		}`))
	}))
	defer index.Close()

	s := newTestServer()
	s.index.SetBaseURL(index.URL)

	owner := "0x000000000000000000000000000000000000000a"
	w := doRequest(s, http.MethodGet, "/api/user-nfts?addresses="+owner, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	nfts := body["nfts"].([]any)
	if len(nfts) != 1 {
		t.Fatalf("nfts = %v", nfts)
	}
	first := nfts[0].(map[string]any)
	if first["name"] != "Ape #1" {
		t.Errorf("nft name = %v", first["name"])
	}
	perWallet := body["perWallet"].(map[string]any)
	if perWallet[owner].(float64) != 1 {
		t.Errorf("perWallet = %v", perWallet)
	}
}

func TestGetUserNFTs_RequiresAnOwnerParameter(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodGet, "/api/user-nfts", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetUserNFTs_RejectsUnknownChain(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodGet, "/api/user-nfts?addresses=0x000000000000000000000000000000000000000a&chains=solana", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSearchUsers_RejectsShortQuery(t *testing.T) {
	s := newTestServer()

	for _, q := range []string{"", "a"} {
		w := doRequest(s, http.MethodGet, "/api/search-users?q="+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("q=%q: status = %d, want 400", q, w.Code)
		}
	}
}

func TestGetMedia_MissingURL(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodGet, "/api/media", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetMedia_ProxiesUpstreamBytes(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer upstream.Close()

	s := newTestServer()
	s.media.SetTransport(upstream.Client().Transport)
	s.media.SetRetry(fastRetry())

	w := doRequest(s, http.MethodGet, "/api/media?url="+upstream.URL+"/a.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Source-Status") != "ok" {
		t.Errorf("source status = %s", w.Header().Get("X-Source-Status"))
	}
	if w.Body.String() != "png-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestGetMedia_FailureStillServes200(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	s := newTestServer()
	s.media.SetTransport(upstream.Client().Transport)
	s.media.SetRetry(fastRetry())

	w := doRequest(s, http.MethodGet, "/api/media?url="+upstream.URL+"/broken.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on upstream failure", w.Code)
	}
	if w.Header().Get("X-Source-Status") != "placeholder" {
		t.Errorf("source status = %s", w.Header().Get("X-Source-Status"))
	}
	if !strings.Contains(w.Body.String(), "<svg") {
		t.Error("placeholder body should be SVG")
	}
}

func TestRPCOptimism_Passthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","result":"0x1234","id":7}`))
	}))
	defer upstream.Close()

	s := newTestServer()
	s.SetRPCTarget(upstream.URL)

	req := `{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":7}`
	w := doRequest(s, http.MethodPost, "/api/rpc/optimism", strings.NewReader(req))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if decodeJSON(t, w)["result"] != "0x1234" {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRPCOptimism_UpstreamFailureEnvelope(t *testing.T) {
	// point at a server that is already closed
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := upstream.URL
	upstream.Close()

	s := newTestServer()
	s.SetRPCTarget(target)

	req := `{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":7}`
	w := doRequest(s, http.MethodPost, "/api/rpc/optimism", strings.NewReader(req))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	body := decodeJSON(t, w)
	if body["jsonrpc"] != "2.0" {
		t.Errorf("jsonrpc = %v", body["jsonrpc"])
	}
	if body["id"].(float64) != 7 {
		t.Errorf("id = %v, want the caller's id", body["id"])
	}
	rpcErr := body["error"].(map[string]any)
	if rpcErr["code"].(float64) != -32603 {
		t.Errorf("code = %v, want -32603", rpcErr["code"])
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	body := decodeJSON(t, w)
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["portfolioSource"].(bool) {
		t.Error("portfolioSource should be false without a key")
	}
}

func TestCORS_PreflightAndHeaders(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodOptions, "/api/health", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow-origin = %s", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestInputValidation_StripsControlCharacters(t *testing.T) {
	var gotUsername string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUsername = r.URL.Query().Get("username")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user": {"fid": 42, "username": "alice"}}`))
	}))
	defer upstream.Close()

	s := newTestServer()
	s.social.SetBaseURL(upstream.URL)

	// %01 is a control character; the handler must see it stripped
	w := doRequest(s, http.MethodGet, "/api/farcaster-user?username=al%01ice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if gotUsername != "alice" {
		t.Errorf("upstream saw username %q, want %q", gotUsername, "alice")
	}
}

func TestLegacyRoutesAlias(t *testing.T) {
	s := newTestServer()

	// unprefixed path reaches the same handler: same validation error
	w := doRequest(s, http.MethodGet, "/farcaster-user", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 from the aliased handler", w.Code)
	}
}
