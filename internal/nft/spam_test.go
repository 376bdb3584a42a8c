package nft

import (
	"testing"

	"farcaster-gallery/internal/chain"
)

func TestUpstreamSpamSignals(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
		want []string
	}{
		{
			name: "clean token",
			raw:  Raw{Contract: RawContract{Address: "0xabc"}},
			want: nil,
		},
		{
			name: "contract flag",
			raw:  Raw{Contract: RawContract{Address: "0xabc", IsSpam: true}},
			want: []string{SignalUpstreamFlag},
		},
		{
			name: "spamInfo string flag",
			raw: Raw{
				Contract: RawContract{Address: "0xabc"},
				SpamInfo: &RawSpamInfo{IsSpam: "true"},
			},
			want: []string{SignalUpstreamFlag},
		},
		{
			name: "blocklisted contract",
			raw:  Raw{Contract: RawContract{Address: "0x495f947276749CE646f68AC8c248420045cb7b5e"}},
			want: []string{SignalBlocklist},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := upstreamSpamSignals(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("signals = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("signal %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMarkAggressiveSpam(t *testing.T) {
	bareRaw := Raw{
		Contract: RawContract{Address: "0x1111111111111111111111111111111111111111"},
		TokenID:  "7",
	}

	// The normalizer synthesizes a CDN fallback URL for every token with a
	// contract and token id; that invented URL must not shield the token.
	bare := Normalize(bareRaw, chain.Eth, "0xowner")
	if bare.Media.URL == "" {
		t.Fatal("expected a synthesized media url before the heuristic runs")
	}
	MarkAggressiveSpam(&bare)
	if !bare.IsSpam() {
		t.Error("nameless token with no provider media and no floor should be flagged")
	}

	named := bare
	named.SpamSignals = nil
	named.Name = "Cool Token"
	MarkAggressiveSpam(&named)
	if named.IsSpam() {
		t.Error("a named token must not be flagged by the heuristic")
	}

	floored := bare
	floored.SpamSignals = nil
	floored.Collection.FloorPriceEth = fptr(0.5)
	MarkAggressiveSpam(&floored)
	if floored.IsSpam() {
		t.Error("a token with a positive floor must not be flagged")
	}

	withMediaRaw := bareRaw
	withMediaRaw.Image = RawImage{CachedURL: "https://img.example/7.png"}
	withMedia := Normalize(withMediaRaw, chain.Eth, "0xowner")
	MarkAggressiveSpam(&withMedia)
	if withMedia.IsSpam() {
		t.Error("a token with provider media must not be flagged")
	}
}
