// Package nft holds the canonical token record shared by the aggregation
// and friends engines, plus the normalizer that isolates the rest of the
// system from provider payload drift.
package nft

import (
	"strings"

	"farcaster-gallery/internal/chain"
)

type TokenRef struct {
	Chain    chain.Chain `json:"chain"`
	Contract string      `json:"contract"`
	// TokenID is kept exactly as the provider sent it (decimal or 0x hex),
	// never reformatted.
	TokenID string `json:"tokenId"`
}

type Collection struct {
	Address       string   `json:"address,omitempty"`
	Name          string   `json:"name,omitempty"`
	FloorPriceEth *float64 `json:"floorPriceEth,omitempty"`
	FloorPriceUsd *float64 `json:"floorPriceUsd,omitempty"`
}

type Media struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type NFT struct {
	Fingerprint       string     `json:"fingerprint"`
	Ref               TokenRef   `json:"ref"`
	Name              string     `json:"name,omitempty"`
	Collection        Collection `json:"collection"`
	Media             Media      `json:"media"`
	OwnerAddress      string     `json:"ownerAddress"`
	TransferTimestamp string     `json:"transferTimestamp,omitempty"`
	SpamSignals       []string   `json:"spamSignals,omitempty"`

	// mediaSynthesized is set when Media.URL was invented by the normalizer
	// rather than sent by the provider.
	mediaSynthesized bool
}

// Fingerprint is the sole deduplication key across chains and wallets.
func Fingerprint(ch chain.Chain, contract, tokenID string) string {
	return strings.ToLower(string(ch)) + "|" + strings.ToLower(contract) + "|" + tokenID
}

func (n *NFT) IsSpam() bool {
	return len(n.SpamSignals) > 0
}
