// Package identity resolves Farcaster handles to profiles and linked
// wallet addresses.
package identity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is a resolved Farcaster profile. Addresses are lowercase,
// validated EVM addresses with duplicates removed.
type Identity struct {
	FID                int64    `json:"fid"`
	Username           string   `json:"username"`
	DisplayName        string   `json:"displayName,omitempty"`
	AvatarURL          string   `json:"avatarUrl,omitempty"`
	CustodyAddress     string   `json:"custodyAddress,omitempty"`
	ConnectedAddresses []string `json:"connectedAddresses"`
}

// Addresses returns the union of custody and connected addresses.
func (id *Identity) Addresses() []string {
	out := make([]string, 0, len(id.ConnectedAddresses)+1)
	if id.CustodyAddress != "" {
		out = append(out, id.CustodyAddress)
	}
	out = append(out, id.ConnectedAddresses...)
	return DedupeAddresses(out)
}

// NormalizeAddress lowercases an EVM address and reports whether it is a
// valid 0x-prefixed 20-byte hex string.
func NormalizeAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", false
	}
	return strings.ToLower(s), true
}

// DedupeAddresses normalizes, validates, and removes case-insensitive
// duplicates, preserving first-seen order. Invalid entries are dropped.
func DedupeAddresses(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		norm, ok := NormalizeAddress(a)
		if !ok {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

// Canonicalize rewrites the identity in place so that every address is
// lowercase and valid, and the connected set holds no duplicates.
func (id *Identity) Canonicalize() {
	if norm, ok := NormalizeAddress(id.CustodyAddress); ok {
		id.CustodyAddress = norm
	} else {
		id.CustodyAddress = ""
	}
	id.ConnectedAddresses = DedupeAddresses(id.ConnectedAddresses)
}
