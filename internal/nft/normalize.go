package nft

import (
	"strings"

	"farcaster-gallery/internal/chain"
	"farcaster-gallery/internal/identity"
)

// Normalize converts a raw provider payload into the canonical record.
// Applying it twice is a no-op: the canonical fields it reads are the same
// ones it writes.
func Normalize(raw Raw, ch chain.Chain, owner string) NFT {
	contract := strings.ToLower(strings.TrimSpace(raw.Contract.Address))
	if norm, ok := identity.NormalizeAddress(contract); ok {
		contract = norm
	}
	owner = strings.ToLower(strings.TrimSpace(owner))

	n := NFT{
		Fingerprint: Fingerprint(ch, contract, raw.TokenID),
		Ref: TokenRef{
			Chain:    ch,
			Contract: contract,
			TokenID:  raw.TokenID,
		},
		Name:         strings.TrimSpace(raw.Name),
		OwnerAddress: owner,
	}

	n.Media.URL, n.mediaSynthesized = pickMediaURL(raw, ch, contract)
	n.Media.MimeType = pickMimeType(raw)

	n.Collection = Collection{
		Address: contract,
		Name:    pickCollectionName(raw, contract),
	}
	n.Collection.FloorPriceEth, n.Collection.FloorPriceUsd = pickFloorPrice(raw)

	if raw.AcquiredAt != nil {
		n.TransferTimestamp = raw.AcquiredAt.BlockTimestamp
	}

	n.SpamSignals = upstreamSpamSignals(raw)
	return n
}

// pickMediaURL applies the media precedence chain, falling back to a
// synthesized Alchemy CDN URL so every token has something renderable. The
// second return reports whether the URL was synthesized; spam heuristics
// must not treat an invented URL as provider media.
func pickMediaURL(raw Raw, ch chain.Chain, contract string) (string, bool) {
	if len(raw.Media) > 0 && raw.Media[0].Gateway != "" {
		return raw.Media[0].Gateway, false
	}
	if raw.Image.CachedURL != "" {
		return raw.Image.CachedURL, false
	}
	if raw.Image.OriginalURL != "" {
		return raw.Image.OriginalURL, false
	}
	if raw.ImageURL != "" {
		return raw.ImageURL, false
	}
	if raw.RawMetadata != nil && raw.RawMetadata.Metadata.Image != "" {
		return raw.RawMetadata.Metadata.Image, false
	}
	if contract != "" && raw.TokenID != "" {
		return "https://nft-cdn.alchemy.com/" + ch.AlchemySlug() + "/" + contract + "/" + raw.TokenID, true
	}
	return "", false
}

func pickMimeType(raw Raw) string {
	if raw.Image.ContentType != "" {
		return raw.Image.ContentType
	}
	if len(raw.Media) > 0 && raw.Media[0].Format != "" {
		return "image/" + raw.Media[0].Format
	}
	return ""
}

func pickCollectionName(raw Raw, contract string) string {
	if raw.Collection != nil && raw.Collection.Name != "" {
		return raw.Collection.Name
	}
	if raw.Contract.Name != "" {
		return raw.Contract.Name
	}
	if raw.Contract.OpenSeaMetadata != nil && raw.Contract.OpenSeaMetadata.CollectionName != "" {
		return raw.Contract.OpenSeaMetadata.CollectionName
	}
	return shortHex(contract)
}

// shortHex renders "0x1234…abcd" for collections with no known name.
func shortHex(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func pickFloorPrice(raw Raw) (eth, usd *float64) {
	if raw.Collection != nil && raw.Collection.FloorPrice != nil {
		if v := raw.Collection.FloorPrice.ValueUsd; v != nil {
			usd = v
		}
		if v := raw.Collection.FloorPrice.Value; v != nil {
			eth = v
		}
	}
	if eth == nil && raw.Contract.OpenSeaMetadata != nil && raw.Contract.OpenSeaMetadata.FloorPrice != nil {
		eth = raw.Contract.OpenSeaMetadata.FloorPrice
	}
	return eth, usd
}
