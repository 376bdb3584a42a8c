package nft

import "strings"

// Spam signal names attached to canonical records.
const (
	SignalUpstreamFlag = "upstream_flag"
	SignalBlocklist    = "blocklist"
	SignalAggressive   = "aggressive_heuristic"
)

// contractBlocklist holds contracts known to mass-airdrop junk tokens.
var contractBlocklist = map[string]struct{}{
	"0x57e9a39ae8ec404c08f88740a9e6e306f50c937f": {}, // polygon airdrop farm
	"0x2953399124f0cbb46d2cbacd8a89cf0599974963": {}, // opensea shared storefront clones
	"0xb66a603f4cfe17e3d27b87a8bfcad319856518b8": {}, // rarible clone spam
	"0x495f947276749ce646f68ac8c248420045cb7b5e": {}, // opensea shared storefront v1
}

func upstreamSpamSignals(raw Raw) []string {
	var signals []string
	if raw.Contract.IsSpam {
		signals = append(signals, SignalUpstreamFlag)
	} else if raw.SpamInfo != nil && strings.EqualFold(raw.SpamInfo.IsSpam, "true") {
		signals = append(signals, SignalUpstreamFlag)
	}
	if _, blocked := contractBlocklist[strings.ToLower(raw.Contract.Address)]; blocked {
		signals = append(signals, SignalBlocklist)
	}
	return signals
}

// MarkAggressiveSpam appends the aggressive-mode signal when a token has no
// name, no provider media, and no known floor price. A synthesized fallback
// URL does not count as media. Only called when the caller opted into
// aggressive filtering.
func MarkAggressiveSpam(n *NFT) {
	if n.Name != "" {
		return
	}
	if n.Media.URL != "" && !n.mediaSynthesized {
		return
	}
	if n.Collection.FloorPriceEth != nil && *n.Collection.FloorPriceEth > 0 {
		return
	}
	if n.Collection.FloorPriceUsd != nil && *n.Collection.FloorPriceUsd > 0 {
		return
	}
	n.SpamSignals = append(n.SpamSignals, SignalAggressive)
}
