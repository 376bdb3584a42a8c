package nft

// Deduper merges normalized records by fingerprint, keeping insertion
// order. When a fingerprint collides, the record with both a media URL and
// a floor price wins; ties keep the earliest-seen record. The owner address
// always stays whichever was seen first.
type Deduper struct {
	index map[string]int
	list  []NFT
}

func NewDeduper() *Deduper {
	return &Deduper{index: make(map[string]int)}
}

// Add merges one record and reports whether it was new.
func (d *Deduper) Add(n NFT) bool {
	i, exists := d.index[n.Fingerprint]
	if !exists {
		d.index[n.Fingerprint] = len(d.list)
		d.list = append(d.list, n)
		return true
	}

	if recordScore(n) > recordScore(d.list[i]) {
		n.OwnerAddress = d.list[i].OwnerAddress
		d.list[i] = n
	}
	return false
}

func recordScore(n NFT) int {
	score := 0
	if n.Media.URL != "" {
		score++
	}
	if n.Collection.FloorPriceEth != nil || n.Collection.FloorPriceUsd != nil {
		score++
	}
	return score
}

// Len returns the number of distinct records.
func (d *Deduper) Len() int {
	return len(d.list)
}

// Snapshot copies the current merged list in insertion order.
func (d *Deduper) Snapshot() []NFT {
	out := make([]NFT, len(d.list))
	copy(out, d.list)
	return out
}
