package nft

// Raw is the superset of token fields the upstream providers return. The
// Alchemy and Zapper clients decode into it; only Normalize reads it.
type Raw struct {
	Contract RawContract `json:"contract"`
	TokenID  string      `json:"tokenId"`
	Name     string      `json:"name"`

	Collection *RawCollection `json:"collection,omitempty"`

	Image RawImage   `json:"image"`
	Media []RawMedia `json:"media,omitempty"`

	// flat fields some providers use instead of the structured ones
	ImageURL    string       `json:"image_url,omitempty"`
	RawMetadata *RawMetadata `json:"raw,omitempty"`

	AcquiredAt *RawAcquiredAt `json:"acquiredAt,omitempty"`
	SpamInfo   *RawSpamInfo   `json:"spamInfo,omitempty"`
}

type RawContract struct {
	Address         string              `json:"address"`
	Name            string              `json:"name,omitempty"`
	OpenSeaMetadata *RawOpenSeaMetadata `json:"openSeaMetadata,omitempty"`
	IsSpam          bool                `json:"isSpam,omitempty"`
}

type RawOpenSeaMetadata struct {
	CollectionName string   `json:"collectionName,omitempty"`
	FloorPrice     *float64 `json:"floorPrice,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty"`
}

type RawCollection struct {
	Name       string         `json:"name,omitempty"`
	FloorPrice *RawFloorPrice `json:"floorPrice,omitempty"`
}

type RawFloorPrice struct {
	// Value is denominated in the chain's native asset.
	Value    *float64 `json:"value,omitempty"`
	ValueUsd *float64 `json:"valueUsd,omitempty"`
}

type RawImage struct {
	CachedURL   string `json:"cachedUrl,omitempty"`
	OriginalURL string `json:"originalUrl,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

type RawMedia struct {
	Gateway string `json:"gateway,omitempty"`
	Raw     string `json:"raw,omitempty"`
	Format  string `json:"format,omitempty"`
}

type RawMetadata struct {
	Metadata struct {
		Image string `json:"image,omitempty"`
	} `json:"metadata"`
}

type RawAcquiredAt struct {
	BlockTimestamp string `json:"blockTimestamp,omitempty"`
}

type RawSpamInfo struct {
	IsSpam          string   `json:"isSpam,omitempty"`
	Classifications []string `json:"classifications,omitempty"`
}
