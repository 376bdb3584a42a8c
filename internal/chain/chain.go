// Package chain enumerates the EVM networks the gallery aggregates across.
package chain

import (
	"fmt"
	"strings"
)

type Chain string

const (
	Eth      Chain = "eth"
	Polygon  Chain = "polygon"
	Arbitrum Chain = "arbitrum"
	Optimism Chain = "optimism"
	Base     Chain = "base"
	Zora     Chain = "zora"
)

// alchemySlug is the subdomain prefix of the Alchemy API host per network.
var alchemySlug = map[Chain]string{
	Eth:      "eth-mainnet",
	Polygon:  "polygon-mainnet",
	Arbitrum: "arb-mainnet",
	Optimism: "opt-mainnet",
	Base:     "base-mainnet",
	Zora:     "zora-mainnet",
}

func All() []Chain {
	return []Chain{Eth, Polygon, Arbitrum, Optimism, Base, Zora}
}

// Parse accepts a chain name or an Alchemy slug ("eth-mainnet"). An empty
// string defaults to eth.
func Parse(s string) (Chain, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Eth, nil
	}
	for c, slug := range alchemySlug {
		if s == string(c) || s == slug {
			return c, nil
		}
	}
	if s == "ethereum" || s == "mainnet" {
		return Eth, nil
	}
	return "", fmt.Errorf("unknown network %q", s)
}

func (c Chain) String() string {
	return string(c)
}

// AlchemySlug returns the Alchemy network slug, e.g. "eth-mainnet".
func (c Chain) AlchemySlug() string {
	if slug, ok := alchemySlug[c]; ok {
		return slug
	}
	return alchemySlug[Eth]
}

// AlchemyHost returns the API host serving this network.
func (c Chain) AlchemyHost() string {
	return c.AlchemySlug() + ".g.alchemy.com"
}
