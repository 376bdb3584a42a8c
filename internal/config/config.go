package config

import (
	"errors"
	"os"
	"strings"
)

type Config struct {
	HTTPAddr    string
	LogLevel    string
	IPFSGateway string
	CORSOrigins []string

	// raw secrets kept in-memory only; never log these
	AlchemyAPIKey string
	NeynarAPIKey  string
	ZapperAPIKey  string
}

// NeynarDemoKey is the public demo key Neynar hands out for docs examples.
// It is heavily rate limited; production deployments set NEYNAR_API_KEY.
const NeynarDemoKey = "NEYNAR_API_DOCS"

func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:      ":" + getenvDefault("PORT", "8080"),
		LogLevel:      getenvDefault("LOG_LEVEL", "info"),
		IPFSGateway:   getenvDefault("IPFS_GATEWAY", "cloudflare-ipfs.com"),
		AlchemyAPIKey: os.Getenv("ALCHEMY_API_KEY"),
		NeynarAPIKey:  getenvDefault("NEYNAR_API_KEY", NeynarDemoKey),
		ZapperAPIKey:  os.Getenv("ZAPPER_API_KEY"),
	}

	if cfg.AlchemyAPIKey == "" {
		return Config{}, errors.New("missing ALCHEMY_API_KEY")
	}

	// parse CORS origins
	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(corsOrigins, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	} else {
		cfg.CORSOrigins = []string{"*"}
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
