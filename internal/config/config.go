package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ChainSimulated = "simulated"
	ChainEthereum  = "ethereum"
)

type Config struct {
	Server struct {
		Port         string   `yaml:"port"`
		ReadTimeout  string   `yaml:"read_timeout"`
		WriteTimeout string   `yaml:"write_timeout"`
		CORSOrigins  []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Session struct {
		Tick string `yaml:"tick"`
		TTL  string `yaml:"ttl"`
	} `yaml:"session"`
	Cache struct {
		TTL     string `yaml:"ttl"`
		Cleanup string `yaml:"cleanup"`
		CardTTL string `yaml:"card_ttl"`
	} `yaml:"cache"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Chain struct {
		Mode           string `yaml:"mode"`
		RPCURL         string `yaml:"rpc_url"`
		ChainID        int64  `yaml:"chain_id"`
		QuizAddress    string `yaml:"quiz_address"`
		CardAddress    string `yaml:"card_address"`
		PrivateKey     string `yaml:"private_key"`
		ConfirmTimeout string `yaml:"confirm_timeout"`
		// Simulated contracts only.
		Owner     string `yaml:"owner"`
		CreateFee string `yaml:"create_fee"`
		PlayFee   string `yaml:"play_fee"`
		MintFee   string `yaml:"mint_fee"`
	} `yaml:"chain"`
	Indexer struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"indexer"`
	Pinning struct {
		BaseURL string `yaml:"base_url"`
		JWT     string `yaml:"jwt"`
		Timeout string `yaml:"timeout"`
	} `yaml:"pinning"`
	Render struct {
		URL                 string `yaml:"url"`
		Timeout             string `yaml:"timeout"`
		DefaultProfileImage string `yaml:"default_profile_image"`
	} `yaml:"render"`
}

// Load reads YAML config from path, then applies secrets from the environment.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv keeps keys out of config files.
func (c *Config) applyEnv() {
	if v := os.Getenv("CHAIN_PRIVATE_KEY"); v != "" {
		c.Chain.PrivateKey = v
	}
	if v := os.Getenv("PINATA_JWT"); v != "" {
		c.Pinning.JWT = v
	}
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Chain.Mode {
	case "", ChainSimulated:
	case ChainEthereum:
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain.rpc_url is required in ethereum mode")
		}
		if c.Chain.QuizAddress == "" || c.Chain.CardAddress == "" {
			return fmt.Errorf("chain.quiz_address and chain.card_address are required in ethereum mode")
		}
		if c.Chain.ChainID <= 0 {
			return fmt.Errorf("chain.chain_id must be positive")
		}
	default:
		return fmt.Errorf("unknown chain.mode %q", c.Chain.Mode)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Or returns raw, or fallback when raw is empty.
func Or(raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	return raw
}
