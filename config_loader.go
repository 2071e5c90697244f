package authcore

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// fileConfig is the YAML/env shape of [Config]. Key material arrives as
// file paths; durations as Go duration strings.
type fileConfig struct {
	Token struct {
		AccessTTL      string `koanf:"access_ttl"`
		SigningMethod  string `koanf:"signing_method"`
		PrivateKeyFile string `koanf:"private_key_file"`
		PublicKeyFile  string `koanf:"public_key_file"`
		Issuer         string `koanf:"issuer"`
		Leeway         string `koanf:"leeway"`
	} `koanf:"token"`
	Session struct {
		RefreshTTL   string `koanf:"refresh_ttl"`
		AbsoluteTTL  string `koanf:"absolute_ttl"`
		TombstoneTTL string `koanf:"tombstone_ttl"`
		KeyPrefix    string `koanf:"key_prefix"`
	} `koanf:"session"`
	Password struct {
		MemoryKB    uint32 `koanf:"memory_kb"`
		Time        uint32 `koanf:"time"`
		Parallelism uint8  `koanf:"parallelism"`
		SaltLength  uint32 `koanf:"salt_length"`
		KeyLength   uint32 `koanf:"key_length"`
	} `koanf:"password"`
	Lockout struct {
		Enabled   *bool  `koanf:"enabled"`
		Threshold int    `koanf:"threshold"`
		Window    string `koanf:"window"`
		Cooldown  string `koanf:"cooldown"`
		PerOrigin *bool  `koanf:"per_origin"`
	} `koanf:"lockout"`
	Audit struct {
		Enabled    *bool `koanf:"enabled"`
		BufferSize int   `koanf:"buffer_size"`
		DropIfFull *bool `koanf:"drop_if_full"`
	} `koanf:"audit"`
	Metrics struct {
		Enabled                 *bool `koanf:"enabled"`
		EnableLatencyHistograms *bool `koanf:"enable_latency_histograms"`
	} `koanf:"metrics"`
}

// LoadConfig reads configuration from a YAML file, overlays AUTHCORE_*
// environment variables (AUTHCORE_TOKEN_ACCESS_TTL maps to
// token.access_ttl, with section names matched on the first underscore),
// and merges the result over [DefaultConfig]. Unset fields keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "AUTHCORE_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "AUTHCORE_"))
			// First segment is the section, the rest is the field name.
			if section, field, found := strings.Cut(key, "_"); found {
				return section + "." + field, value
			}
			return key, value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env overrides: %w", err)
	}

	var fc fileConfig
	if err := k.UnmarshalWithConf("", &fc, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &fc,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return mergeFileConfig(DefaultConfig(), fc)
}

func mergeFileConfig(cfg Config, fc fileConfig) (Config, error) {
	var err error

	if cfg.Token.AccessTTL, err = overlayDuration(cfg.Token.AccessTTL, fc.Token.AccessTTL); err != nil {
		return Config{}, fmt.Errorf("token.access_ttl: %w", err)
	}
	if fc.Token.SigningMethod != "" {
		cfg.Token.SigningMethod = fc.Token.SigningMethod
	}
	if fc.Token.PrivateKeyFile != "" {
		if cfg.Token.PrivateKey, err = os.ReadFile(fc.Token.PrivateKeyFile); err != nil {
			return Config{}, fmt.Errorf("token.private_key_file: %w", err)
		}
	}
	if fc.Token.PublicKeyFile != "" {
		if cfg.Token.PublicKey, err = os.ReadFile(fc.Token.PublicKeyFile); err != nil {
			return Config{}, fmt.Errorf("token.public_key_file: %w", err)
		}
	}
	if fc.Token.Issuer != "" {
		cfg.Token.Issuer = fc.Token.Issuer
	}
	if cfg.Token.Leeway, err = overlayDuration(cfg.Token.Leeway, fc.Token.Leeway); err != nil {
		return Config{}, fmt.Errorf("token.leeway: %w", err)
	}

	if cfg.Session.RefreshTTL, err = overlayDuration(cfg.Session.RefreshTTL, fc.Session.RefreshTTL); err != nil {
		return Config{}, fmt.Errorf("session.refresh_ttl: %w", err)
	}
	if cfg.Session.AbsoluteTTL, err = overlayDuration(cfg.Session.AbsoluteTTL, fc.Session.AbsoluteTTL); err != nil {
		return Config{}, fmt.Errorf("session.absolute_ttl: %w", err)
	}
	if cfg.Session.TombstoneTTL, err = overlayDuration(cfg.Session.TombstoneTTL, fc.Session.TombstoneTTL); err != nil {
		return Config{}, fmt.Errorf("session.tombstone_ttl: %w", err)
	}
	if fc.Session.KeyPrefix != "" {
		cfg.Session.KeyPrefix = fc.Session.KeyPrefix
	}

	if fc.Password.MemoryKB != 0 {
		cfg.Password.MemoryKB = fc.Password.MemoryKB
	}
	if fc.Password.Time != 0 {
		cfg.Password.Time = fc.Password.Time
	}
	if fc.Password.Parallelism != 0 {
		cfg.Password.Parallelism = fc.Password.Parallelism
	}
	if fc.Password.SaltLength != 0 {
		cfg.Password.SaltLength = fc.Password.SaltLength
	}
	if fc.Password.KeyLength != 0 {
		cfg.Password.KeyLength = fc.Password.KeyLength
	}

	if fc.Lockout.Enabled != nil {
		cfg.Lockout.Enabled = *fc.Lockout.Enabled
	}
	if fc.Lockout.Threshold != 0 {
		cfg.Lockout.Threshold = fc.Lockout.Threshold
	}
	if cfg.Lockout.Window, err = overlayDuration(cfg.Lockout.Window, fc.Lockout.Window); err != nil {
		return Config{}, fmt.Errorf("lockout.window: %w", err)
	}
	if cfg.Lockout.Cooldown, err = overlayDuration(cfg.Lockout.Cooldown, fc.Lockout.Cooldown); err != nil {
		return Config{}, fmt.Errorf("lockout.cooldown: %w", err)
	}
	if fc.Lockout.PerOrigin != nil {
		cfg.Lockout.PerOrigin = *fc.Lockout.PerOrigin
	}

	if fc.Audit.Enabled != nil {
		cfg.Audit.Enabled = *fc.Audit.Enabled
	}
	if fc.Audit.BufferSize != 0 {
		cfg.Audit.BufferSize = fc.Audit.BufferSize
	}
	if fc.Audit.DropIfFull != nil {
		cfg.Audit.DropIfFull = *fc.Audit.DropIfFull
	}

	if fc.Metrics.Enabled != nil {
		cfg.Metrics.Enabled = *fc.Metrics.Enabled
	}
	if fc.Metrics.EnableLatencyHistograms != nil {
		cfg.Metrics.EnableLatencyHistograms = *fc.Metrics.EnableLatencyHistograms
	}

	return cfg, nil
}

func overlayDuration(current time.Duration, raw string) (time.Duration, error) {
	if raw == "" {
		return current, nil
	}
	return time.ParseDuration(raw)
}
