package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/catalog"
)

// EnvPrefix prefixes every environment override, e.g. STOCKPILE_SERVER_PORT.
const EnvPrefix = "STOCKPILE_"

// Config holds all server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	JWT     JWTConfig     `yaml:"jwt" envPrefix:"JWT_"`
	Redis   RedisConfig   `yaml:"redis" envPrefix:"REDIS_"`
	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	Limits  LimitsConfig  `yaml:"limits" envPrefix:"LIMITS_"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

// JWTConfig holds JWT authentication settings
type JWTConfig struct {
	Issuer              string `yaml:"issuer" env:"ISSUER"`
	PublicKeyURL        string `yaml:"public_key_url" env:"PUBLIC_KEY_URL"`
	PublicKeyRefreshHrs int    `yaml:"public_key_refresh_hours" env:"PUBLIC_KEY_REFRESH_HOURS"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address         string `yaml:"address" env:"ADDRESS"`
	Password        string `yaml:"password" env:"PASSWORD"`
	DB              int    `yaml:"db" env:"DB"`
	BlacklistPrefix string `yaml:"blacklist_prefix" env:"BLACKLIST_PREFIX"`
}

// SessionConfig holds player session settings
type SessionConfig struct {
	MaxPlayers int `yaml:"max_players" env:"MAX_PLAYERS"`
	// CatalogPath points to the item catalog. Empty uses the built-in catalog.
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH"`
	// StarterKit names the kit every new inventory is seeded from. With the
	// built-in catalog it defaults to catalog.DefaultKit; a catalog file has
	// no default kit.
	StarterKit string `yaml:"starter_kit" env:"STARTER_KIT"`
}

// LimitsConfig bounds what a single connection may send
type LimitsConfig struct {
	CommandsPerSecond float64 `yaml:"commands_per_second" env:"COMMANDS_PER_SECOND"`
	CommandBurst      int     `yaml:"command_burst" env:"COMMAND_BURST"`
	MaxMessageSize    int64   `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	// MaxSlots caps the slot count a client can grow its inventory to.
	MaxSlots int `yaml:"max_slots" env:"MAX_SLOTS"`
}

// Load reads configuration from a YAML file, applies STOCKPILE_* environment
// overrides and fills in defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.JWT.PublicKeyRefreshHrs == 0 {
		cfg.JWT.PublicKeyRefreshHrs = 24
	}
	if cfg.Redis.BlacklistPrefix == "" {
		cfg.Redis.BlacklistPrefix = "blacklist:user:"
	}
	if cfg.Session.MaxPlayers == 0 {
		cfg.Session.MaxPlayers = 100
	}
	if cfg.Session.CatalogPath == "" && cfg.Session.StarterKit == "" {
		cfg.Session.StarterKit = catalog.DefaultKit
	}
	if cfg.Limits.CommandsPerSecond == 0 {
		cfg.Limits.CommandsPerSecond = 20
	}
	if cfg.Limits.CommandBurst == 0 {
		cfg.Limits.CommandBurst = 40
	}
	if cfg.Limits.MaxMessageSize == 0 {
		cfg.Limits.MaxMessageSize = 64 * 1024
	}
	if cfg.Limits.MaxSlots == 0 {
		cfg.Limits.MaxSlots = 256
	}
}
