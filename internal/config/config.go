package config

import (
	"errors"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config contains runtime configuration required by the service.
type Config struct {
	DBURL      string `env:"DB_URL,required"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogMode    string `env:"LOG_MODE" envDefault:"dev"`

	// API_KEYS format: "user1:key1,user2:key2". Parsed into APIKeys below.
	APIKeysRaw string `env:"API_KEYS"`

	APIKeys map[string]string // apiKey -> userID, derived from APIKeysRaw
}

// Load reads required values from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	keys, err := parseAPIKeys(cfg.APIKeysRaw)
	if err != nil {
		return Config{}, err
	}
	cfg.APIKeys = keys

	return cfg, nil
}

// parseAPIKeys expands "user:key,user:key" into apiKey -> userID. In
// production this mapping would come from the identity provider; the map is
// the narrow interface the service consumes authentication through.
func parseAPIKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}

	for _, p := range strings.Split(strings.TrimSpace(raw), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`API_KEYS must be "user:key,user:key"`)
		}
		user := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if user == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "user:key,user:key"`)
		}
		keys[key] = user
	}

	// Local dev fallback so the service runs out-of-the-box.
	if len(keys) == 0 {
		keys["learner-key-123"] = "learner1"
	}

	return keys, nil
}
