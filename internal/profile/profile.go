// Package profile resolves runtime configuration from the environment.
package profile

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the server's resolved configuration.
type Profile struct {
	// Addr is the HTTP listen address.
	Addr string
	// Data is the directory for local state (sqlite database, vector index).
	Data string
	// Driver selects the storage engine: "sqlite" or "postgres".
	Driver string
	// DSN is the database connection string. Defaults to a sqlite file
	// under Data when empty.
	DSN string
	// Model is the default generation model for new conversations.
	Model string
	// APIKey authenticates against the generation service. Empty disables
	// generation-dependent endpoints' upstream calls where a local
	// fallback exists.
	APIKey string
	// BaseURL overrides the generation service endpoint, mainly for tests.
	BaseURL string
	// Embeddings enables the optional semantic message index.
	Embeddings bool
}

// Load reads a local .env (if present) and the VERTEX_-prefixed environment.
func Load() (*Profile, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("vertex")
	v.AutomaticEnv()
	v.SetDefault("addr", ":8081")
	v.SetDefault("data", "./data")
	v.SetDefault("driver", "sqlite")
	v.SetDefault("model", "gemini-2.0-flash")

	p := &Profile{
		Addr:       v.GetString("addr"),
		Data:       v.GetString("data"),
		Driver:     v.GetString("driver"),
		DSN:        v.GetString("dsn"),
		Model:      v.GetString("model"),
		APIKey:     v.GetString("api_key"),
		BaseURL:    v.GetString("base_url"),
		Embeddings: v.GetBool("embeddings"),
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return nil, errors.Errorf("unsupported driver %q", p.Driver)
	}
	if p.DSN == "" {
		if p.Driver == "postgres" {
			return nil, errors.New("VERTEX_DSN required for the postgres driver")
		}
		p.DSN = filepath.Join(p.Data, "vertex.db")
	}
	return p, nil
}
