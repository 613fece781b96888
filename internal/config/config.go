// Package config resolves nostrcache settings from flags, environment
// variables and .env files, and validates them against a CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/nostrcache/internal/retention"
	"github.com/roach88/nostrcache/internal/store"
	"github.com/roach88/nostrcache/internal/thread"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment variable, e.g. NOSTRCACHE_DB.
const EnvPrefix = "nostrcache"

// Keys. Flags use the same names.
const (
	KeyDB             = "db"
	KeyInMemory       = "in-memory"
	KeyMarker         = "marker"
	KeyFollowDepth    = "follow-depth"
	KeyReferenceDepth = "reference-depth"
	KeyCurrentUser    = "current-user"
	KeyPositional     = "positional-replies"
)

// DefaultDB is the database file used when none is configured.
const DefaultDB = "nostrcache.sqlite"

// Config is the resolved configuration.
type Config struct {
	DB             string `json:"db"`
	InMemory       bool   `json:"in_memory"`
	Marker         string `json:"marker"`
	FollowDepth    int    `json:"follow_depth"`
	ReferenceDepth int    `json:"reference_depth"`
	CurrentUser    string `json:"current_user"`
	Positional     bool   `json:"positional"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := retention.DefaultPolicy()
	return Config{
		DB:             DefaultDB,
		FollowDepth:    p.FollowDepth,
		ReferenceDepth: p.ReferenceDepth,
		Positional:     thread.DefaultPolicy().Positional,
	}
}

// LoadEnvFiles loads .env and .env.local from the working directory if
// present. Variables already set in the environment win.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// New returns a viper instance reading NOSTRCACHE_* variables, with the
// defaults registered.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault(KeyDB, d.DB)
	v.SetDefault(KeyInMemory, d.InMemory)
	v.SetDefault(KeyMarker, d.Marker)
	v.SetDefault(KeyFollowDepth, d.FollowDepth)
	v.SetDefault(KeyReferenceDepth, d.ReferenceDepth)
	v.SetDefault(KeyCurrentUser, d.CurrentUser)
	v.SetDefault(KeyPositional, d.Positional)
	return v
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(KeyDB, d.DB, "SQLite database file")
	fs.Bool(KeyInMemory, d.InMemory, "use an ephemeral in-memory store")
	fs.String(KeyMarker, d.Marker, "schema version marker file (default: next to the database)")
	fs.Int(KeyFollowDepth, d.FollowDepth, "follow hops kept by cleanup")
	fs.Int(KeyReferenceDepth, d.ReferenceDepth, "reference hops kept by cleanup")
	fs.String(KeyCurrentUser, d.CurrentUser, "hex public key of the current user")
	fs.Bool(KeyPositional, d.Positional, "classify unmarked e tags positionally")
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		DB:             v.GetString(KeyDB),
		InMemory:       v.GetBool(KeyInMemory),
		Marker:         v.GetString(KeyMarker),
		FollowDepth:    v.GetInt(KeyFollowDepth),
		ReferenceDepth: v.GetInt(KeyReferenceDepth),
		CurrentUser:    strings.ToLower(strings.TrimSpace(v.GetString(KeyCurrentUser))),
		Positional:     v.GetBool(KeyPositional),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	val := schema.Unify(ctx.Encode(c))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if !c.InMemory && c.DB == "" {
		return errors.New("invalid config: db is required unless in-memory is set")
	}
	return nil
}

// StoreOptions converts the configuration to store options.
func (c Config) StoreOptions() store.Options {
	opts := store.Options{Path: c.DB, InMemory: c.InMemory}
	if c.Marker != "" {
		opts.Marker = store.NewFileMarker(c.Marker)
	}
	return opts
}

// Retention returns the retention policy.
func (c Config) Retention() retention.Policy {
	return retention.Policy{FollowDepth: c.FollowDepth, ReferenceDepth: c.ReferenceDepth}
}

// Thread returns the reply classification policy.
func (c Config) Thread() thread.Policy {
	return thread.Policy{Positional: c.Positional}
}
