// Package config loads runtime settings from the environment and command-line flags.
//
// Environment variables (NOTESYNC_*) provide defaults; flags override them.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/note-sync/internal/errs"
	"github.com/and161185/note-sync/internal/service"
)

// Config holds settings for both binaries. Unused fields are ignored by each command.
type Config struct {
	RemoteDSN     string `env:"NOTESYNC_REMOTE_DSN"`
	RemoteToken   string `env:"NOTESYNC_REMOTE_TOKEN"`
	TokenKey      string `env:"NOTESYNC_TOKEN_KEY"`
	Account       string `env:"NOTESYNC_ACCOUNT"`
	MigrateRemote bool   `env:"NOTESYNC_MIGRATE_REMOTE,default=false"`

	LocalPath  string `env:"NOTESYNC_LOCAL_PATH,default=notes.db"`
	Passphrase string `env:"NOTESYNC_PASSPHRASE"`

	Tag       string        `env:"NOTESYNC_TAG"`
	Policy    string        `env:"NOTESYNC_POLICY,default=report-first"`
	OpTimeout time.Duration `env:"NOTESYNC_OP_TIMEOUT,default=30s"`

	Interval    time.Duration `env:"NOTESYNC_INTERVAL,default=5m"`
	GRPCAddr    string        `env:"NOTESYNC_GRPC_ADDR,default=127.0.0.1:8081"`
	Reflection  bool          `env:"NOTESYNC_GRPC_REFLECTION,default=false"`
	MetricsAddr string        `env:"NOTESYNC_METRICS_ADDR,default=127.0.0.1:9090"`

	LogLevel string `env:"NOTESYNC_LOG_LEVEL,default=info"`
}

// FromEnv builds a Config from environ (os.Environ format), applying tag defaults.
func FromEnv(environ []string) (*Config, error) {
	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
	}
	var c Config
	if err := env.Unmarshal(es, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
	}
	return &c, nil
}

// Bind registers flags on fs, using the current values as defaults.
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.RemoteDSN, "dsn", c.RemoteDSN, "remote PostgreSQL DSN")
	fs.StringVar(&c.RemoteToken, "token", c.RemoteToken, "remote access token (JWT)")
	fs.StringVar(&c.TokenKey, "token-key", c.TokenKey, "HS256 key to verify the token (empty: parse unverified)")
	fs.StringVar(&c.Account, "account", c.Account, "account UUID (overrides the token)")
	fs.BoolVar(&c.MigrateRemote, "migrate-remote", c.MigrateRemote, "run remote schema migrations before connecting")
	fs.StringVar(&c.LocalPath, "db", c.LocalPath, "local SQLite database path")
	fs.StringVar(&c.Passphrase, "passphrase", c.Passphrase, "seal local note content with this passphrase")
	fs.StringVar(&c.Tag, "tag", c.Tag, "sync tag")
	fs.StringVar(&c.Policy, "policy", c.Policy, "failure policy: report-first | cancel-on-error")
	fs.DurationVar(&c.OpTimeout, "op-timeout", c.OpTimeout, "per-note update timeout (0: none)")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "daemon sync interval")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "gRPC health listen address")
	fs.BoolVar(&c.Reflection, "reflection", c.Reflection, "enable gRPC server reflection (dev only)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "metrics listen address (empty: disabled)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug | info | warn | error")
}

// Load reads the environment, then parses args with a FlagSet named name.
// It returns the positional arguments left after the flags.
func Load(name string, args, environ []string) (*Config, []string, error) {
	c, err := FromEnv(environ)
	if err != nil {
		return nil, nil, err
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c.Bind(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return c, fs.Args(), nil
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	if c.LocalPath == "" {
		return invalid("local db path is required")
	}
	if _, ok := service.ParsePolicy(c.Policy); !ok {
		return invalid("unknown policy %q", c.Policy)
	}
	if c.OpTimeout < 0 {
		return invalid("op-timeout must not be negative")
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return invalid("log level %q", c.LogLevel)
	}
	if c.Account != "" {
		if _, err := uuid.FromString(c.Account); err != nil {
			return invalid("account %q is not a UUID", c.Account)
		}
	}
	return nil
}

// ValidateRemote additionally checks what is needed to reach the remote store.
func (c *Config) ValidateRemote() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.RemoteDSN == "" {
		return invalid("remote dsn is required")
	}
	if c.Account == "" && c.RemoteToken == "" {
		return invalid("either a token or an account is required")
	}
	return nil
}

// ValidateSync additionally checks what a sync pass needs.
func (c *Config) ValidateSync() error {
	if err := c.ValidateRemote(); err != nil {
		return err
	}
	if c.Tag == "" {
		return invalid("sync tag is required")
	}
	return nil
}

// PolicyValue returns the parsed failure policy.
func (c *Config) PolicyValue() service.Policy {
	p, _ := service.ParsePolicy(c.Policy)
	return p
}

// Logger builds a production zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, invalid("log level %q", c.LogLevel)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errs.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
