package one

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	oaerrors "github.com/go-openapi/errors"
	"github.com/go-openapi/validate"
)

// Environment variables read by [Config.ApplyEnv].
const (
	EnvEndpoint = "ONE_XMLRPC"
	EnvSession  = "ONE_SESSION"
	EnvAuthFile = "ONE_AUTH"
	EnvTimeout  = "ONE_TIMEOUT"
)

// DefaultEndpoint is the endpoint of a local front-end.
const DefaultEndpoint = "http://localhost:2633/RPC2"

// Config describes how to reach and authenticate against an endpoint.
//
// A config file looks like:
//
//	endpoint = "https://frontend:2633/RPC2"
//	auth_file = "/var/lib/one/.one/one_auth"
//	timeout = "45s"
//
//	[tls]
//	ca = "/etc/one/ca.pem"
type Config struct {
	Endpoint  string
	Session   string
	AuthFile  string
	Namespace string
	Timeout   time.Duration
	TLS       *TLSConfig
}

type fileConfig struct {
	Endpoint  string     `toml:"endpoint"`
	Session   string     `toml:"session"`
	AuthFile  string     `toml:"auth_file"`
	Namespace string     `toml:"namespace"`
	Timeout   string     `toml:"timeout"`
	TLS       *TLSConfig `toml:"tls"`
}

// DefaultConfig returns a config for a local front-end using the
// conventional auth file in the user's home.
func DefaultConfig() Config {
	cfg := Config{
		Endpoint:  DefaultEndpoint,
		Namespace: defaultNamespace,
		Timeout:   defaultTimeout,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.AuthFile = filepath.Join(home, ".one", "one_auth")
	}
	return cfg
}

// LoadConfig reads a TOML config file on top of [DefaultConfig]. Keys absent
// from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("endpoint") {
		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("session") {
		cfg.Session = strings.TrimSpace(raw.Session)
	}
	if meta.IsDefined("auth_file") {
		cfg.AuthFile = strings.TrimSpace(raw.AuthFile)
	}
	if meta.IsDefined("namespace") {
		cfg.Namespace = strings.TrimSpace(raw.Namespace)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("tls") {
		cfg.TLS = raw.TLS
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the ONE_* environment variables that are set.
func (cfg *Config) ApplyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvEndpoint)); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSession)); v != "" {
		cfg.Session = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuthFile)); v != "" {
		cfg.AuthFile = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}
	return nil
}

// ConfigFromEnv returns [DefaultConfig] with environment overrides applied.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolveSession returns Session, or the first line of AuthFile when no
// session is set. A missing auth file resolves to an empty session.
func (cfg Config) ResolveSession() (string, error) {
	if cfg.Session != "" {
		return cfg.Session, nil
	}
	if cfg.AuthFile == "" {
		return "", nil
	}
	f, err := os.Open(cfg.AuthFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read auth file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read auth file: %w", err)
	}
	return "", nil
}

// Validate checks that the config can produce a working client. session is
// the resolved session.
func (cfg Config) Validate(session string) error {
	var errs []error
	if err := validate.RequiredString("endpoint", "config", cfg.Endpoint); err != nil {
		errs = append(errs, err)
	}
	if err := validate.RequiredString("session", "config", session); err != nil {
		errs = append(errs, err)
	}
	if err := validate.RequiredString("namespace", "config", cfg.Namespace); err != nil {
		errs = append(errs, err)
	}
	if cfg.Timeout < 0 {
		errs = append(errs, oaerrors.New(http.StatusUnprocessableEntity, "timeout in config must not be negative"))
	}
	if len(errs) > 0 {
		return oaerrors.CompositeValidationError(errs...)
	}
	return nil
}

// NewClientFromConfig resolves the session, validates cfg and builds a
// client. opts are applied after the config.
func NewClientFromConfig(cfg Config, opts ...Option) (*Client, error) {
	session, err := cfg.ResolveSession()
	if err != nil {
		return nil, newError(KindGeneric, "cannot resolve session", 0, err)
	}
	if err := cfg.Validate(session); err != nil {
		return nil, newError(KindGeneric, "invalid config", 0, err)
	}

	base := []Option{
		WithNamespace(cfg.Namespace),
		WithTimeout(cfg.Timeout),
	}
	if cfg.TLS != nil {
		base = append(base, WithTLS(*cfg.TLS))
	}
	return NewClient(cfg.Endpoint, session, append(base, opts...)...)
}
