package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

type Server struct {
	Addr           string `yaml:"addr"`
	GraphQLPath    string `yaml:"graphql_path"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

type APIKey struct {
	ID       string            `yaml:"id"`
	Secret   string            `yaml:"secret"`
	Metadata map[string]string `yaml:"metadata"`
}

// Roles reads the comma separated "roles" metadata entry.
func (k APIKey) Roles() []string {
	var out []string
	for _, r := range strings.Split(k.Metadata["roles"], ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// RolesByKeyID collects the roles of every configured key.
func (a Auth) RolesByKeyID() map[string][]string {
	out := make(map[string][]string)
	for _, k := range a.Keys {
		if roles := k.Roles(); k.ID != "" && len(roles) > 0 {
			out[k.ID] = roles
		}
	}
	return out
}

type Auth struct {
	Header         string   `yaml:"header"`
	AllowAnonymous bool     `yaml:"allow_anonymous"`
	TrustXFF       bool     `yaml:"trust_forwarded_for"`
	Keys           []APIKey `yaml:"keys"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Postgres struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type Storage struct {
	Counters        string   `yaml:"counters"` // "memory" | "redis"
	SweepIntervalMS int      `yaml:"sweep_interval_ms"`
	Redis           Redis    `yaml:"redis"`
	Books           string   `yaml:"books"` // "memory" | "postgres"
	Postgres        Postgres `yaml:"postgres"`
}

// Throttle maps named scopes to rates and attaches them to resolvers.
type Throttle struct {
	OnStoreError string              `yaml:"on_store_error"` // "closed" | "open"
	Rates        map[string]string   `yaml:"rates"`
	Endpoint     []string            `yaml:"endpoint"`
	Resolvers    map[string][]string `yaml:"resolvers"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Observability Observability `yaml:"observability"`
	Auth          Auth          `yaml:"auth"`
	Storage       Storage       `yaml:"storage"`
	Throttle      Throttle      `yaml:"throttle"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 1 << 20
	}
	return s.MaxBodyBytes
} // default 1MB

func (s Storage) SweepInterval() time.Duration {
	if s.SweepIntervalMS <= 0 {
		return time.Minute
	}
	return time.Duration(s.SweepIntervalMS) * time.Millisecond
}

// Path returns the config file location: GATEQL_CONFIG, else def.
func Path(def string) string {
	if p := os.Getenv("GATEQL_CONFIG"); p != "" {
		return p
	}
	return def
}

// LoadEnv reads an optional .env file into the process environment.
// Variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return pkgerrors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, pkgerrors.Wrapf(err, "parse %s", path)
	}
	cfg.applyEnv()

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.GraphQLPath == "" {
		cfg.Server.GraphQLPath = "/graphql"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}
	if cfg.Storage.Counters == "" {
		cfg.Storage.Counters = "memory"
	}
	if cfg.Storage.Books == "" {
		cfg.Storage.Books = "memory"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "throttle"
	}
	if cfg.Storage.Postgres.MaxConns <= 0 {
		cfg.Storage.Postgres.MaxConns = 10
	}
	if cfg.Throttle.OnStoreError == "" {
		cfg.Throttle.OnStoreError = "closed"
	}

	switch cfg.Storage.Counters {
	case "memory", "redis":
	default:
		return nil, pkgerrors.Errorf("storage.counters: unknown backend %q", cfg.Storage.Counters)
	}
	switch cfg.Storage.Books {
	case "memory", "postgres":
	default:
		return nil, pkgerrors.Errorf("storage.books: unknown backend %q", cfg.Storage.Books)
	}
	if _, err := ratelimit.ParseFailureMode(cfg.Throttle.OnStoreError); err != nil {
		return nil, pkgerrors.Wrap(err, "throttle.on_store_error")
	}
	return &cfg, nil
}

func (c *Root) applyEnv() {
	if v := os.Getenv("GATEQL_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("GATEQL_LOG_LEVEL"); v != "" {
		c.Observability.LogLevel = v
	}
	if v := os.Getenv("GATEQL_REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = v
		c.Storage.Counters = "redis"
	}
	if v := os.Getenv("GATEQL_REDIS_PASSWORD"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := os.Getenv("GATEQL_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Storage.Redis.DB = n
		}
	}
	if v := os.Getenv("GATEQL_POSTGRES_DSN"); v != "" {
		c.Storage.Postgres.DSN = v
		c.Storage.Books = "postgres"
	}
}

func (c *Root) FailureMode() ratelimit.FailureMode {
	m, _ := ratelimit.ParseFailureMode(c.Throttle.OnStoreError)
	return m
}

// Policies resolves the throttle section into ordered policy lists. The
// endpoint list is returned separately; resolvers maps identity to policies.
func (c *Root) Policies() (resolvers map[string][]ratelimit.Policy, endpoint []ratelimit.Policy, err error) {
	lookup := func(resolver string, scopes []string) ([]ratelimit.Policy, error) {
		out := make([]ratelimit.Policy, 0, len(scopes))
		for _, scope := range scopes {
			rate, ok := c.Throttle.Rates[scope]
			if !ok {
				return nil, &ratelimit.ConfigurationError{Resolver: resolver, Scope: scope, Reason: "no rate defined for scope"}
			}
			p, err := ratelimit.ParsePolicy(scope, rate)
			if err != nil {
				var ce *ratelimit.ConfigurationError
				if errors.As(err, &ce) {
					ce.Resolver = resolver
				}
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}

	resolvers = make(map[string][]ratelimit.Policy, len(c.Throttle.Resolvers))
	for resolver, scopes := range c.Throttle.Resolvers {
		ps, err := lookup(resolver, scopes)
		if err != nil {
			return nil, nil, err
		}
		resolvers[resolver] = ps
	}
	if endpoint, err = lookup("", c.Throttle.Endpoint); err != nil {
		return nil, nil, err
	}
	return resolvers, endpoint, nil
}
