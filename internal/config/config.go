// Package config loads server and projection settings from a TOML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/todmy/embedscope/internal/auth"
	"github.com/todmy/embedscope/internal/explorer"
	"github.com/todmy/embedscope/internal/optimizer"
	"github.com/todmy/embedscope/internal/tsne"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full application configuration
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Auth       AuthConfig       `toml:"auth"`
	Projection ProjectionConfig `toml:"projection"`
	Sessions   SessionsConfig   `toml:"sessions"`
	Log        LogConfig        `toml:"log"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
}

// DatabaseConfig holds the PostgreSQL connection. An empty URL disables storage.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// AuthConfig holds token settings. An empty APIKeyHash disables authentication.
type AuthConfig struct {
	JWTSecret     string `toml:"jwt_secret"`
	APIKeyHash    string `toml:"api_key_hash"`
	TokenDuration string `toml:"token_duration"`
}

type ProjectionConfig struct {
	Engine        string  `toml:"engine"`
	Perplexity    float64 `toml:"perplexity"`
	Epsilon       float64 `toml:"epsilon"`
	Dim           int     `toml:"dim"`
	Seed          int64   `toml:"seed"`
	MaxIter       int     `toml:"max_iter"`
	StopTolerance float64 `toml:"stop_tolerance"`
	UsePCA        bool    `toml:"use_pca"`
	PCADimension  int     `toml:"pca_dimension"`
	FocusSteps    int     `toml:"focus_steps"`
	MaxPoints     int     `toml:"max_points"`
}

type SessionsConfig struct {
	Max int `toml:"max"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	session := explorer.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:*", "https://*"},
			MaxBodyBytes:   32 << 20,
		},
		Auth: AuthConfig{
			JWTSecret:     auth.DefaultConfig().SecretKey,
			TokenDuration: auth.DefaultConfig().TokenDuration.String(),
		},
		Projection: ProjectionConfig{
			Engine:        session.Engine.String(),
			Perplexity:    session.TSNE.Perplexity,
			Epsilon:       session.TSNE.Epsilon,
			Dim:           session.Dim,
			Seed:          session.TSNE.RandomSeed,
			MaxIter:       session.MaxIter,
			StopTolerance: session.StopTolerance,
			UsePCA:        session.UsePCA,
			PCADimension:  session.PCADimension,
			FocusSteps:    session.FocusSteps,
			MaxPoints:     session.MaxPoints,
		},
		Sessions: SessionsConfig{Max: 64},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: PORT=%q", ErrInvalidConfig, port)
		}
		c.Server.Port = p
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if hash := os.Getenv("API_KEY_HASH"); hash != "" {
		c.Auth.APIKeyHash = hash
	}
	return nil
}

// Validate checks value ranges and names
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: server.max_body_bytes must be positive", ErrInvalidConfig)
	}
	if _, err := optimizer.ParseEngine(c.Projection.Engine); err != nil {
		return fmt.Errorf("%w: projection.engine: %w", ErrInvalidConfig, err)
	}
	if c.Projection.Perplexity <= 0 {
		return fmt.Errorf("%w: projection.perplexity must be positive", ErrInvalidConfig)
	}
	if c.Projection.Epsilon <= 0 {
		return fmt.Errorf("%w: projection.epsilon must be positive", ErrInvalidConfig)
	}
	if c.Projection.Dim <= 0 {
		return fmt.Errorf("%w: projection.dim must be positive", ErrInvalidConfig)
	}
	if c.Projection.MaxIter <= 0 || c.Projection.StopTolerance <= 0 {
		return fmt.Errorf("%w: projection.max_iter and stop_tolerance must be positive", ErrInvalidConfig)
	}
	if c.Projection.MaxPoints <= 0 {
		return fmt.Errorf("%w: projection.max_points must be positive", ErrInvalidConfig)
	}
	if _, err := c.Auth.Duration(); err != nil {
		return err
	}
	// the built-in secret is public
	if c.Auth.Enabled() && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == auth.DefaultConfig().SecretKey) {
		return fmt.Errorf("%w: auth.jwt_secret must be set when api_key_hash is configured", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}

// Duration parses TokenDuration
func (a AuthConfig) Duration() (time.Duration, error) {
	if a.TokenDuration == "" {
		return auth.DefaultConfig().TokenDuration, nil
	}
	d, err := time.ParseDuration(a.TokenDuration)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: auth.token_duration %q", ErrInvalidConfig, a.TokenDuration)
	}
	return d, nil
}

// Enabled reports whether API key authentication is configured
func (a AuthConfig) Enabled() bool {
	return a.APIKeyHash != ""
}

// Service returns the auth settings for the token service
func (a AuthConfig) Service() (auth.Config, error) {
	d, err := a.Duration()
	if err != nil {
		return auth.Config{}, err
	}
	return auth.Config{
		SecretKey:     a.JWTSecret,
		APIKeyHash:    a.APIKeyHash,
		TokenDuration: d,
	}, nil
}

// Explorer converts the projection section into session settings
func (p ProjectionConfig) Explorer() (explorer.Config, error) {
	engine, err := optimizer.ParseEngine(p.Engine)
	if err != nil {
		return explorer.Config{}, err
	}

	ts := tsne.DefaultConfig()
	ts.Perplexity = p.Perplexity
	ts.Epsilon = p.Epsilon
	ts.Dim = p.Dim
	ts.RandomSeed = p.Seed

	return explorer.Config{
		Engine:        engine,
		TSNE:          ts,
		Dim:           p.Dim,
		MaxIter:       p.MaxIter,
		StopTolerance: p.StopTolerance,
		UsePCA:        p.UsePCA,
		PCADimension:  p.PCADimension,
		FocusSteps:    p.FocusSteps,
		MaxPoints:     p.MaxPoints,
	}, nil
}

// LogLevel returns the parsed log level, info when unset
func (l LogConfig) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || l.Level == "" {
		return zerolog.InfoLevel
	}
	return level
}
