package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"yacht/internal/app"
	"yacht/internal/domain"
)

// EnvPrefix is prepended to every environment variable the server reads
const EnvPrefix = "YACHT"

// DevJWTSecret signs identity tokens when no secret is configured.
// Production refuses to start with it.
const DevJWTSecret = "dev_secret_change_me"

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Game    GameConfig
	Auth    AuthConfig
	Storage StorageConfig
	Logging LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string
	Host           string
	Env            string // "development" or "production"
	PublicURL      string
	AllowedOrigins []string
}

// GameConfig holds game-related configuration
type GameConfig struct {
	MaxPlayers        int
	RoomCodeLength    int
	CodeAttempts      int
	RandomMatchWindow int
	TurnDuration      time.Duration
	AutoStartDuration time.Duration
	TickInterval      time.Duration
	RollSettle        time.Duration
	WriteTimeout      time.Duration
}

// AuthConfig holds identity token configuration
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	ResultsDB             string
	FinishedRoomRetention time.Duration
	CleanupInterval       time.Duration
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// RegisterFlags adds every configuration flag to fs. Each flag can also be
// set through YACHT_<FLAG> with dashes replaced by underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringP("host", "b", "0.0.0.0", "address to bind to (env: YACHT_HOST)")
	fs.StringP("port", "p", "8080", "port to listen on (env: YACHT_PORT)")
	fs.String("env", "development", "runtime environment, development or production (env: YACHT_ENV)")
	fs.String("public-url", "", "external base URL used in invite links (env: YACHT_PUBLIC_URL)")
	fs.String("allowed-origins", "*", "comma separated CORS origins (env: YACHT_ALLOWED_ORIGINS)")

	fs.Int("max-players", domain.DefaultMaxPlayers, "players per room (env: YACHT_MAX_PLAYERS)")
	fs.Int("room-code-length", app.DefaultRoomCodeLength, "digits in a room code, 4-6 (env: YACHT_ROOM_CODE_LENGTH)")
	fs.Int("code-attempts", app.DefaultCodeAttempts, "room code allocation attempts (env: YACHT_CODE_ATTEMPTS)")
	fs.Int("random-match-window", app.DefaultRandomMatchWindow, "waiting rooms scanned by random match (env: YACHT_RANDOM_MATCH_WINDOW)")
	fs.Duration("turn-duration", 45*time.Second, "time a player has to finish a turn (env: YACHT_TURN_DURATION)")
	fs.Duration("auto-start-duration", 120*time.Second, "waiting room countdown before the game starts (env: YACHT_AUTO_START_DURATION)")
	fs.Duration("tick-interval", time.Second, "countdown tick interval (env: YACHT_TICK_INTERVAL)")
	fs.Duration("roll-settle", 0, "time dice stay in flight after a roll (env: YACHT_ROLL_SETTLE)")
	fs.Duration("write-timeout", 5*time.Second, "timeout for background store writes (env: YACHT_WRITE_TIMEOUT)")

	fs.String("jwt-secret", "", "secret used to sign identity tokens (env: YACHT_JWT_SECRET)")
	fs.String("jwt-issuer", "yacht", "issuer claim of identity tokens (env: YACHT_JWT_ISSUER)")
	fs.Duration("token-ttl", 30*24*time.Hour, "identity token lifetime (env: YACHT_TOKEN_TTL)")

	fs.String("results-db", "data/results.db", "path to the results database (env: YACHT_RESULTS_DB)")
	fs.Duration("finished-room-retention", app.DefaultFinishedRoomRetention, "how long finished rooms stay readable (env: YACHT_FINISHED_ROOM_RETENTION)")
	fs.Duration("cleanup-interval", app.DefaultCleanupInterval, "finished room sweep interval (env: YACHT_CLEANUP_INTERVAL)")

	fs.String("log-level", "info", "log level (env: YACHT_LOG_LEVEL)")
	fs.String("log-format", "console", "log format, console or json (env: YACHT_LOG_FORMAT)")
}

// Load reads configuration from a .env file, the environment and the
// flags registered by RegisterFlags, in increasing precedence
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("port"),
			Host:           v.GetString("host"),
			Env:            v.GetString("env"),
			PublicURL:      strings.TrimRight(v.GetString("public-url"), "/"),
			AllowedOrigins: splitList(v.GetString("allowed-origins")),
		},
		Game: GameConfig{
			MaxPlayers:        v.GetInt("max-players"),
			RoomCodeLength:    v.GetInt("room-code-length"),
			CodeAttempts:      v.GetInt("code-attempts"),
			RandomMatchWindow: v.GetInt("random-match-window"),
			TurnDuration:      v.GetDuration("turn-duration"),
			AutoStartDuration: v.GetDuration("auto-start-duration"),
			TickInterval:      v.GetDuration("tick-interval"),
			RollSettle:        v.GetDuration("roll-settle"),
			WriteTimeout:      v.GetDuration("write-timeout"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("jwt-secret"),
			Issuer:    v.GetString("jwt-issuer"),
			TokenTTL:  v.GetDuration("token-ttl"),
		},
		Storage: StorageConfig{
			ResultsDB:             v.GetString("results-db"),
			FinishedRoomRetention: v.GetDuration("finished-room-retention"),
			CleanupInterval:       v.GetDuration("cleanup-interval"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("log-level"),
			Format: v.GetString("log-format"),
		},
	}

	if cfg.Auth.JWTSecret == "" && !cfg.IsProduction() {
		cfg.Auth.JWTSecret = DevJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at runtime
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %s", c.Server.Port)
	}
	if c.Server.Env != "development" && c.Server.Env != "production" {
		return fmt.Errorf("invalid env %q (must be development or production)", c.Server.Env)
	}
	if c.Game.RoomCodeLength < 4 || c.Game.RoomCodeLength > 6 {
		return fmt.Errorf("invalid room code length (must be between 4-6 inclusive): %d", c.Game.RoomCodeLength)
	}
	if c.Game.MaxPlayers < domain.MinPlayers {
		return fmt.Errorf("max players must be at least %d", domain.MinPlayers)
	}
	if c.Game.CodeAttempts < 1 {
		return errors.New("code attempts must be positive")
	}
	if c.Game.TurnDuration <= 0 || c.Game.TickInterval <= 0 {
		return errors.New("turn duration and tick interval must be positive")
	}
	if c.Game.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("a jwt secret is required in production")
	}
	if c.IsProduction() && c.Auth.JWTSecret == DevJWTSecret {
		return errors.New("the development jwt secret cannot be used in production")
	}
	if c.Storage.ResultsDB == "" {
		return errors.New("results database path is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// Settings converts the game group into session settings
func (c *Config) Settings() app.Settings {
	return app.Settings{
		MaxPlayers:        c.Game.MaxPlayers,
		CodeLength:        c.Game.RoomCodeLength,
		CodeAttempts:      c.Game.CodeAttempts,
		RandomMatchWindow: c.Game.RandomMatchWindow,
		TurnDuration:      c.Game.TurnDuration,
		AutoStartDuration: c.Game.AutoStartDuration,
		TickInterval:      c.Game.TickInterval,
		RollSettle:        c.Game.RollSettle,
		WriteTimeout:      c.Game.WriteTimeout,
	}
}

// HubConfig returns the configuration of the session hub
func (c *Config) HubConfig() app.HubConfig {
	return app.HubConfig{
		Settings:              c.Settings(),
		FinishedRoomRetention: c.Storage.FinishedRoomRetention,
		CleanupInterval:       c.Storage.CleanupInterval,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
