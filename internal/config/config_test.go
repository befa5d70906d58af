package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GetAddr() != "0.0.0.0:8080" {
		t.Errorf("GetAddr() = %q", cfg.GetAddr())
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Errorf("expected development env, got %q", cfg.Server.Env)
	}
	if cfg.Game.MaxPlayers != 4 || cfg.Game.RoomCodeLength != 6 {
		t.Errorf("game = %+v", cfg.Game)
	}
	if cfg.Game.TurnDuration != 45*time.Second || cfg.Game.AutoStartDuration != 120*time.Second {
		t.Errorf("durations = %v / %v", cfg.Game.TurnDuration, cfg.Game.AutoStartDuration)
	}
	if cfg.Auth.JWTSecret != DevJWTSecret {
		t.Errorf("expected development secret, got %q", cfg.Auth.JWTSecret)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}

	s := cfg.Settings()
	if s.CodeLength != 6 || s.TickInterval != time.Second || s.MaxPlayers != 4 {
		t.Errorf("Settings() = %+v", s)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("YACHT_PORT", "9000")
	t.Setenv("YACHT_ROOM_CODE_LENGTH", "4")
	t.Setenv("YACHT_TURN_DURATION", "30s")
	t.Setenv("YACHT_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("YACHT_PUBLIC_URL", "https://yacht.example/")

	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Game.RoomCodeLength != 4 {
		t.Errorf("RoomCodeLength = %d", cfg.Game.RoomCodeLength)
	}
	if cfg.Game.TurnDuration != 30*time.Second {
		t.Errorf("TurnDuration = %v", cfg.Game.TurnDuration)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.PublicURL != "https://yacht.example" {
		t.Errorf("PublicURL = %q", cfg.Server.PublicURL)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("YACHT_PORT", "9000")

	cfg, err := Load(newFlags(t, "--port", "9100"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("Port = %q, want flag value", cfg.Server.Port)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"YACHT_PORT": "0"}},
		{"bad env", map[string]string{"YACHT_ENV": "staging"}},
		{"short code", map[string]string{"YACHT_ROOM_CODE_LENGTH": "3"}},
		{"long code", map[string]string{"YACHT_ROOM_CODE_LENGTH": "7"}},
		{"one player room", map[string]string{"YACHT_MAX_PLAYERS": "1"}},
		{"zero write timeout", map[string]string{"YACHT_WRITE_TIMEOUT": "0s"}},
		{"negative write timeout", map[string]string{"YACHT_WRITE_TIMEOUT": "-1s"}},
		{"production without secret", map[string]string{"YACHT_ENV": "production"}},
		{"production with dev secret", map[string]string{"YACHT_ENV": "production", "YACHT_JWT_SECRET": DevJWTSecret}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(newFlags(t)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestProductionWithSecret(t *testing.T) {
	t.Setenv("YACHT_ENV", "production")
	t.Setenv("YACHT_JWT_SECRET", "s3cret")

	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsProduction() || cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("unexpected config: env=%q secret=%q", cfg.Server.Env, cfg.Auth.JWTSecret)
	}
}
