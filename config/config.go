// Package config loads Phalanx's engine configuration: game-mode presets,
// tick cadence, matchmaking cadence, and activity/command-acceptance
// thresholds. It follows the same load order the rest of the corpus uses:
// built-in defaults, an optional config.json overlay, then environment
// variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// GameMode describes a matchmaking shape: teamCount teams of teamSize
// players each. MatchSize = teamCount * teamSize.
type GameMode struct {
	Name      string `json:"name"`
	TeamCount int    `json:"team_count"`
	TeamSize  int    `json:"team_size"`
}

// MatchSize returns the total number of players required to form a match
// of this mode.
func (m GameMode) MatchSize() int {
	return m.TeamCount * m.TeamSize
}

// Presets for the three built-in game modes.
var (
	Mode1v1 = GameMode{Name: "1v1", TeamCount: 2, TeamSize: 1}
	Mode2v2 = GameMode{Name: "2v2", TeamCount: 2, TeamSize: 2}
	Mode3v3 = GameMode{Name: "3v3", TeamCount: 2, TeamSize: 3}
)

// ResolveGameMode maps a preset name to its GameMode, or reports an error
// for anything else (the caller should fall back to a custom mode from
// config).
func ResolveGameMode(name string) (GameMode, error) {
	switch name {
	case "1v1":
		return Mode1v1, nil
	case "2v2":
		return Mode2v2, nil
	case "3v3":
		return Mode3v3, nil
	default:
		return GameMode{}, fmt.Errorf("unknown game mode preset %q", name)
	}
}

// CORSConfig controls which browser origins may open the WebSocket and hit
// the HTTP surface.
type CORSConfig struct {
	Origin      string `json:"origin"`
	Credentials bool   `json:"credentials"`
}

// GoogleAuthConfig holds the OAuth client identifiers forwarded to the
// external token-exchange collaborator. Phalanx itself never performs the
// exchange; it only validates the resulting token (see auth.TokenValidator).
type GoogleAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// AuthConfig controls the optional auth boundary on connect.
type AuthConfig struct {
	Enabled        bool             `json:"enabled"`
	JWKSURL        string           `json:"jwks_url"`
	Issuer         string           `json:"issuer"`
	Google         GoogleAuthConfig `json:"google"`
	AllowAnonymous bool             `json:"allow_anonymous"`
}

// Config holds every configurable engine parameter.
type Config struct {
	Port int        `json:"port"`
	CORS CORSConfig `json:"cors"`

	TickRate   int      `json:"tick_rate"`
	GameMode   string   `json:"game_mode"`
	CustomMode GameMode `json:"custom_mode"`

	CountdownSeconds       int `json:"countdown_seconds"`
	MatchmakingIntervalMs  int `json:"matchmaking_interval_ms"`
	TimeoutTicks           int `json:"timeout_ticks"`
	DisconnectTicks        int `json:"disconnect_ticks"`
	MaxFutureTicks         int `json:"max_future_ticks"`
	ReconnectHistoryTicks  int `json:"reconnect_history_ticks"`
	HashWindowTicks        int `json:"hash_window_ticks"`
	ConnectionTimeoutMs    int `json:"connection_timeout_ms"`
	MaxNameLength          int `json:"max_name_length"`

	Auth AuthConfig `json:"auth"`

	// DatabaseURL, when set, enables the optional operational history
	// sink (see the history package). Empty disables persistence.
	DatabaseURL string `json:"database_url"`
}

// TickDuration returns the per-tick wall-clock duration for the configured
// tick rate.
func (c *Config) TickDuration() (int64, error) {
	if c.TickRate <= 0 {
		return 0, fmt.Errorf("tick rate must be positive, got %d", c.TickRate)
	}
	return int64(1000 / c.TickRate), nil
}

// ResolveMode returns the effective GameMode: a named preset, or the custom
// mode when GameMode is unset/"custom".
func (c *Config) ResolveMode() (GameMode, error) {
	if c.GameMode == "" || c.GameMode == "custom" {
		if c.CustomMode.TeamCount <= 0 || c.CustomMode.TeamSize <= 0 {
			return GameMode{}, fmt.Errorf("custom game mode requires positive team_count and team_size")
		}
		mode := c.CustomMode
		if mode.Name == "" {
			mode.Name = "custom"
		}
		return mode, nil
	}
	return ResolveGameMode(c.GameMode)
}

// Defaults returns a Config with sensible defaults for every field.
func Defaults() *Config {
	return &Config{
		Port: 8080,
		CORS: CORSConfig{Origin: "*", Credentials: false},

		TickRate: 20,
		GameMode: "1v1",

		CountdownSeconds:      3,
		MatchmakingIntervalMs: 1000,
		TimeoutTicks:          20,
		DisconnectTicks:       60,
		MaxFutureTicks:        200,
		ReconnectHistoryTicks: 300,
		HashWindowTicks:       20,
		ConnectionTimeoutMs:   10000,
		MaxNameLength:         24,

		Auth: AuthConfig{Enabled: false, AllowAnonymous: true},
	}
}

// Load reads configuration from an optional config.json file, then applies
// environment variable overrides. Fields not set in either source retain
// their default values.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			slog.Warn("failed to parse config.json", "tag", "config", "error", err)
		}
	}

	overrideInt(&cfg.Port, "PORT")
	overrideString(&cfg.CORS.Origin, "CORS_ORIGIN")
	overrideBool(&cfg.CORS.Credentials, "CORS_CREDENTIALS")
	overrideInt(&cfg.TickRate, "TICK_RATE")
	overrideString(&cfg.GameMode, "GAME_MODE")
	overrideInt(&cfg.CountdownSeconds, "COUNTDOWN_SECONDS")
	overrideInt(&cfg.MatchmakingIntervalMs, "MATCHMAKING_INTERVAL_MS")
	overrideInt(&cfg.TimeoutTicks, "TIMEOUT_TICKS")
	overrideInt(&cfg.DisconnectTicks, "DISCONNECT_TICKS")
	overrideInt(&cfg.MaxFutureTicks, "MAX_FUTURE_TICKS")
	overrideInt(&cfg.ReconnectHistoryTicks, "RECONNECT_HISTORY_TICKS")
	overrideInt(&cfg.HashWindowTicks, "HASH_WINDOW_TICKS")
	overrideInt(&cfg.ConnectionTimeoutMs, "CONNECTION_TIMEOUT_MS")
	overrideInt(&cfg.MaxNameLength, "MAX_NAME_LENGTH")
	overrideBool(&cfg.Auth.Enabled, "AUTH_ENABLED")
	overrideString(&cfg.Auth.JWKSURL, "AUTH_JWKS_URL")
	overrideString(&cfg.Auth.Issuer, "AUTH_ISSUER")
	overrideString(&cfg.Auth.Google.ClientID, "AUTH_GOOGLE_CLIENT_ID")
	overrideString(&cfg.Auth.Google.ClientSecret, "AUTH_GOOGLE_CLIENT_SECRET")
	overrideBool(&cfg.Auth.AllowAnonymous, "AUTH_ALLOW_ANONYMOUS")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")

	return cfg
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			slog.Warn("invalid integer env override", "tag", "config", "key", envKey, "value", val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func overrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*field = b
		} else {
			slog.Warn("invalid boolean env override", "tag", "config", "key", envKey, "value", val)
		}
	}
}
