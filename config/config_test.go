package config

import (
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.TickRate != 20 {
		t.Errorf("TickRate = %d, want 20", cfg.TickRate)
	}
	if cfg.MaxFutureTicks != 200 {
		t.Errorf("MaxFutureTicks = %d, want 200", cfg.MaxFutureTicks)
	}
	if cfg.ReconnectHistoryTicks != 300 {
		t.Errorf("ReconnectHistoryTicks = %d, want 300", cfg.ReconnectHistoryTicks)
	}
	if !cfg.Auth.AllowAnonymous {
		t.Error("AllowAnonymous should default to true when auth disabled")
	}
}

func TestTickDuration(t *testing.T) {
	cfg := Defaults()
	cfg.TickRate = 20
	d, err := cfg.TickDuration()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 50 {
		t.Errorf("TickDuration = %d, want 50", d)
	}

	cfg.TickRate = 0
	if _, err := cfg.TickDuration(); err == nil {
		t.Error("expected error for zero tick rate")
	}
}

func TestResolveGameModePresets(t *testing.T) {
	cases := map[string]int{"1v1": 2, "2v2": 4, "3v3": 6}
	for name, size := range cases {
		mode, err := ResolveGameMode(name)
		if err != nil {
			t.Fatalf("ResolveGameMode(%q): %v", name, err)
		}
		if mode.MatchSize() != size {
			t.Errorf("%s MatchSize = %d, want %d", name, mode.MatchSize(), size)
		}
	}

	if _, err := ResolveGameMode("5v5"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestResolveModeCustom(t *testing.T) {
	cfg := Defaults()
	cfg.GameMode = "custom"
	cfg.CustomMode = GameMode{TeamCount: 3, TeamSize: 4}
	mode, err := cfg.ResolveMode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode.MatchSize() != 12 {
		t.Errorf("MatchSize = %d, want 12", mode.MatchSize())
	}

	cfg.CustomMode = GameMode{}
	if _, err := cfg.ResolveMode(); err == nil {
		t.Error("expected error for incomplete custom mode")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Setenv("TICK_RATE", "30")
	os.Setenv("GAME_MODE", "2v2")
	defer os.Unsetenv("TICK_RATE")
	defer os.Unsetenv("GAME_MODE")

	cfg := Load()
	if cfg.TickRate != 30 {
		t.Errorf("TickRate = %d, want 30", cfg.TickRate)
	}
	if cfg.GameMode != "2v2" {
		t.Errorf("GameMode = %q, want 2v2", cfg.GameMode)
	}
}
