package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_APPLICATION_ID", "app")
	t.Setenv("DEFAULT_VOLUME", "80")
	t.Setenv("RADIO_UPDATE_INTERVAL", "10s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DefaultVolume != 80 {
		t.Errorf("expected volume 80, got %d", cfg.DefaultVolume)
	}
	if cfg.DefaultPasses != 2 {
		t.Errorf("expected default passes 2, got %d", cfg.DefaultPasses)
	}
	if cfg.MaxQueueSize != 500 {
		t.Errorf("expected max queue size 500, got %d", cfg.MaxQueueSize)
	}
	if cfg.DownloadDir != "downloads" {
		t.Errorf("expected download dir 'downloads', got %q", cfg.DownloadDir)
	}
	if cfg.RadioUpdateInterval != 10*time.Second {
		t.Errorf("expected 10s update interval, got %s", cfg.RadioUpdateInterval)
	}
	if got := cfg.DefaultVolumeRatio(); got != 0.8 {
		t.Errorf("expected volume ratio 0.8, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DiscordToken:   "token",
			ApplicationID:  "app",
			DefaultVolume:  100,
			DefaultPasses:  2,
			MaxQueueSize:   10,
			RadioStreamURL: "https://listen.moe/stream",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.DiscordToken = "" }, wantErr: true},
		{name: "missing application", mutate: func(c *Config) { c.ApplicationID = "" }, wantErr: true},
		{name: "volume too high", mutate: func(c *Config) { c.DefaultVolume = 201 }, wantErr: true},
		{name: "no passes", mutate: func(c *Config) { c.DefaultPasses = 0 }, wantErr: true},
		{name: "queue too small", mutate: func(c *Config) { c.MaxQueueSize = 0 }, wantErr: true},
		{name: "no radio stream", mutate: func(c *Config) { c.RadioStreamURL = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{}
	if cfg.IsDevelopment() {
		t.Error("expected production mode without guild id")
	}
	cfg.GuildID = "123"
	if !cfg.IsDevelopment() {
		t.Error("expected development mode with guild id")
	}
}

func TestAutoLeave(t *testing.T) {
	cfg := &Config{AutoLeaveTimeout: 0}
	if cfg.AutoLeave() != 0 {
		t.Error("expected auto leave to be disabled")
	}
	cfg.AutoLeaveTimeout = 90
	if cfg.AutoLeave() != 90*time.Second {
		t.Errorf("expected 90s, got %s", cfg.AutoLeave())
	}
}
