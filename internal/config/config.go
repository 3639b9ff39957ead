package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
		Prefix   string `yaml:"prefix"`
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Tracker struct {
		NameDetectionMode      string  `yaml:"name_detection_mode"`
		LowParticipationWindow string  `yaml:"low_participation_window"`
		RequireTrigger         *bool   `yaml:"require_trigger"`
		DefaultDuration        string  `yaml:"default_duration"`
		DefaultConfidence      float64 `yaml:"default_confidence"`
		SweepSchedule          string  `yaml:"sweep_schedule"`
	} `yaml:"tracker"`
	Recognition struct {
		Source          string `yaml:"source"`
		StreamURL       string `yaml:"stream_url"`
		MaxAttempts     int    `yaml:"max_attempts"`
		BaseDelay       string `yaml:"base_delay"`
		RefreshInterval string `yaml:"refresh_interval"`
	} `yaml:"recognition"`
	Notifications struct {
		ParticipationAlerts    *bool  `yaml:"participation_alerts"`
		LowParticipationAlerts *bool  `yaml:"low_participation_alerts"`
		RankingChanges         *bool  `yaml:"ranking_changes"`
		AudioDeviceAlerts      *bool  `yaml:"audio_device_alerts"`
		MinTimeBetweenAlerts   string `yaml:"min_time_between_alerts"`
	} `yaml:"notifications"`
}

// Load reads YAML config from path. A missing file yields defaults; env
// overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("STT_STREAM_URL"); v != "" {
		cfg.Recognition.StreamURL = v
		if cfg.Recognition.Source == "" {
			cfg.Recognition.Source = "stream"
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "tracker:notifications"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "tracker"
	}
	if cfg.Tracker.SweepSchedule == "" {
		cfg.Tracker.SweepSchedule = "*/5 * * * *"
	}
	if cfg.Tracker.NameDetectionMode == "" {
		cfg.Tracker.NameDetectionMode = "both"
	}
	if cfg.Tracker.DefaultConfidence == 0 {
		cfg.Tracker.DefaultConfidence = 0.8
	}
	if cfg.Recognition.Source == "" {
		cfg.Recognition.Source = "relay"
	}
	if cfg.Recognition.MaxAttempts <= 0 {
		cfg.Recognition.MaxAttempts = 5
	}
}

// Enabled resolves an optional boolean, treating unset as true.
func Enabled(flag *bool) bool {
	return flag == nil || *flag
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
