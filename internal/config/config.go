package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers accepted by storage.driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Nats struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Game struct {
		QuestionTimeLimit int    `yaml:"question_time_limit"`
		StartGrace        string `yaml:"start_grace"`
		AnswerBuffer      string `yaml:"answer_buffer"`
		TickInterval      string `yaml:"tick_interval"`
		SweepSchedule     string `yaml:"sweep_schedule"`
	} `yaml:"game"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
}

// Load reads YAML config from path. Unset fields keep their defaults and
// ${VAR} references are expanded from the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults is the configuration used for an empty file.
func Defaults() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Storage.Driver = DriverMemory
	cfg.Mongo.Database = "quiz"
	cfg.Redis.TTL = "30m"
	cfg.Nats.Subject = "quiz.games.updated"
	cfg.Game.QuestionTimeLimit = 15
	cfg.Game.StartGrace = "2s"
	cfg.Game.AnswerBuffer = "3s"
	cfg.Game.TickInterval = "1s"
	cfg.Game.SweepSchedule = "@every 1m"
	cfg.Questions.TTL = "10m"
	return cfg
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, "":
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("storage driver postgres needs postgres.url")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("storage driver mongo needs mongo.uri")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Game.QuestionTimeLimit < 0 {
		return fmt.Errorf("game.question_time_limit must not be negative")
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
