// Package config loads runtime settings from the environment, plus an
// optional YAML tuning file for the matcher, resolver and batch window.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stocklens/yardbot/internal/batch"
	"github.com/stocklens/yardbot/internal/match"
	"github.com/stocklens/yardbot/internal/resolver"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	PhotosURL       string
	TuningFile      string
}

func Load() Config {
	return Config{
		Port:            envInt("YARDBOT_PORT", 8760),
		NatsURL:         envStr("NATS_URL", "nats://nats:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("YARDBOT_MODEL", "claude-sonnet-4-20250514"),
		PhotosURL:       envStr("YARDBOT_PHOTOS_URL", ""),
		TuningFile:      envStr("YARDBOT_TUNING_FILE", ""),
	}
}

// Tuning overrides the built-in matcher, resolver and batching defaults.
// Every field is optional: absent or zero means keep the default.
type Tuning struct {
	Matcher struct {
		SubstituteCost   float64  `yaml:"substitute_cost"`
		ConfusableCost   float64  `yaml:"confusable_cost"`
		TransposeCost    float64  `yaml:"transpose_cost"`
		InsertDeleteCost float64  `yaml:"insert_delete_cost"`
		Confusables      []string `yaml:"confusables"`
	} `yaml:"matcher"`
	Resolver struct {
		AutoFixThreshold float64 `yaml:"auto_fix_threshold"`
		ReviewThreshold  float64 `yaml:"review_threshold"`
		UniqueMargin     float64 `yaml:"unique_margin"`
		MinConfidence    float64 `yaml:"min_confidence"`
	} `yaml:"resolver"`
	Batch struct {
		BaseWindow   string `yaml:"base_window"` // e.g. "2m"
		ExtendWithin string `yaml:"extend_within"`
		Extension    string `yaml:"extension"`
		MaxMessages  int    `yaml:"max_messages"`
	} `yaml:"batch"`
}

// LoadTuning reads the tuning file at path. An empty path returns zero
// Tuning, meaning all defaults apply.
func LoadTuning(path string) (Tuning, error) {
	var t Tuning
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning file: %w", err)
	}
	for _, d := range []string{t.Batch.BaseWindow, t.Batch.ExtendWithin, t.Batch.Extension} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return t, fmt.Errorf("tuning file: bad duration %q: %w", d, err)
		}
	}
	return t, nil
}

// NewMatcher builds the string matcher, applying any cost or confusable-set
// overrides from the tuning file.
func (t Tuning) NewMatcher() *match.Matcher {
	costs := match.DefaultCosts()
	if t.Matcher.SubstituteCost > 0 {
		costs.Substitute = t.Matcher.SubstituteCost
	}
	if t.Matcher.ConfusableCost > 0 {
		costs.Confusable = t.Matcher.ConfusableCost
	}
	if t.Matcher.TransposeCost > 0 {
		costs.Transpose = t.Matcher.TransposeCost
	}
	if t.Matcher.InsertDeleteCost > 0 {
		costs.InsertDelete = t.Matcher.InsertDeleteCost
	}
	pairs := match.DefaultConfusables()
	if len(t.Matcher.Confusables) > 0 {
		pairs = t.Matcher.Confusables
	}
	return match.New(costs, pairs)
}

// ResolverConfig returns the resolver thresholds with tuning overrides.
// Zero fields fall back inside resolver.New.
func (t Tuning) ResolverConfig() resolver.Config {
	return resolver.Config{
		AutoFixThreshold: t.Resolver.AutoFixThreshold,
		ReviewThreshold:  t.Resolver.ReviewThreshold,
		UniqueMargin:     t.Resolver.UniqueMargin,
		MinConfidence:    t.Resolver.MinConfidence,
	}
}

// BatchConfig returns the window timings with tuning overrides. Durations
// were validated in LoadTuning.
func (t Tuning) BatchConfig() batch.Config {
	cfg := batch.DefaultConfig()
	if d, err := time.ParseDuration(t.Batch.BaseWindow); err == nil && d > 0 {
		cfg.BaseWindow = d
	}
	if d, err := time.ParseDuration(t.Batch.ExtendWithin); err == nil && d > 0 {
		cfg.ExtendWithin = d
	}
	if d, err := time.ParseDuration(t.Batch.Extension); err == nil && d > 0 {
		cfg.Extension = d
	}
	if t.Batch.MaxMessages > 0 {
		cfg.MaxMessages = t.Batch.MaxMessages
	}
	return cfg
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
