// Package config handles Concierge configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Iteration ceiling bounds for the action dispatcher.
const (
	MinIterations = 5
	MaxIterations = 10
)

// DefaultSearchPaths returns the config file search order used when no
// explicit -config path is given.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "concierge", "config.yaml"))
	}

	paths = append(paths, "/etc/concierge/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Concierge configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Models    ModelsConfig    `yaml:"models"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Agent     AgentConfig     `yaml:"agent"`
	Business  BusinessConfig  `yaml:"business"`
	Admin     AdminConfig     `yaml:"admin"`
	Replies   RepliesConfig   `yaml:"replies"`
	CardDAV   CardDAVConfig   `yaml:"carddav"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// ModelsConfig selects the reasoning-engine models. Chat drives the
// conversational dispatch loop; Format is used for the deterministic
// calls (plan analysis, JSON repair, review).
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	Chat      string        `yaml:"chat"`
	Format    string        `yaml:"format"`
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`

	// ChatTemperature is the sampling temperature for conversational
	// calls. Format-sensitive calls always use 0.
	ChatTemperature float64 `yaml:"chat_temperature"`
}

// ModelConfig maps a model name to its provider.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // ollama, anthropic
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an API key is present.
func (c AnthropicConfig) Configured() bool {
	return c.APIKey != ""
}

// AgentConfig tunes the tool-orchestration engine.
type AgentConfig struct {
	MaxIterations  int           `yaml:"max_iterations"`
	PromptHistory  int           `yaml:"prompt_history"`
	SessionHistory int           `yaml:"session_history"`
	ActionLog      int           `yaml:"action_log"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	SweepSchedule  string        `yaml:"sweep_schedule"`

	// Review enables the consistency reviewer. A nil value means enabled.
	Review *bool `yaml:"review"`

	// ReconcileTools lists tools whose records count toward plan
	// completion.
	ReconcileTools []string `yaml:"reconcile_tools"`
}

// ReviewEnabled reports whether the consistency reviewer runs.
func (a AgentConfig) ReviewEnabled() bool {
	return a.Review == nil || *a.Review
}

// BusinessConfig describes the business the assistant answers for.
type BusinessConfig struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	Persona        string          `yaml:"persona"`
	Timezone       string          `yaml:"timezone"`
	ContactChannel string          `yaml:"contact_channel"`
	OpenHour       int             `yaml:"open_hour"`
	CloseHour      int             `yaml:"close_hour"`
	SlotMinutes    int             `yaml:"slot_minutes"`
	Services       []ServiceConfig `yaml:"services"`
}

// Location resolves the business timezone, falling back to the local zone.
func (b BusinessConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ServiceConfig is one bookable service.
type ServiceConfig struct {
	Name            string   `yaml:"name"`
	Aliases         []string `yaml:"aliases"`
	DurationMinutes int      `yaml:"duration_minutes"`
	Price           float64  `yaml:"price"`
}

// AdminConfig holds bcrypt hashes of bearer tokens that grant access
// to privileged tools and admin endpoints.
type AdminConfig struct {
	TokenHashes []string `yaml:"token_hashes"`
}

// RepliesConfig selects the outbound reply channels. Every configured
// channel receives each reply.
type RepliesConfig struct {
	Log        bool          `yaml:"log"`
	WebhookURL string        `yaml:"webhook_url"`
	WebSocket  bool          `yaml:"websocket"`
	Email      EmailConfig   `yaml:"email"`
	Slack      SlackConfig   `yaml:"slack"`
	Discord    DiscordConfig `yaml:"discord"`
}

// EmailConfig defines SMTP delivery for users whose ID is an email address.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"starttls"`
	From     string `yaml:"from"`
	Subject  string `yaml:"subject"`
}

// Configured reports whether SMTP delivery is set up.
func (e EmailConfig) Configured() bool {
	return e.Host != "" && e.From != ""
}

// SlackConfig holds the bot token for Slack direct-message replies.
type SlackConfig struct {
	Token string `yaml:"token"`
}

// DiscordConfig holds the bot token for Discord direct-message replies.
type DiscordConfig struct {
	Token string `yaml:"token"`
}

// CardDAVConfig points at the address book customers are synced to.
type CardDAVConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Configured reports whether CardDAV sync is enabled.
func (c CardDAVConfig) Configured() bool {
	return c.URL != ""
}

// MQTTConfig defines the broker turn events are exported to.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Configured reports whether MQTT export is enabled.
func (m MQTTConfig) Configured() bool {
	return m.Broker != ""
}

// Load reads configuration from a YAML file. A .env file in the same
// directory is loaded first (without overriding variables already set)
// so that ${VAR} references in the YAML can be satisfied from it.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Models.Default == "" {
		c.Models.Default = "qwen3:8b"
	}
	if c.Models.Chat == "" {
		c.Models.Chat = c.Models.Default
	}
	if c.Models.Format == "" {
		c.Models.Format = c.Models.Default
	}
	if c.Models.ChatTemperature == 0 {
		c.Models.ChatTemperature = 0.7
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = "ollama"
		}
	}

	a := &c.Agent
	if a.MaxIterations == 0 {
		a.MaxIterations = 6
	}
	a.MaxIterations = min(max(a.MaxIterations, MinIterations), MaxIterations)
	if a.PromptHistory <= 0 {
		a.PromptHistory = 10
	}
	if a.SessionHistory <= 0 {
		a.SessionHistory = 20
	}
	if a.ActionLog <= 0 {
		a.ActionLog = 10
	}
	if a.SessionTTL <= 0 {
		a.SessionTTL = 24 * time.Hour
	}
	if a.SweepSchedule == "" {
		a.SweepSchedule = "@every 10m"
	}
	if len(a.ReconcileTools) == 0 {
		a.ReconcileTools = []string{"createAppointment"}
	}

	b := &c.Business
	if b.OpenHour == 0 && b.CloseHour == 0 {
		b.OpenHour, b.CloseHour = 9, 18
	}
	if b.SlotMinutes <= 0 {
		b.SlotMinutes = 30
	}
	if b.ContactChannel == "" {
		b.ContactChannel = "our front desk"
	}
	for i := range b.Services {
		if b.Services[i].DurationMinutes <= 0 {
			b.Services[i].DurationMinutes = b.SlotMinutes
		}
	}

	if c.Replies.Email.Port == 0 {
		c.Replies.Email.Port = 587
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "concierge"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
}

// Validate checks the configuration for values the service cannot run
// without.
func (c *Config) Validate() error {
	var errs []error
	if c.Business.ID == "" {
		errs = append(errs, errors.New("business.id is required"))
	}
	if len(c.Business.Services) == 0 {
		errs = append(errs, errors.New("business.services must list at least one service"))
	}
	if c.Business.OpenHour >= c.Business.CloseHour {
		errs = append(errs, fmt.Errorf("business.open_hour (%d) must be before close_hour (%d)",
			c.Business.OpenHour, c.Business.CloseHour))
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "ollama", "anthropic":
		default:
			errs = append(errs, fmt.Errorf("model %q: unknown provider %q", m.Name, m.Provider))
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Default returns a configuration suitable for local experiments.
func Default() *Config {
	cfg := &Config{
		Business: BusinessConfig{
			ID:   "default",
			Name: "Studio",
			Services: []ServiceConfig{
				{Name: "Corte de Cabelo", Aliases: []string{"corte", "cortar o cabelo", "haircut"}, DurationMinutes: 30},
				{Name: "Barba", Aliases: []string{"fazer a barba", "beard"}, DurationMinutes: 30},
			},
		},
		Replies: RepliesConfig{Log: true},
	}
	cfg.applyDefaults()
	return cfg
}
