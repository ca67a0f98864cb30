package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"taskcal/internal/model"
)

// Environment variables that override secrets in the YAML file. A .env file
// next to the config (or in the working directory) is loaded first.
const (
	EnvOracleAPIKey   = "TASKCAL_ORACLE_API_KEY"
	EnvJWTSecret      = "TASKCAL_JWT_SECRET"
	EnvSearchPassword = "TASKCAL_SEARCH_PASSWORD"
)

// Scheduling gathers every default the pipeline applies to incomplete
// requests.
type Scheduling struct {
	// DefaultListName is used when a task has no list/category.
	DefaultListName string `yaml:"default_list_name" json:"default_list_name"`
	// DefaultDurationMinutes is the event length when none is given.
	DefaultDurationMinutes int `yaml:"default_duration_minutes" json:"default_duration_minutes"`
	DefaultPriority        int `yaml:"default_priority" json:"default_priority"`
	// DeadlineLeadMinutes places a start-less single event this many
	// minutes before its deadline.
	DeadlineLeadMinutes int             `yaml:"deadline_lead_minutes" json:"deadline_lead_minutes"`
	DefaultFrequency    model.Frequency `yaml:"default_frequency" json:"default_frequency"`
	DefaultInterval     int             `yaml:"default_interval" json:"default_interval"`
	// MaxOccurrences caps recurrence expansion.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`
	// Workers bounds how many occurrences are processed concurrently.
	Workers int `yaml:"workers" json:"workers"`
	// CallTimeout bounds each provider, oracle, store and index call.
	CallTimeout    time.Duration `yaml:"call_timeout" json:"call_timeout"`
	BufferTitle    string        `yaml:"buffer_title" json:"buffer_title"`
	ReminderMethod string        `yaml:"reminder_method" json:"reminder_method"`
}

// OracleConfig points at an OpenAI-compatible chat/embeddings endpoint.
type OracleConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	APIKey         string        `yaml:"api_key,omitempty" json:"-"`
	Model          string        `yaml:"model" json:"model"`
	EmbeddingModel string        `yaml:"embedding_model" json:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
}

// ProviderConfig selects the calendar provider.
//   - "ics":    events are written to per-user .ics files under ICSDir
//   - "google": Google Calendar API using a service-account credentials file
type ProviderConfig struct {
	Kind            string `yaml:"kind" json:"kind"`
	Resource        string `yaml:"resource" json:"resource"`
	ICSDir          string `yaml:"ics_dir" json:"ics_dir"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`
}

// StoreConfig selects persistence: "memory" or "firestore".
type StoreConfig struct {
	Kind            string `yaml:"kind" json:"kind"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`
}

// SearchConfig points at an OpenSearch-compatible index. Empty URL disables
// indexing.
type SearchConfig struct {
	URL        string `yaml:"url" json:"url"`
	Username   string `yaml:"username,omitempty" json:"username,omitempty"`
	Password   string `yaml:"password,omitempty" json:"-"`
	AllIndex   string `yaml:"all_index" json:"all_index"`
	TrainIndex string `yaml:"train_index" json:"train_index"`
}

// AuthConfig enables JWT bearer auth on the HTTP API when Secret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret,omitempty" json:"-"`
	// UserClaim names the claim that carries the user ID.
	UserClaim string `yaml:"user_claim" json:"user_claim"`
}

// SpoolConfig drives periodic intake of request files.
type SpoolConfig struct {
	Dir  string `yaml:"dir" json:"dir"`
	Cron string `yaml:"cron" json:"cron"`
}

// UserConfig describes one user known to the config-backed directory.
type UserConfig struct {
	ID         string                    `yaml:"id" json:"id"`
	Timezone   string                    `yaml:"timezone" json:"timezone"`
	WorkHours  map[string]model.DayHours `yaml:"work_hours" json:"work_hours"`
	Calendar   *model.Calendar           `yaml:"calendar,omitempty" json:"calendar,omitempty"`
	ClientType string                    `yaml:"client_type,omitempty" json:"client_type,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used when a request omits one.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Scheduling Scheduling     `yaml:"scheduling" json:"scheduling"`
	Oracle     OracleConfig   `yaml:"oracle" json:"oracle"`
	Provider   ProviderConfig `yaml:"provider" json:"provider"`
	Store      StoreConfig    `yaml:"store" json:"store"`
	Search     SearchConfig   `yaml:"search" json:"search"`
	Auth       AuthConfig     `yaml:"auth" json:"auth"`
	Spool      SpoolConfig    `yaml:"spool" json:"spool"`
	Users      []UserConfig   `yaml:"users" json:"users"`
}

// DefaultScheduling returns the pipeline defaults.
func DefaultScheduling() Scheduling {
	return Scheduling{
		DefaultListName:        "Master",
		DefaultDurationMinutes: 30,
		DefaultPriority:        1,
		DeadlineLeadMinutes:    30,
		DefaultFrequency:       model.FrequencyDaily,
		DefaultInterval:        1,
		MaxOccurrences:         500,
		Workers:                4,
		CallTimeout:            30 * time.Second,
		BufferTitle:            "Buffer time",
		ReminderMethod:         "email",
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:     "127.0.0.1:8080",
		Timezone:   "UTC",
		LogLevel:   "info",
		Scheduling: DefaultScheduling(),
		Oracle: OracleConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        60 * time.Second,
		},
		Provider: ProviderConfig{
			Kind:     "ics",
			Resource: "ics",
			ICSDir:   "./var/calendars",
		},
		Store: StoreConfig{Kind: "memory"},
		Search: SearchConfig{
			AllIndex:   "all-events",
			TrainIndex: "train-events",
		},
		Auth:  AuthConfig{UserClaim: "userId"},
		Spool: SpoolConfig{Dir: "./var/spool", Cron: "*/5 * * * *"},
		Users: []UserConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	s := &c.Scheduling
	ds := def.Scheduling
	if s.DefaultListName == "" {
		s.DefaultListName = ds.DefaultListName
	}
	if s.DefaultDurationMinutes <= 0 {
		s.DefaultDurationMinutes = ds.DefaultDurationMinutes
	}
	if s.DefaultPriority <= 0 {
		s.DefaultPriority = ds.DefaultPriority
	}
	if s.DeadlineLeadMinutes <= 0 {
		s.DeadlineLeadMinutes = ds.DeadlineLeadMinutes
	}
	switch s.DefaultFrequency {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly, model.FrequencyYearly:
	default:
		s.DefaultFrequency = ds.DefaultFrequency
	}
	if s.DefaultInterval <= 0 {
		s.DefaultInterval = ds.DefaultInterval
	}
	if s.MaxOccurrences <= 0 {
		s.MaxOccurrences = ds.MaxOccurrences
	}
	if s.Workers <= 0 {
		s.Workers = ds.Workers
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = ds.CallTimeout
	}
	if s.BufferTitle == "" {
		s.BufferTitle = ds.BufferTitle
	}
	if s.ReminderMethod == "" {
		s.ReminderMethod = ds.ReminderMethod
	}

	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = def.Oracle.BaseURL
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = def.Oracle.Model
	}
	if c.Oracle.EmbeddingModel == "" {
		c.Oracle.EmbeddingModel = def.Oracle.EmbeddingModel
	}
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = def.Oracle.Timeout
	}

	switch c.Provider.Kind {
	case "ics", "google":
	default:
		c.Provider.Kind = def.Provider.Kind
	}
	if c.Provider.Resource == "" {
		c.Provider.Resource = c.Provider.Kind
	}
	if c.Provider.ICSDir == "" {
		c.Provider.ICSDir = def.Provider.ICSDir
	}

	switch c.Store.Kind {
	case "memory", "firestore":
	default:
		c.Store.Kind = def.Store.Kind
	}

	if c.Search.AllIndex == "" {
		c.Search.AllIndex = def.Search.AllIndex
	}
	if c.Search.TrainIndex == "" {
		c.Search.TrainIndex = def.Search.TrainIndex
	}
	if c.Auth.UserClaim == "" {
		c.Auth.UserClaim = def.Auth.UserClaim
	}
	if c.Spool.Cron == "" {
		c.Spool.Cron = def.Spool.Cron
	}
	if c.Users == nil {
		c.Users = []UserConfig{}
	}
}

// Validate reports configuration errors that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.ID == "" {
			return fmt.Errorf("config: users[%d]: id is empty", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("config: users[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = true
		if u.Timezone != "" {
			if _, err := time.LoadLocation(u.Timezone); err != nil {
				return fmt.Errorf("config: user %q timezone: %w", u.ID, err)
			}
		}
		for day, h := range u.WorkHours {
			if _, err := model.ParseWeekday(day); err != nil {
				return fmt.Errorf("config: user %q work_hours: %w", u.ID, err)
			}
			if h.End.Minutes() <= h.Start.Minutes() {
				return fmt.Errorf("config: user %q work_hours %s: end must be after start", u.ID, day)
			}
		}
	}
	if c.Provider.Kind == "google" && c.Provider.CredentialsFile == "" {
		return errors.New("config: provider.credentials_file is required for google")
	}
	if c.Store.Kind == "firestore" && c.Store.CredentialsFile == "" {
		return errors.New("config: store.credentials_file is required for firestore")
	}
	return nil
}

// applyEnv loads an optional .env and lets the environment override secrets.
func (c *Config) applyEnv(path string) {
	envFiles := []string{filepath.Join(filepath.Dir(path), ".env"), ".env"}
	for _, f := range envFiles {
		// Missing .env files are normal outside development.
		_ = godotenv.Load(f)
	}
	if v := strings.TrimSpace(os.Getenv(EnvOracleAPIKey)); v != "" {
		c.Oracle.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv(EnvSearchPassword); v != "" {
		c.Search.Password = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
//   - In both cases, environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.applyEnv(path)
				return cfg, err
			}
			cfg.applyEnv(path)
			return cfg, nil
		}
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(path)

	return cfg, nil
}

// Parse decodes, normalizes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".taskcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
