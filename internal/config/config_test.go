package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduling.DefaultListName != "Master" {
		t.Errorf("DefaultListName = %q", cfg.Scheduling.DefaultListName)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Scheduling != cfg.Scheduling {
		t.Errorf("reloaded scheduling differs: %+v vs %+v", again.Scheduling, cfg.Scheduling)
	}
}

func TestParse_NormalizesPartialConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
listen: ":9000"
scheduling:
  workers: 8
  call_timeout: 5s
provider:
  kind: bogus
users:
  - id: alice
    timezone: UTC
    work_hours:
      MO: {start: "08:00", end: "18:00"}
      tuesday: {start: "9:00 am", end: "5:30 pm"}
    calendar:
      id: primary
      color_id: "7"
    client_type: web
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	s := cfg.Scheduling
	if s.Workers != 8 || s.CallTimeout != 5*time.Second {
		t.Errorf("scheduling overrides lost: %+v", s)
	}
	if s.DefaultDurationMinutes != 30 || s.DefaultPriority != 1 || s.MaxOccurrences != 500 {
		t.Errorf("scheduling defaults not applied: %+v", s)
	}
	if s.BufferTitle != "Buffer time" || s.ReminderMethod != "email" {
		t.Errorf("label defaults not applied: %+v", s)
	}
	if cfg.Provider.Kind != "ics" || cfg.Provider.Resource != "ics" {
		t.Errorf("provider = %+v", cfg.Provider)
	}

	if len(cfg.Users) != 1 {
		t.Fatalf("users = %d", len(cfg.Users))
	}
	tue := cfg.Users[0].WorkHours["tuesday"]
	if tue.Start.Minutes() != 9*60 || tue.End.Minutes() != 17*60+30 {
		t.Errorf("tuesday hours = %v-%v", tue.Start, tue.End)
	}
	if cfg.Users[0].Calendar == nil || cfg.Users[0].Calendar.ColorID != "7" {
		t.Errorf("calendar = %+v", cfg.Users[0].Calendar)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad timezone":     "timezone: Mars/Base",
		"duplicate users":  "users: [{id: a}, {id: a}]",
		"empty user id":    "users: [{timezone: UTC}]",
		"bad weekday":      "users: [{id: a, work_hours: {XX: {start: '08:00', end: '09:00'}}}]",
		"inverted hours":   "users: [{id: a, work_hours: {MO: {start: '18:00', end: '08:00'}}}]",
		"google no creds":  "provider: {kind: google}",
		"firestore no key": "store: {kind: firestore}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_EnvironmentOverridesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("oracle:\n  api_key: from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvJWTSecret+"=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvOracleAPIKey, "from-env")
	// godotenv.Load never overrides existing variables; start from empty.
	t.Setenv(EnvJWTSecret, "")
	os.Unsetenv(EnvJWTSecret)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Oracle.APIKey != "from-env" {
		t.Errorf("APIKey = %q", cfg.Oracle.APIKey)
	}
	if cfg.Auth.JWTSecret != "from-dotenv" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}
}
