package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

// Test environment variable keys.
const (
	testEnvPostgresDSN = "POSTGRES_DSN"
	testEnvSourcesFile = "SOURCES_FILE"
	testEnvCountries   = "YOUTUBE_COUNTRIES"
)

// Test values.
const (
	testPostgresDSN = "postgres://localhost/test"
	testErrLoad     = "Load() error = %v"
	testDefaultEnv  = "local"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()

	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv(testEnvSourcesFile, "")
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, "")
	os.Unsetenv(testEnvPostgresDSN)

	_, err := Load()
	if err == nil {
		t.Error("expected error for missing required env vars")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnvVars(t)

	for _, key := range []string{"APP_ENV", "HTTP_PORT", "DAILY_COLLECTION_HOUR", "WEEKLY_ANALYTICS_DAY", "FETCH_LIMIT", "DECAY_HALF_LIFE_DAYS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.AppEnv != testDefaultEnv {
		t.Errorf("AppEnv default = %q, want %q", cfg.AppEnv, testDefaultEnv)
	}

	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort default = %d, want %d", cfg.HTTPPort, 8080)
	}

	if cfg.FetchLimit != 200 {
		t.Errorf("FetchLimit default = %d, want %d", cfg.FetchLimit, 200)
	}

	sched := cfg.ScheduleCfg()
	if sched.DailyHour != 2 || sched.WeeklyDay != time.Sunday {
		t.Errorf("schedule default = %+v, want daily 2h and weekly on Sunday", sched)
	}

	if got, want := cfg.Tuning(), domain.DefaultTuning(); got != want {
		t.Errorf("Tuning() = %+v, want %+v", got, want)
	}
}

func TestLoad_Lists(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv(testEnvCountries, "US,IN,DE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	countries := cfg.YouTubeCfg().Countries
	expected := []string{"US", "IN", "DE"}

	if len(countries) != len(expected) {
		t.Fatalf("Countries length = %d, want %d", len(countries), len(expected))
	}

	for i, want := range expected {
		if countries[i] != want {
			t.Errorf("Countries[%d] = %q, want %q", i, countries[i], want)
		}
	}
}

func TestLoad_InvalidNumeric(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("FETCH_LIMIT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("expected error for invalid FETCH_LIMIT")
	}
}

func TestLoad_OutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "negative weight", key: "FORUM_REPLY_WEIGHT", value: "-1"},
		{name: "threshold above one", key: "TITLE_SIMILARITY_THRESHOLD", value: "1.5"},
		{name: "hour past midnight", key: "DAILY_COLLECTION_HOUR", value: "24"},
		{name: "unknown weekday", key: "WEEKLY_ANALYTICS_DAY", value: "funday"},
		{name: "window below history", key: "REGRESSION_WINDOW", value: "2"},
		{name: "deep limit below limit", key: "DEEP_FETCH_LIMIT", value: "10"},
		{name: "zero divergence tolerance", key: "DIVERGENCE_TOLERANCE", value: "0s"},
		{name: "negative divergence threshold", key: "DIVERGENCE_THRESHOLD", value: "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_SourcesFileOverridesEnv(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv(testEnvCountries, "US")

	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `
video:
  queries: ["n8n ai agent"]
  countries: [" br ", ""]
trends:
  keywords: ["n8n"]
`

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write sources file: %v", err)
	}

	t.Setenv(testEnvSourcesFile, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	yt := cfg.YouTubeCfg()
	if len(yt.Countries) != 1 || yt.Countries[0] != "BR" {
		t.Errorf("Countries = %v, want [BR]", yt.Countries)
	}

	if len(yt.Queries) != 1 || yt.Queries[0] != "n8n ai agent" {
		t.Errorf("Queries = %v, want [n8n ai agent]", yt.Queries)
	}

	if kw := cfg.TrendsCfg().Keywords; len(kw) != 1 || kw[0] != "n8n" {
		t.Errorf("Keywords = %v, want [n8n]", kw)
	}
}

func TestLoad_MissingSourcesFile(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv(testEnvSourcesFile, filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing sources file")
	}
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in   string
		want time.Weekday
	}{
		{in: "sunday", want: time.Sunday},
		{in: "Mon", want: time.Monday},
		{in: " SATURDAY ", want: time.Saturday},
	}

	for _, tt := range tests {
		got, err := parseWeekday(tt.in)
		if err != nil {
			t.Fatalf("parseWeekday(%q) error = %v", tt.in, err)
		}

		if got != tt.want {
			t.Errorf("parseWeekday(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
