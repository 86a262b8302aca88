// Package config loads the bot configuration from a YAML file plus
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvJiraBaseURL = "JIRA_BASE_URL"
	EnvJiraEmail   = "JIRA_EMAIL"
	EnvRedisAddr   = "REDIS_ADDR"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "stevenson.yaml"

// JiraConfig describes the Jira site and the tracking issue.
type JiraConfig struct {
	BaseURL         string   `yaml:"base_url"`
	Email           string   `yaml:"email"`
	TrackingProject string   `yaml:"tracking_project"`
	IssueType       string   `yaml:"issue_type"`
	Labels          []string `yaml:"labels,omitempty"`
}

// SDKConfig describes how SDK releases are filtered.
type SDKConfig struct {
	App    string   `yaml:"app"`
	Marker string   `yaml:"marker"`
	Boards []string `yaml:"boards,omitempty"`
}

// RateLimitConfig tunes the Jira dispatcher.
type RateLimitConfig struct {
	FallbackDelay time.Duration `yaml:"fallback_delay"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RPS           float64       `yaml:"rps"`
	Burst         int           `yaml:"burst"`
}

// StatsConfig enables Redis dispatcher statistics when RedisAddr is set.
type StatsConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// NotifyConfig selects where notifications go.
type NotifyConfig struct {
	Channel string `yaml:"channel"`
}

// WorkflowConfig tunes the release workflow.
type WorkflowConfig struct {
	MaxFanOut int `yaml:"max_fan_out"`
}

// GitHubConfig points at the GraphQL endpoint.
type GitHubConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// fileConfig models stevenson.yaml.
type fileConfig struct {
	Jira      JiraConfig      `yaml:"jira"`
	Boards    map[string]int  `yaml:"boards"`
	SDK       SDKConfig       `yaml:"sdk"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Stats     StatsConfig     `yaml:"stats"`
	Notify    NotifyConfig    `yaml:"notify"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	GitHub    GitHubConfig    `yaml:"github"`
}

// Config is the validated runtime configuration.
type Config struct {
	Jira      JiraConfig
	Boards    Boards
	SDK       SDKConfig
	RateLimit RateLimitConfig
	Stats     StatsConfig
	Notify    NotifyConfig
	Workflow  WorkflowConfig
	GitHub    GitHubConfig
}

func defaults() fileConfig {
	return fileConfig{
		Jira: JiraConfig{IssueType: "Task"},
		RateLimit: RateLimitConfig{
			FallbackDelay: time.Second,
			Burst:         1,
		},
		Stats: StatsConfig{
			Prefix: "stevenson:dispatch",
			TTL:    24 * time.Hour,
		},
		Notify:   NotifyConfig{Channel: "#releases"},
		Workflow: WorkflowConfig{MaxFanOut: 8},
		GitHub:   GitHubConfig{Endpoint: "https://api.github.com/graphql"},
	}
}

// Load reads path (when it exists), applies environment overrides and validates.
// A missing file at DefaultPath is not an error; any other missing path is.
func Load(path string) (*Config, error) {
	fc := defaults()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(&fc)
	return build(fc)
}

// Parse builds a configuration from YAML bytes, without environment overrides.
func Parse(data []byte) (*Config, error) {
	fc := defaults()
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return build(fc)
}

func applyEnv(fc *fileConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvJiraBaseURL)); v != "" {
		fc.Jira.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJiraEmail)); v != "" {
		fc.Jira.Email = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		fc.Stats.RedisAddr = v
	}
}

func build(fc fileConfig) (*Config, error) {
	var problems []string

	fc.Jira.BaseURL = strings.TrimRight(strings.TrimSpace(fc.Jira.BaseURL), "/")
	fc.Jira.TrackingProject = strings.ToUpper(strings.TrimSpace(fc.Jira.TrackingProject))

	if fc.RateLimit.MaxAttempts < 0 {
		problems = append(problems, "rate_limit.max_attempts must not be negative")
	}
	if fc.RateLimit.RPS < 0 {
		problems = append(problems, "rate_limit.rps must not be negative")
	}
	if fc.RateLimit.Burst <= 0 {
		fc.RateLimit.Burst = 1
	}
	if fc.RateLimit.FallbackDelay <= 0 {
		fc.RateLimit.FallbackDelay = time.Second
	}

	ids := make(map[string]int, len(fc.Boards))
	codes := make([]string, 0, len(fc.Boards))
	for code := range fc.Boards {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		id := fc.Boards[code]
		norm := strings.ToUpper(strings.TrimSpace(code))
		if norm == "" {
			problems = append(problems, "boards: empty board code")
			continue
		}
		if id <= 0 {
			problems = append(problems, fmt.Sprintf("boards.%s: project id must be positive", code))
			continue
		}
		if _, dup := ids[norm]; dup {
			problems = append(problems, fmt.Sprintf("boards.%s: duplicate board code", code))
			continue
		}
		ids[norm] = id
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}

	return &Config{
		Jira:      fc.Jira,
		Boards:    Boards{ids: ids},
		SDK:       fc.SDK,
		RateLimit: fc.RateLimit,
		Stats:     fc.Stats,
		Notify:    fc.Notify,
		Workflow:  fc.Workflow,
		GitHub:    fc.GitHub,
	}, nil
}

// RequireJira reports which Jira settings are missing for API access.
func (c *Config) RequireJira() error {
	var missing []string
	if c.Jira.BaseURL == "" {
		missing = append(missing, "jira.base_url")
	}
	if c.Jira.Email == "" {
		missing = append(missing, "jira.email")
	}
	if c.Jira.TrackingProject == "" {
		missing = append(missing, "jira.tracking_project")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
