package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures all tunable settings for the Blissful library agent.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Library LibraryConfig `yaml:"library"`
	Service ServiceConfig `yaml:"service"`
	Agent   AgentConfig   `yaml:"agent"`
	MCP     MCPConfig     `yaml:"mcp"`
	Trace   TraceConfig   `yaml:"trace"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// BrowserConfig configures how the agent attaches to or launches Chrome.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome in detached mode.
	Launch []string `yaml:"launch"`
	// Headless controls whether a launched Chrome runs headless (default: false;
	// the agent augments a page a human is looking at).
	Headless *bool `yaml:"headless"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Interval for draining the in-page event buffer (e.g., "250ms").
	EventPollInterval string `yaml:"event_poll_interval"`
}

// LibraryConfig locates the host music-library web application.
type LibraryConfig struct {
	// Base URL of the Lidarr UI the agent augments (e.g., http://localhost:8686).
	URL string `yaml:"url"`
	// OpenTab controls whether the agent opens the library in a new tab when
	// no existing tab matches the URL (default: true).
	OpenTab *bool `yaml:"open_tab"`
}

// ServiceConfig locates the download microservice.
type ServiceConfig struct {
	// Base URL of the Blissful microservice (e.g., http://localhost:7373).
	BaseURL string `yaml:"base_url"`
	// Request timeout for service calls (e.g., "60s"; downloads are slow).
	Timeout string `yaml:"timeout"`
	// SkipStartupProbe disables the /api/health check at startup.
	SkipStartupProbe bool `yaml:"skip_startup_probe"`
}

// AgentConfig tunes the scan and injection behavior.
type AgentConfig struct {
	// Wait after attach before the first scan, letting the SPA finish its
	// initial render (e.g., "2s").
	InitialSettleDelay string `yaml:"initial_settle_delay"`
	// Wait after a successful download before forcing a metadata refresh
	// and rescan, letting the host notice the new file (e.g., "3s").
	RescanSettleDelay string `yaml:"rescan_settle_delay"`
	// How long a Success control stays visible before removing itself.
	SuccessRemoveDelay string `yaml:"success_remove_delay"`
	// How long injection generation tags are remembered by the
	// self-mutation filter.
	MutationTagRetention string `yaml:"mutation_tag_retention"`
	// Notifications toggles in-page toasts (default: true). Overridable by
	// the service's persisted settings at startup.
	Notifications *bool `yaml:"notifications"`
}

type MCPConfig struct {
	// When set, starts an SSE control surface on this port.
	SSEPort int `yaml:"sse_port"`
	// Stdio serves the control surface over stdio instead (takes priority
	// over sse_port; log output is redirected to a file in this mode).
	Stdio bool `yaml:"stdio"`
}

// TraceConfig controls the rotating flight-recorder trace.
type TraceConfig struct {
	Enable bool   `yaml:"enable"`
	Dir    string `yaml:"dir"`
	Keep   int    `yaml:"keep"`
}

// DefaultConfig provides reasonable defaults for local use.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "blissful-agent",
			Version: "0.3.1",
			LogFile: "blissful-agent.log",
		},
		Browser: BrowserConfig{
			DefaultNavigationTimeout: "15s",
			EventPollInterval:        "250ms",
		},
		Library: LibraryConfig{
			URL: "http://localhost:8686",
		},
		Service: ServiceConfig{
			BaseURL: "http://localhost:7373",
			Timeout: "60s",
		},
		Agent: AgentConfig{
			InitialSettleDelay:   "2s",
			RescanSettleDelay:    "3s",
			SuccessRemoveDelay:   "2s",
			MutationTagRetention: "30s",
		},
		Trace: TraceConfig{
			Enable: true,
			Dir:    "data/traces",
			Keep:   3,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate ensures required fields exist so the agent can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
		return errors.New("browser.debugger_url or browser.launch must be provided")
	}
	if c.Library.URL == "" {
		return errors.New("library.url is required")
	}
	if c.Service.BaseURL == "" {
		return errors.New("service.base_url is required")
	}
	return nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return parseDurationOr(b.DefaultNavigationTimeout, 15*time.Second)
}

// PollInterval returns the parsed event poll interval with a sane default.
func (b BrowserConfig) PollInterval() time.Duration {
	return parseDurationOr(b.EventPollInterval, 250*time.Millisecond)
}

// IsHeadless returns whether a launched Chrome runs headless (default: false).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return false
	}
	return *b.Headless
}

// ShouldOpenTab returns whether the agent opens the library when no tab
// matches (default: true).
func (l LibraryConfig) ShouldOpenTab() bool {
	if l.OpenTab == nil {
		return true
	}
	return *l.OpenTab
}

// NormalizedURL returns the library URL without a trailing slash.
func (l LibraryConfig) NormalizedURL() string {
	return strings.TrimRight(l.URL, "/")
}

// RequestTimeout returns the parsed service timeout with a sane default.
func (s ServiceConfig) RequestTimeout() time.Duration {
	return parseDurationOr(s.Timeout, 60*time.Second)
}

// SettleDelay returns the parsed initial settle delay with a sane default.
func (a AgentConfig) SettleDelay() time.Duration {
	return parseDurationOr(a.InitialSettleDelay, 2*time.Second)
}

// RescanDelay returns the parsed post-download settle delay with a sane default.
func (a AgentConfig) RescanDelay() time.Duration {
	return parseDurationOr(a.RescanSettleDelay, 3*time.Second)
}

// SuccessGrace returns the parsed success-removal delay with a sane default.
func (a AgentConfig) SuccessGrace() time.Duration {
	return parseDurationOr(a.SuccessRemoveDelay, 2*time.Second)
}

// TagRetention returns the parsed mutation-tag retention with a sane default.
func (a AgentConfig) TagRetention() time.Duration {
	return parseDurationOr(a.MutationTagRetention, 30*time.Second)
}

// NotificationsEnabled returns whether in-page toasts are shown (default: true).
func (a AgentConfig) NotificationsEnabled() bool {
	if a.Notifications == nil {
		return true
	}
	return *a.Notifications
}

// KeepTraces returns how many rotated trace files to retain.
func (t TraceConfig) KeepTraces() int {
	if t.Keep <= 0 {
		return 3
	}
	return t.Keep
}
