package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment     string           `toml:"environment"`       // "development" or "production" - controls test URL validation
	DeleteOnStartup []string         `toml:"delete_on_startup"` // Delete data categories on startup. Valid values: settings, jobs, documents, logs (default: empty = delete nothing)
	Server          ServerConfig     `toml:"server"`
	Queue           QueueConfig      `toml:"queue"`
	Storage         StorageConfig    `toml:"storage"`
	Logging         LoggingConfig    `toml:"logging"`
	Pipelines       PipelinesConfig  `toml:"pipelines"`
	Status          StatusConfig     `toml:"status"`
	Extraction      ExtractionConfig `toml:"extraction"`
	Reports         ReportsConfig    `toml:"reports"`
	Fetcher         FetcherConfig    `toml:"fetcher"`
	Mail            MailConfig       `toml:"mail"`
	GitHub          GitHubConfig     `toml:"github"`
	Scheduler       SchedulerConfig  `toml:"scheduler"`
	Gemini          GeminiConfig     `toml:"gemini"`
	Claude          ClaudeConfig     `toml:"claude"`
	LLM             LLMConfig        `toml:"llm"`
	Workers         WorkersConfig    `toml:"workers"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	PollInterval    string `toml:"poll_interval"`     // e.g., "500ms" - how often the dispatcher polls for queued jobs
	Concurrency     int    `toml:"concurrency"`       // Number of jobs processed concurrently
	MaxReceive      int    `toml:"max_receive"`       // Max times a job can be claimed before being failed
	StaleJobMinutes int    `toml:"stale_job_minutes"` // Processing jobs idle longer than this are failed on sweep
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// PipelinesConfig contains configuration for pipeline definitions
type PipelinesConfig struct {
	DefinitionsDir string `toml:"definitions_dir"` // Directory containing pipeline definition files (TOML/YAML)
	Default        string `toml:"default"`         // Pipeline used when a job does not name one
}

// StatusConfig contains tuning for the status broadcaster and its stream connections
type StatusConfig struct {
	QueueCapacity     int               `toml:"queue_capacity"`     // Per-connection event buffer size before drops (default: 100)
	PingInterval      string            `toml:"ping_interval"`      // Idle interval before a ping event is sent (default: "30s")
	StaleTimeout      string            `toml:"stale_timeout"`      // Idle interval before a connection is closed (default: "5m")
	MinLevel          string            `toml:"min_level"`          // Minimum log level forwarded to stream clients
	AllowedEvents     []string          `toml:"allowed_events"`     // Event types always forwarded regardless of level
	ThrottleIntervals map[string]string `toml:"throttle_intervals"` // Per event type minimum interval between sends (e.g., job_progress = "2s")
	RatePerSecond     float64           `toml:"rate_per_second"`    // Outbound event rate limit per connection (0 = unlimited)
	RateBurst         int               `toml:"rate_burst"`         // Burst size for the outbound rate limiter
}

// ExtractionConfig contains document content extraction settings
type ExtractionConfig struct {
	MaxUploadBytes int64  `toml:"max_upload_bytes"` // Maximum accepted upload size in bytes
	PDFPageLimit   int    `toml:"pdf_page_limit"`   // Max PDF pages extracted per document (0 = no limit)
	TempDir        string `toml:"temp_dir"`         // Scratch directory for page extraction (default: os temp)
}

// ReportsConfig contains PDF report rendering settings
type ReportsConfig struct {
	Enabled  bool   `toml:"enabled"`   // Render a PDF report when a job completes
	Author   string `toml:"author"`    // Author stamped into report metadata
	PageSize string `toml:"page_size"` // "A4" or "Letter"
}

// FetcherConfig contains URL intake settings
type FetcherConfig struct {
	UserAgent      string `toml:"user_agent"`
	RequestTimeout string `toml:"request_timeout"` // e.g., "30s"
	MaxBodySize    int    `toml:"max_body_size"`   // Max response body size in bytes
	UseBrowser     bool   `toml:"use_browser"`     // Render pages in headless Chrome before extraction
	BrowserTimeout string `toml:"browser_timeout"` // e.g., "60s" - budget for a full browser render
}

// MailConfig contains IMAP mailbox intake settings
type MailConfig struct {
	Enabled      bool   `toml:"enabled"`
	Server       string `toml:"server"` // host:port for IMAP over TLS
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	Mailbox      string `toml:"mailbox"`       // Mailbox to watch (default: "INBOX")
	PollInterval string `toml:"poll_interval"` // e.g., "2m"
	MaxMessages  uint32 `toml:"max_messages"`  // Messages fetched per poll
	AutoSubmit   bool   `toml:"auto_submit"`   // Queue an analysis job for each ingested message
}

// GitHubConfig contains GitHub repository intake settings
type GitHubConfig struct {
	Token string `toml:"token"` // Personal access token; anonymous access if empty
}

// SchedulerConfig contains configuration for scheduled pipeline runs
type SchedulerConfig struct {
	Enabled bool `toml:"enabled"`
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key for all AI operations
	Model       string  `toml:"model"`       // Model for AI operations (default: "gemini-3-flash-preview")
	Thinking    string  `toml:"thinking"`    // Default thinking level: NONE, LOW, NORMAL, MEDIUM, HIGH (default: "NORMAL")
	MaxTurns    int     `toml:"max_turns"`   // Maximum agent conversation turns (default: 10)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// ClaudeConfig contains Anthropic Claude API configuration for AI services
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key for Claude operations
	Model       string  `toml:"model"`       // Model for AI operations (default: "claude-haiku-3-5-20241022")
	Thinking    string  `toml:"thinking"`    // Default thinking level: NONE, LOW, NORMAL, MEDIUM, HIGH (default: "NORMAL")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // Default provider: "gemini" or "claude" (default: "gemini")
}

// WorkersConfig contains configuration for agent worker behavior
type WorkersConfig struct {
	Debug bool `toml:"debug"` // Enable agent debug metadata (timing, API calls, model sources)
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in scrutor.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode - allows test URLs
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:    "500ms", // Dispatch poll cadence
			Concurrency:     4,       // Jobs processed at once
			MaxReceive:      3,       // Claims before dead-letter
			StaleJobMinutes: 5,       // Sweep processing jobs idle > 5 minutes
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Pipelines: PipelinesConfig{
			DefinitionsDir: "./pipelines",
			Default:        "document-analysis",
		},
		Status: StatusConfig{
			QueueCapacity: 100,   // Drop events beyond this backlog per connection
			PingInterval:  "30s", // Keepalive ping after 30s of silence
			StaleTimeout:  "5m",  // Close connections silent for 5 minutes
			MinLevel:      "info",
			AllowedEvents: []string{"job_update", "system_message"},
			ThrottleIntervals: map[string]string{
				"job_progress": "2s", // Coalesce bursty progress updates
			},
			RatePerSecond: 20, // Outbound ceiling per connection
			RateBurst:     40,
		},
		Extraction: ExtractionConfig{
			MaxUploadBytes: 25 * 1024 * 1024, // 25 MB
			PDFPageLimit:   200,
			TempDir:        "", // Empty = os.TempDir()
		},
		Reports: ReportsConfig{
			Enabled:  true,
			Author:   "Scrutor",
			PageSize: "A4",
		},
		Fetcher: FetcherConfig{
			UserAgent:      "Mozilla/5.0 (compatible; Scrutor/1.0; +https://github.com/ternarybob/scrutor)",
			RequestTimeout: "30s",
			MaxBodySize:    10 * 1024 * 1024, // 10 MB
			UseBrowser:     false,            // Plain HTTP fetch unless JS rendering is needed
			BrowserTimeout: "60s",
		},
		Mail: MailConfig{
			Enabled:      false,
			Mailbox:      "INBOX",
			PollInterval: "2m",
			MaxMessages:  10,
			AutoSubmit:   true,
		},
		GitHub: GitHubConfig{
			Token: "",
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-3-flash-preview",
			Thinking:    "NORMAL",
			MaxTurns:    10,
			Timeout:     "5m",
			RateLimit:   "4s", // 15 RPM free tier
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			Thinking:    "NORMAL",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Workers: WorkersConfig{
			Debug: false, // Disabled by default - zero overhead in production
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
// kvStorage can be nil for backward compatibility (replacement will be skipped)
func LoadFromFile(kvStorage interfaces.KeyValueStorage, path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles(kvStorage)
	}
	return LoadFromFiles(kvStorage, path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files. Priority system: CLI flags > Environment variables > Last config file > ... > First config file > Defaults
// Example: LoadFromFiles(kvStorage, "base.toml", "override.toml") - override.toml settings take precedence over base.toml
// kvStorage can be nil for backward compatibility (replacement will be skipped)
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Perform {key-name} replacement if KV storage is available
	if kvStorage != nil {
		ctx := context.Background()
		kvMap, err := kvStorage.GetAll(ctx)
		if err != nil {
			// Log warning and skip replacement (graceful degradation)
			logger := arbor.NewLogger()
			logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		} else {
			// Replace in config struct
			logger := arbor.NewLogger()
			if err := ReplaceInStruct(config, kvMap, logger); err != nil {
				logger.Warn().Err(err).Msg("Failed to replace key references in config")
			} else {
				logger.Info().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
			}
		}
	}

	// Apply environment variables (overrides all file configs and replacements)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: SCRUTOR_ENV, fallback: GO_ENV)
	if env := os.Getenv("SCRUTOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SCRUTOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SCRUTOR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if pollInterval := os.Getenv("SCRUTOR_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		if _, err := time.ParseDuration(pollInterval); err == nil {
			config.Queue.PollInterval = pollInterval
		}
	}
	if concurrency := os.Getenv("SCRUTOR_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil && c > 0 {
			config.Queue.Concurrency = c
		}
	}
	if maxReceive := os.Getenv("SCRUTOR_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil && mr > 0 {
			config.Queue.MaxReceive = mr
		}
	}
	if staleMinutes := os.Getenv("SCRUTOR_QUEUE_STALE_JOB_MINUTES"); staleMinutes != "" {
		if sm, err := strconv.Atoi(staleMinutes); err == nil && sm > 0 {
			config.Queue.StaleJobMinutes = sm
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("SCRUTOR_STORAGE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if resetOnStartup := os.Getenv("SCRUTOR_STORAGE_BADGER_RESET_ON_STARTUP"); resetOnStartup != "" {
		if ros, err := strconv.ParseBool(resetOnStartup); err == nil {
			config.Storage.Badger.ResetOnStartup = ros
		}
	}

	// Logging configuration
	if level := os.Getenv("SCRUTOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SCRUTOR_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("SCRUTOR_LOG_OUTPUT"); output != "" {
		// Split comma-separated outputs
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	// Pipelines configuration
	if definitionsDir := os.Getenv("SCRUTOR_PIPELINES_DIR"); definitionsDir != "" {
		config.Pipelines.DefinitionsDir = definitionsDir
	}
	if defaultPipeline := os.Getenv("SCRUTOR_PIPELINES_DEFAULT"); defaultPipeline != "" {
		config.Pipelines.Default = defaultPipeline
	}

	// Status broadcaster configuration
	if queueCapacity := os.Getenv("SCRUTOR_STATUS_QUEUE_CAPACITY"); queueCapacity != "" {
		if qc, err := strconv.Atoi(queueCapacity); err == nil && qc > 0 {
			config.Status.QueueCapacity = qc
		}
	}
	if pingInterval := os.Getenv("SCRUTOR_STATUS_PING_INTERVAL"); pingInterval != "" {
		if _, err := time.ParseDuration(pingInterval); err == nil {
			config.Status.PingInterval = pingInterval
		}
	}
	if staleTimeout := os.Getenv("SCRUTOR_STATUS_STALE_TIMEOUT"); staleTimeout != "" {
		if _, err := time.ParseDuration(staleTimeout); err == nil {
			config.Status.StaleTimeout = staleTimeout
		}
	}
	if minLevel := os.Getenv("SCRUTOR_STATUS_MIN_LEVEL"); minLevel != "" {
		config.Status.MinLevel = minLevel
	}
	if allowedEvents := os.Getenv("SCRUTOR_STATUS_ALLOWED_EVENTS"); allowedEvents != "" {
		// Split comma-separated event types
		events := []string{}
		for _, e := range splitString(allowedEvents, ",") {
			trimmed := trimSpace(e)
			if trimmed != "" {
				events = append(events, trimmed)
			}
		}
		if len(events) > 0 {
			config.Status.AllowedEvents = events
		}
	}
	if progressThrottle := os.Getenv("SCRUTOR_STATUS_THROTTLE_JOB_PROGRESS"); progressThrottle != "" {
		// Parse duration string (e.g., "2s", "1500ms")
		if _, err := time.ParseDuration(progressThrottle); err == nil {
			if config.Status.ThrottleIntervals == nil {
				config.Status.ThrottleIntervals = make(map[string]string)
			}
			config.Status.ThrottleIntervals["job_progress"] = progressThrottle
		}
	}
	if ratePerSecond := os.Getenv("SCRUTOR_STATUS_RATE_PER_SECOND"); ratePerSecond != "" {
		if rps, err := strconv.ParseFloat(ratePerSecond, 64); err == nil && rps >= 0 {
			config.Status.RatePerSecond = rps
		}
	}
	if rateBurst := os.Getenv("SCRUTOR_STATUS_RATE_BURST"); rateBurst != "" {
		if rb, err := strconv.Atoi(rateBurst); err == nil && rb > 0 {
			config.Status.RateBurst = rb
		}
	}

	// Extraction configuration
	if maxUpload := os.Getenv("SCRUTOR_EXTRACTION_MAX_UPLOAD_BYTES"); maxUpload != "" {
		if mu, err := strconv.ParseInt(maxUpload, 10, 64); err == nil && mu > 0 {
			config.Extraction.MaxUploadBytes = mu
		}
	}
	if pageLimit := os.Getenv("SCRUTOR_EXTRACTION_PDF_PAGE_LIMIT"); pageLimit != "" {
		if pl, err := strconv.Atoi(pageLimit); err == nil && pl >= 0 {
			config.Extraction.PDFPageLimit = pl
		}
	}
	if tempDir := os.Getenv("SCRUTOR_EXTRACTION_TEMP_DIR"); tempDir != "" {
		config.Extraction.TempDir = tempDir
	}

	// Reports configuration
	if enabled := os.Getenv("SCRUTOR_REPORTS_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Reports.Enabled = e
		}
	}
	if author := os.Getenv("SCRUTOR_REPORTS_AUTHOR"); author != "" {
		config.Reports.Author = author
	}
	if pageSize := os.Getenv("SCRUTOR_REPORTS_PAGE_SIZE"); pageSize != "" {
		config.Reports.PageSize = pageSize
	}

	// Fetcher configuration
	if userAgent := os.Getenv("SCRUTOR_FETCHER_USER_AGENT"); userAgent != "" {
		config.Fetcher.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("SCRUTOR_FETCHER_REQUEST_TIMEOUT"); requestTimeout != "" {
		if _, err := time.ParseDuration(requestTimeout); err == nil {
			config.Fetcher.RequestTimeout = requestTimeout
		}
	}
	if maxBodySize := os.Getenv("SCRUTOR_FETCHER_MAX_BODY_SIZE"); maxBodySize != "" {
		if mbs, err := strconv.Atoi(maxBodySize); err == nil && mbs > 0 {
			config.Fetcher.MaxBodySize = mbs
		}
	}
	if useBrowser := os.Getenv("SCRUTOR_FETCHER_USE_BROWSER"); useBrowser != "" {
		if ub, err := strconv.ParseBool(useBrowser); err == nil {
			config.Fetcher.UseBrowser = ub
		}
	}
	if browserTimeout := os.Getenv("SCRUTOR_FETCHER_BROWSER_TIMEOUT"); browserTimeout != "" {
		if _, err := time.ParseDuration(browserTimeout); err == nil {
			config.Fetcher.BrowserTimeout = browserTimeout
		}
	}

	// Mail configuration
	if enabled := os.Getenv("SCRUTOR_MAIL_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Mail.Enabled = e
		}
	}
	if server := os.Getenv("SCRUTOR_MAIL_SERVER"); server != "" {
		config.Mail.Server = server
	}
	if username := os.Getenv("SCRUTOR_MAIL_USERNAME"); username != "" {
		config.Mail.Username = username
	}
	if password := os.Getenv("SCRUTOR_MAIL_PASSWORD"); password != "" {
		config.Mail.Password = password
	}
	if mailbox := os.Getenv("SCRUTOR_MAIL_MAILBOX"); mailbox != "" {
		config.Mail.Mailbox = mailbox
	}
	if pollInterval := os.Getenv("SCRUTOR_MAIL_POLL_INTERVAL"); pollInterval != "" {
		if _, err := time.ParseDuration(pollInterval); err == nil {
			config.Mail.PollInterval = pollInterval
		}
	}

	// GitHub configuration
	if token := os.Getenv("SCRUTOR_GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	} else if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}

	// Scheduler configuration
	if enabled := os.Getenv("SCRUTOR_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("SCRUTOR_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("SCRUTOR_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if thinking := os.Getenv("SCRUTOR_GEMINI_THINKING"); thinking != "" {
		config.Gemini.Thinking = thinking
	}
	if maxTurns := os.Getenv("SCRUTOR_GEMINI_MAX_TURNS"); maxTurns != "" {
		if mt, err := strconv.Atoi(maxTurns); err == nil {
			config.Gemini.MaxTurns = mt
		}
	}
	if timeout := os.Getenv("SCRUTOR_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("SCRUTOR_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if temperature := os.Getenv("SCRUTOR_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("SCRUTOR_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // SCRUTOR_ prefix takes priority
	}
	if model := os.Getenv("SCRUTOR_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if thinking := os.Getenv("SCRUTOR_CLAUDE_THINKING"); thinking != "" {
		config.Claude.Thinking = thinking
	}
	if maxTokens := os.Getenv("SCRUTOR_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("SCRUTOR_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("SCRUTOR_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}
	if temperature := os.Getenv("SCRUTOR_CLAUDE_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Claude.Temperature = float32(t)
		}
	}

	// LLM provider configuration
	if provider := os.Getenv("SCRUTOR_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Workers configuration
	if debug := os.Getenv("SCRUTOR_WORKERS_DEBUG"); debug != "" {
		if d, err := strconv.ParseBool(debug); err == nil {
			config.Workers.Debug = d
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables → KV store → config fallback → error
// This ensures SCRUTOR_* environment variables always take precedence
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	// Map of KV store key names to environment variable names
	// Environment variables have highest priority
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"SCRUTOR_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"SCRUTOR_CLAUDE_API_KEY"},
		"claude_api_key":    {"SCRUTOR_CLAUDE_API_KEY"},
		"github_token":      {"SCRUTOR_GITHUB_TOKEN", "GITHUB_TOKEN"},
	}

	// For Claude, also check the standard ANTHROPIC_API_KEY env var
	if name == "anthropic_api_key" || name == "claude_api_key" {
		if envValue := os.Getenv("ANTHROPIC_API_KEY"); envValue != "" {
			return envValue, nil
		}
	}

	// Check environment variables (highest priority)
	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Try to resolve from KV store (medium priority - file-based variables)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Fallback to config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// ValidateJobSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateJobSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are allowed
// Test URLs are only allowed in development mode
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}

// DeepCloneConfig creates a deep copy of the Config struct
// Used by handlers that expose a sanitized view of the running config
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	// Clone the config struct (shallow copy first)
	clone := *c

	// Deep clone slice and map fields to prevent shared memory
	if len(c.DeleteOnStartup) > 0 {
		clone.DeleteOnStartup = make([]string, len(c.DeleteOnStartup))
		copy(clone.DeleteOnStartup, c.DeleteOnStartup)
	}

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.Status.AllowedEvents) > 0 {
		clone.Status.AllowedEvents = make([]string, len(c.Status.AllowedEvents))
		copy(clone.Status.AllowedEvents, c.Status.AllowedEvents)
	}

	if len(c.Status.ThrottleIntervals) > 0 {
		clone.Status.ThrottleIntervals = make(map[string]string, len(c.Status.ThrottleIntervals))
		for k, v := range c.Status.ThrottleIntervals {
			clone.Status.ThrottleIntervals[k] = v
		}
	}

	return &clone
}
