package config

// Config is the root configuration for switchboard.
type Config struct {
	Model    ModelConfig    `yaml:"model,omitempty"`
	Agent    AgentConfig    `yaml:"agent,omitempty"`
	Bus      BusConfig      `yaml:"bus,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Schedule ScheduleConfig `yaml:"schedule,omitempty"`
}

// ModelConfig selects and configures the model backend.
type ModelConfig struct {
	Provider string `yaml:"provider,omitempty"` // "openai" | "anthropic"
	APIKey   string `yaml:"apiKey,omitempty"`   // supports ${ENV_VAR}
	BaseURL  string `yaml:"baseUrl,omitempty"`  // custom endpoint, e.g. an OpenAI-compatible server
	Model    string `yaml:"model,omitempty"`    // provider model id; empty uses the adapter default
}

// AgentConfig tunes the message-processing loop.
type AgentConfig struct {
	SystemPrompt       string   `yaml:"systemPrompt,omitempty"`
	MaxIterations      int      `yaml:"maxIterations,omitempty"` // model rounds per message
	MaxTokens          int      `yaml:"maxTokens,omitempty"`
	Temperature        *float64 `yaml:"temperature,omitempty"`
	HistoryWindow      int      `yaml:"historyWindow,omitempty"`      // past turns sent as context
	ToolTimeoutSeconds int      `yaml:"toolTimeoutSeconds,omitempty"` // per tool call
	PassTimeoutSeconds int      `yaml:"passTimeoutSeconds,omitempty"` // per message, 0 disables
}

// BusConfig sizes the event queues.
type BusConfig struct {
	InboundCapacity  int `yaml:"inboundCapacity,omitempty"`
	OutboundCapacity int `yaml:"outboundCapacity,omitempty"`
}

// StoreConfig selects the durable session driver.
type StoreConfig struct {
	Driver string      `yaml:"driver,omitempty"` // "sqlite" | "redis" | "memory"
	Path   string      `yaml:"path,omitempty"`   // sqlite database file
	Redis  RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Addr       string `yaml:"addr,omitempty"`
	Password   string `yaml:"password,omitempty"` // supports ${ENV_VAR}
	DB         int    `yaml:"db,omitempty"`
	TTLMinutes int    `yaml:"ttlMinutes,omitempty"` // 0 keeps records forever
}

// SessionConfig tunes the in-memory session cache.
type SessionConfig struct {
	IdleMinutes  int `yaml:"idleMinutes,omitempty"`  // evict cached sessions idle longer
	SweepMinutes int `yaml:"sweepMinutes,omitempty"` // eviction sweep interval
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
}

// ScheduleConfig lists cron jobs that inject synthetic messages.
type ScheduleConfig struct {
	Jobs []ScheduleJob `yaml:"jobs,omitempty"`
}

// ScheduleJob is one cron entry.
type ScheduleJob struct {
	Name    string `yaml:"name"`
	Expr    string `yaml:"expr"`
	Message string `yaml:"message"`
}
