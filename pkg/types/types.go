package types

import "time"

// Config represents the application configuration
type Config struct {
	Servers  map[string]ServerConfig `yaml:"servers"`
	Compiler CompilerConfig          `yaml:"compiler"`
	Dispatch DispatchConfig          `yaml:"dispatch"`
	LLM      LLMConfig               `yaml:"llm"`
	Logging  LoggingConfig           `yaml:"logging"`
}

// ServerConfig defines MCP server connection parameters
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Command   []string          `yaml:"command"`   // For stdio transport
	Env       []string          `yaml:"env"`       // Extra KEY=VALUE pairs for stdio servers
	URL       string            `yaml:"url"`       // For HTTP transport
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Timeout   time.Duration     `yaml:"timeout"`
	Headers   map[string]string `yaml:"headers,omitempty"` // HTTP headers (e.g., Authorization)
	// Routes maps a job type (tts, image_generation, ...) to the tool that executes it.
	Routes       map[string]string `yaml:"routes"`
	Capabilities struct {
		Tools []string `yaml:"tools"`
	} `yaml:"capabilities"`
}

// CompilerConfig tunes the manifest compiler.
type CompilerConfig struct {
	Tolerance            float64       `yaml:"tolerance"`
	MinSceneSeconds      float64       `yaml:"min_scene_seconds"`
	MinNormalizedSeconds float64       `yaml:"min_normalized_seconds"`
	MaxRepairRounds      int           `yaml:"max_repair_rounds"`
	AdvisoryTimeout      time.Duration `yaml:"advisory_timeout"`
	AdvisoryRetries      int           `yaml:"advisory_retries"` // 0 means default (1), negative disables retries
	// RequireGeneratedAssetJobs is a pointer so an explicit false survives defaulting.
	RequireGeneratedAssetJobs *bool          `yaml:"require_generated_asset_jobs"`
	Defaults                  DefaultsConfig `yaml:"defaults"`
}

// DefaultsConfig holds the last-resort metadata values.
type DefaultsConfig struct {
	Title           string  `yaml:"title"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	AspectRatio     string  `yaml:"aspect_ratio"`
	Language        string  `yaml:"language"`
	Profile         string  `yaml:"profile"`
	CinematicLevel  string  `yaml:"cinematic_level"`
	Priority        int     `yaml:"priority"`
	FPS             int     `yaml:"fps"`
	TTSProvider     string  `yaml:"tts_provider"`
	TTSVoice        string  `yaml:"tts_voice"`
	TTSFormat       string  `yaml:"tts_format"`
	MusicProvider   string  `yaml:"music_provider"`
}

// DispatchConfig controls job execution against MCP servers.
type DispatchConfig struct {
	Parallelism int           `yaml:"parallelism"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
}

// LLMConfig defines the optional advisory model configuration
type LLMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // "anthropic", "google", "openai", "openrouter"
	Extract  bool   `yaml:"extract"`  // Ask the model for scene structure
	Repair   bool   `yaml:"repair"`   // Ask the model to repair invalid manifests

	// Provider-specific configurations
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Google     GoogleConfig     `yaml:"google"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
}

// AnthropicConfig for Claude
type AnthropicConfig struct {
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"` // e.g., "claude-3-5-sonnet-20241022"
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// GoogleConfig for Gemini
type GoogleConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`   // e.g., "gemini-2.0-flash"
	Project string        `yaml:"project"` // GCP project ID (optional, for Vertex AI)
	Timeout time.Duration `yaml:"timeout"`
}

// OpenAIConfig for GPT models
type OpenAIConfig struct {
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`        // e.g., "gpt-4o"
	Organization string        `yaml:"organization"` // Optional
	Timeout      time.Duration `yaml:"timeout"`
}

// OpenRouterConfig for OpenRouter
type OpenRouterConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"` // e.g., "anthropic/claude-3.5-sonnet"
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolCallResult represents the result of a tool invocation
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// ContentBlock represents a content item in tool result
type ContentBlock struct {
	Type string `json:"type"` // "text", "image", "resource"
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
	URI  string `json:"uri,omitempty"`
}
