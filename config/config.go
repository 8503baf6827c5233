package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the codeflow service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Repository RepositoryConfig `yaml:"repository"`
	Chunk      ChunkConfig      `yaml:"chunk"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	LLM        LLMConfig        `yaml:"llm"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	History    HistoryConfig    `yaml:"history"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// RepositoryConfig controls which repositories and files are collected.
type RepositoryConfig struct {
	BasePath        string   `yaml:"base_path"`
	IgnoreDirs      []string `yaml:"ignore_dirs"`
	Extensions      []string `yaml:"extensions"`
	ArtifactMarkers []string `yaml:"artifact_markers"`
	Excludes        []string `yaml:"excludes"`     // doublestar patterns on the relative path
	IgnoreMatch     string   `yaml:"ignore_match"` // "substring" or "component"
}

// ChunkConfig holds text splitting configuration. Lengths are in characters.
type ChunkConfig struct {
	Size       int      `yaml:"size"`
	Overlap    int      `yaml:"overlap"`
	Separators []string `yaml:"separators"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider       string   `yaml:"provider"` // "ollama", "openai", "hash"
	Model          string   `yaml:"model"`
	BaseURL        string   `yaml:"base_url"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	Dimension      int      `yaml:"dimension"` // 0 = learn from the first response
	BatchSize      int      `yaml:"batch_size"`
	Timeout        Duration `yaml:"timeout"`
	QueryCacheSize int      `yaml:"query_cache_size"`
	QueryCacheTTL  Duration `yaml:"query_cache_ttl"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK            int      `yaml:"top_k"`
	PrimaryMarker   string   `yaml:"primary_marker"`
	ArtifactMarkers []string `yaml:"artifact_markers"`
}

// LLMConfig holds chat completion provider configuration.
type LLMConfig struct {
	Provider    string   `yaml:"provider"` // display name used in soft error text
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
	MaxRetries  int      `yaml:"max_retries"`
	RetryDelay  Duration `yaml:"retry_delay"`
	JSONMode    bool     `yaml:"json_mode"`
}

// AnalysisConfig holds the prompts sent with every analysis.
type AnalysisConfig struct {
	Query        string `yaml:"query"`
	SystemPrompt string `yaml:"system_prompt"`
}

// HistoryConfig controls the persisted analysis history.
type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxPerRepo int    `yaml:"max_per_repo"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // empty disables export
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

const (
	IgnoreMatchSubstring = "substring"
	IgnoreMatchComponent = "component"
)

// DefaultQuery is the analytical question asked about every repository.
const DefaultQuery = `What is the purpose of the code?
Is there code that serves the same purpose written in multiple places at once?
Are there any logical errors?
Are there any syntax errors?
What improvements can be made?

Give the output in this format:
{
        "Summary": "The code is part of a React Native application for managing entities like bookings, partners, users, and boats. It includes pagination, CRUD operations, and UI components like charts, modals, and carousels.",
        "Redundancy": [
            {
                "Description": "Pagination logic (` + "`handlePrevPage`, `handleNextPage`, `handleRowsPerPageChange`" + `) is repeated in multiple files.",
                "Files": ["bookings.tsx", "partnerScreen.tsx", "users.tsx"]
            },
            {
                "Description": "Edit handlers for different entities (` + "`handleEditPartner`, `handleEditUser`" + `) follow the same pattern.",
                "Files": ["partnerScreen.tsx", "users.tsx"]
            }
        ],
        "LogicalErrors": [
            {
                "Description": "Pagination does not handle edge cases where ` + "`totalPages`" + ` is 0, potentially causing UI inconsistencies.",
                "File": "bookings.tsx"
            },
            {
                "Description": "State resets are incomplete in ` + "`handleAddBooking`" + `, possibly leading to stale form data.",
                "File": "bookings.tsx"
            }
        ],
        "SyntaxErrors": [
            {
                "Description": "Possible missing closing tags in JSX files.",
                "Files": ["carousel.tsx", "expenseModal.tsx"]
            }
        ],
        "Improvements": [
            {
                "Description": "Extract pagination logic into a reusable hook.",
                "Suggestion": "Create ` + "`usePagination`" + ` to handle page state and navigation."
            },
            {
                "Description": "Add safeguards for invalid ` + "`totalPages`" + `.",
                "Suggestion": "Ensure ` + "`totalPages = Math.max(1, totalPages)`" + ` to prevent pagination errors."
            },
            {
                "Description": "Generalize edit handlers into a single function with entity type as a parameter.",
                "Suggestion": "Refactor ` + "`handleEditPartner` and `handleEditUser`" + ` into a shared function."
            },
            {
                "Description": "Update outdated dependencies.",
                "Suggestion": "Upgrade ` + "`chalk@4.0.0` and `debug@4.3.4`" + ` to newer versions."
            },
            {
                "Description": "Improve TypeScript typing.",
                "Suggestion": "Define stricter types for entities like ` + "`Booking` and `User`" + ` to reduce ` + "`any`" + ` usage."
            }
        ]
    }
Do not Hallucinate
`

// DefaultSystemPrompt is the system message sent to the chat model.
const DefaultSystemPrompt = "You are a helpful code assistant. Analyze the provided code and answer questions about it."

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(10 * time.Minute),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Repository: RepositoryConfig{
			BasePath:        "repo",
			IgnoreDirs:      []string{"venv", "node_modules", ".git", "__pycache__", ".cxx", "build", "android/app/.cxx", "android/app/build"},
			Extensions:      []string{".py", ".js", ".ts", ".md", ".tsx", ".jsx", ".json"},
			ArtifactMarkers: []string{".cxx", "build"},
			IgnoreMatch:     IgnoreMatchSubstring,
		},
		Chunk: ChunkConfig{
			Size:       500,
			Overlap:    50,
			Separators: []string{"\n\n", "\n", " ", ""},
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			Model:          "all-minilm",
			BaseURL:        "http://localhost:11434/v1",
			Dimension:      384,
			BatchSize:      64,
			Timeout:        Duration(2 * time.Minute),
			QueryCacheSize: 32,
			QueryCacheTTL:  Duration(time.Hour),
		},
		Retrieve: RetrieveConfig{
			TopK:            15,
			PrimaryMarker:   "/src/",
			ArtifactMarkers: []string{".cxx", "build"},
		},
		LLM: LLMConfig{
			Provider:    "DeepSeek",
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-reasoner",
			APIKeyEnv:   "DEEPSEEK_API_KEY",
			Temperature: 0.3,
			MaxTokens:   1500,
			Timeout:     Duration(5 * time.Minute),
			MaxRetries:  0,
			RetryDelay:  Duration(2 * time.Second),
		},
		Analysis: AnalysisConfig{
			Query:        DefaultQuery,
			SystemPrompt: DefaultSystemPrompt,
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       filepath.Join(".codeflow", "history.db"),
			MaxPerRepo: 20,
		},
		Tracing: TracingConfig{
			ServiceName: "codeflow",
			SampleRate:  1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for codeflow.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "codeflow.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".codeflow", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides selected fields from CODEFLOW_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CODEFLOW_BASE_PATH"); v != "" {
		c.Repository.BasePath = v
	}
	if v := os.Getenv("CODEFLOW_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CODEFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CODEFLOW_OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Chunk.Size <= 0 {
		problems = append(problems, "chunk.size must be positive")
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		problems = append(problems, "chunk.overlap must be in [0, chunk.size)")
	}
	if c.Retrieve.TopK <= 0 {
		problems = append(problems, "retrieve.top_k must be positive")
	}
	if len(c.Repository.Extensions) == 0 {
		problems = append(problems, "repository.extensions must not be empty")
	}
	switch c.Repository.IgnoreMatch {
	case "", IgnoreMatchSubstring, IgnoreMatchComponent:
	default:
		problems = append(problems, fmt.Sprintf("repository.ignore_match %q is not one of substring, component", c.Repository.IgnoreMatch))
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
		if c.Embedding.Model == "" {
			problems = append(problems, "embedding.model is required")
		}
	case "hash":
		if c.Embedding.Dimension <= 0 {
			problems = append(problems, "embedding.dimension must be positive for the hash provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if c.LLM.Model == "" {
		problems = append(problems, "llm.model is required")
	}
	if c.LLM.MaxRetries < 0 {
		problems = append(problems, "llm.max_retries must not be negative")
	}
	if c.Analysis.Query == "" {
		problems = append(problems, "analysis.query must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// HistoryDBPath resolves the history database path against dir.
func (c *Config) HistoryDBPath(dir string) string {
	if filepath.IsAbs(c.History.Path) {
		return c.History.Path
	}
	return filepath.Join(dir, c.History.Path)
}

// RepoPath returns the directory for a named repository under the base path.
func (c *Config) RepoPath(name string) string {
	return filepath.Join(c.Repository.BasePath, name)
}
