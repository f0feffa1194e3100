package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	VendorAnthropic = "anthropic"
	VendorOpenAI    = "openai"
)

// ErrNoAPIKey is returned by ResolveVendor when neither vendor has a key.
var ErrNoAPIKey = errors.New("set either ANTHROPIC_API_KEY or OPENAI_API_KEY")

type ProviderConfig struct {
	Vendor          string            `json:"vendor"`
	Model           string            `json:"model"`
	Models          map[string]string `json:"models"`
	BaseURL         string            `json:"base_url"`
	APIKey          string            `json:"api_key"`
	AnthropicAPIKey string            `json:"anthropic_api_key"`
	OpenAIAPIKey    string            `json:"openai_api_key"`
	TimeoutMS       int               `json:"timeout_ms"`
	MaxRetries      int               `json:"max_retries"`
	MaxTokens       int               `json:"max_tokens"`
}

type SafetyConfig struct {
	CommandTimeoutMS int `json:"command_timeout_ms"`
	OutputLimitBytes int `json:"output_limit_bytes"`
}

type SSHConfig struct {
	KeyPaths   []string `json:"key_paths"`
	UseAgent   *bool    `json:"use_agent,omitempty"`
	KnownHosts string   `json:"known_hosts"`
	TimeoutMS  int      `json:"timeout_ms"`
}

// AgentEnabled reports whether ssh-agent authentication should be attempted.
func (c SSHConfig) AgentEnabled() bool {
	return c.UseAgent == nil || *c.UseAgent
}

type WebConfig struct {
	TimeoutSec int    `json:"timeout_sec"`
	MaxSizeKB  int    `json:"max_size_kb"`
	UserAgent  string `json:"user_agent"`
}

type TasksConfig struct {
	Dir          string `json:"dir"`
	RunTimeoutMS int    `json:"run_timeout_ms"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Safety   SafetyConfig   `json:"safety"`
	SSH      SSHConfig      `json:"ssh"`
	Web      WebConfig      `json:"web"`
	Tasks    TasksConfig    `json:"tasks"`
	Storage  StorageConfig  `json:"storage"`
	Log      LogConfig      `json:"log"`
}

type fileConfig struct {
	Provider *ProviderConfig `json:"provider"`
	Safety   *SafetyConfig   `json:"safety"`
	SSH      *SSHConfig      `json:"ssh"`
	Web      *WebConfig      `json:"web"`
	Tasks    *TasksConfig    `json:"tasks"`
	Storage  *StorageConfig  `json:"storage"`
	Log      *LogConfig      `json:"log"`

	// Flat keys written by `ask config`.
	OpenAIKey    string `json:"OPENAI_API_KEY"`
	AnthropicKey string `json:"ANTHROPIC_API_KEY"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Models: map[string]string{
				"haiku":   "claude-3-5-haiku-20241022",
				"sonnet":  "claude-3-5-sonnet-latest",
				"4o":      "gpt-4o",
				"4o-mini": "gpt-4o-mini",
			},
			TimeoutMS:  120000,
			MaxRetries: 3,
			MaxTokens:  DefaultMaxTokens,
		},
		Safety: SafetyConfig{
			CommandTimeoutMS: 120000,
			OutputLimitBytes: 1 << 20,
		},
		SSH: SSHConfig{
			KeyPaths:  []string{"~/.ssh/id_ed25519", "~/.ssh/id_rsa", "~/.ssh/id_ecdsa"},
			TimeoutMS: 15000,
		},
		Web: WebConfig{
			TimeoutSec: 30,
			MaxSizeKB:  5 * 1024,
			UserAgent:  DefaultUserAgent,
		},
		Tasks: TasksConfig{
			Dir:          "~/.ask/tasks",
			RunTimeoutMS: 300000,
		},
		Storage: StorageConfig{
			BaseDir: "~/.ask",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load 依次合并默认值、全局配置、项目配置与环境变量
// Load merges defaults, the global file, the project file and environment overrides
func Load(path string) (Config, error) {
	cfg := Default()
	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}
	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("ASK_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

// GlobalConfigPath returns ~/.ask/config.json.
func GlobalConfigPath() string {
	paths := globalConfigPaths()
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".ask", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"ask.config.json",
		".ask/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}
	var fileCfg fileConfig
	if err := json.Unmarshal(stripJSONComments(data), &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if v := strings.TrimSpace(fc.AnthropicKey); v != "" {
		cfg.Provider.AnthropicAPIKey = v
	}
	if v := strings.TrimSpace(fc.OpenAIKey); v != "" {
		cfg.Provider.OpenAIAPIKey = v
	}
	if fc.Safety != nil {
		if fc.Safety.CommandTimeoutMS > 0 {
			cfg.Safety.CommandTimeoutMS = fc.Safety.CommandTimeoutMS
		}
		if fc.Safety.OutputLimitBytes > 0 {
			cfg.Safety.OutputLimitBytes = fc.Safety.OutputLimitBytes
		}
	}
	if fc.SSH != nil {
		cfg.SSH = mergeSSH(cfg.SSH, *fc.SSH)
	}
	if fc.Web != nil {
		if fc.Web.TimeoutSec > 0 {
			cfg.Web.TimeoutSec = fc.Web.TimeoutSec
		}
		if fc.Web.MaxSizeKB > 0 {
			cfg.Web.MaxSizeKB = fc.Web.MaxSizeKB
		}
		if strings.TrimSpace(fc.Web.UserAgent) != "" {
			cfg.Web.UserAgent = fc.Web.UserAgent
		}
	}
	if fc.Tasks != nil {
		if strings.TrimSpace(fc.Tasks.Dir) != "" {
			cfg.Tasks.Dir = fc.Tasks.Dir
		}
		if fc.Tasks.RunTimeoutMS > 0 {
			cfg.Tasks.RunTimeoutMS = fc.Tasks.RunTimeoutMS
		}
	}
	if fc.Storage != nil && strings.TrimSpace(fc.Storage.BaseDir) != "" {
		cfg.Storage.BaseDir = fc.Storage.BaseDir
	}
	if fc.Log != nil {
		if strings.TrimSpace(fc.Log.Level) != "" {
			cfg.Log.Level = fc.Log.Level
		}
		if strings.TrimSpace(fc.Log.File) != "" {
			cfg.Log.File = fc.Log.File
		}
	}
}

func mergeProvider(base ProviderConfig, override ProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.Vendor) != "" {
		base.Vendor = override.Vendor
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if strings.TrimSpace(override.AnthropicAPIKey) != "" {
		base.AnthropicAPIKey = override.AnthropicAPIKey
	}
	if strings.TrimSpace(override.OpenAIAPIKey) != "" {
		base.OpenAIAPIKey = override.OpenAIAPIKey
	}
	if len(override.Models) > 0 {
		merged := make(map[string]string, len(base.Models)+len(override.Models))
		for k, v := range base.Models {
			merged[k] = v
		}
		for k, v := range override.Models {
			merged[k] = v
		}
		base.Models = merged
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	if override.MaxTokens > 0 {
		base.MaxTokens = override.MaxTokens
	}
	return base
}

func mergeSSH(base SSHConfig, override SSHConfig) SSHConfig {
	if len(override.KeyPaths) > 0 {
		base.KeyPaths = append([]string(nil), override.KeyPaths...)
	}
	if override.UseAgent != nil {
		v := *override.UseAgent
		base.UseAgent = &v
	}
	if strings.TrimSpace(override.KnownHosts) != "" {
		base.KnownHosts = override.KnownHosts
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func normalize(cfg *Config) error {
	def := Default()
	cfg.Provider.Vendor = strings.ToLower(strings.TrimSpace(cfg.Provider.Vendor))
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}
	if cfg.Provider.MaxRetries <= 0 {
		cfg.Provider.MaxRetries = def.Provider.MaxRetries
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = def.Provider.MaxTokens
	}
	if len(cfg.Provider.Models) == 0 {
		cfg.Provider.Models = def.Provider.Models
	}
	if cfg.Safety.CommandTimeoutMS <= 0 {
		cfg.Safety.CommandTimeoutMS = def.Safety.CommandTimeoutMS
	}
	if cfg.Safety.OutputLimitBytes <= 0 {
		cfg.Safety.OutputLimitBytes = def.Safety.OutputLimitBytes
	}
	if cfg.SSH.TimeoutMS <= 0 {
		cfg.SSH.TimeoutMS = def.SSH.TimeoutMS
	}
	if cfg.Web.TimeoutSec <= 0 {
		cfg.Web.TimeoutSec = def.Web.TimeoutSec
	}
	if cfg.Web.MaxSizeKB <= 0 {
		cfg.Web.MaxSizeKB = def.Web.MaxSizeKB
	}
	if strings.TrimSpace(cfg.Web.UserAgent) == "" {
		cfg.Web.UserAgent = def.Web.UserAgent
	}
	if cfg.Tasks.RunTimeoutMS <= 0 {
		cfg.Tasks.RunTimeoutMS = def.Tasks.RunTimeoutMS
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}

	var err error
	if strings.TrimSpace(cfg.Storage.BaseDir) == "" {
		cfg.Storage.BaseDir = def.Storage.BaseDir
	}
	if cfg.Storage.BaseDir, err = expandPath(cfg.Storage.BaseDir); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Tasks.Dir) == "" {
		cfg.Tasks.Dir = filepath.Join(cfg.Storage.BaseDir, "tasks")
	}
	if cfg.Tasks.Dir, err = expandPath(cfg.Tasks.Dir); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Log.File) == "" {
		cfg.Log.File = filepath.Join(cfg.Storage.BaseDir, "logs", "ask.log")
	}
	if cfg.Log.File, err = expandPath(cfg.Log.File); err != nil {
		return err
	}
	if cfg.SSH.KnownHosts != "" {
		if cfg.SSH.KnownHosts, err = expandPath(cfg.SSH.KnownHosts); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(cfg.SSH.KeyPaths))
	for _, p := range cfg.SSH.KeyPaths {
		expanded, err := expandPath(p)
		if err != nil || expanded == "" {
			continue
		}
		keys = append(keys, expanded)
	}
	cfg.SSH.KeyPaths = keys
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" && cfg.Provider.AnthropicAPIKey == "" {
		cfg.Provider.AnthropicAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" && cfg.Provider.OpenAIAPIKey == "" {
		cfg.Provider.OpenAIAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ASK_VENDOR")); v != "" {
		cfg.Provider.Vendor = v
	}
	if v := strings.TrimSpace(os.Getenv("ASK_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("ASK_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ASK_TASKS_DIR")); v != "" {
		cfg.Tasks.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("ASK_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("ASK_MAX_TOKENS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid ASK_MAX_TOKENS: %q", v)
		}
		cfg.Provider.MaxTokens = n
	}
	return cfg, normalize(&cfg)
}

// ResolveVendor 选择后端厂商：显式配置优先，否则 Anthropic 优先于 OpenAI
// ResolveVendor picks the backend vendor: explicit config wins, otherwise Anthropic before OpenAI
func (c Config) ResolveVendor() (string, error) {
	switch c.Provider.Vendor {
	case VendorAnthropic:
		if c.Provider.AnthropicAPIKey == "" && c.Provider.APIKey == "" {
			return "", fmt.Errorf("vendor %s: %w", VendorAnthropic, ErrNoAPIKey)
		}
		return VendorAnthropic, nil
	case VendorOpenAI:
		if c.Provider.OpenAIAPIKey == "" && c.Provider.APIKey == "" {
			return "", fmt.Errorf("vendor %s: %w", VendorOpenAI, ErrNoAPIKey)
		}
		return VendorOpenAI, nil
	case "":
	default:
		return "", fmt.Errorf("unknown vendor %q", c.Provider.Vendor)
	}
	if c.Provider.AnthropicAPIKey != "" {
		return VendorAnthropic, nil
	}
	if c.Provider.OpenAIAPIKey != "" {
		return VendorOpenAI, nil
	}
	return "", ErrNoAPIKey
}

// APIKeyFor returns the key used for vendor, falling back to provider.api_key.
func (c Config) APIKeyFor(vendor string) string {
	switch vendor {
	case VendorAnthropic:
		if c.Provider.AnthropicAPIKey != "" {
			return c.Provider.AnthropicAPIKey
		}
	case VendorOpenAI:
		if c.Provider.OpenAIAPIKey != "" {
			return c.Provider.OpenAIAPIKey
		}
	}
	return c.Provider.APIKey
}

// ModelFor resolves the model id for vendor: an explicit model or alias, else the vendor default.
func (c Config) ModelFor(vendor string) (alias string, model string) {
	alias = strings.TrimSpace(c.Provider.Model)
	if alias == "" {
		alias = DefaultModelOption(vendor)
	}
	if id, ok := c.Provider.Models[alias]; ok {
		return alias, id
	}
	return alias, alias
}

// DefaultModelOption returns the alias used when no model is configured.
func DefaultModelOption(vendor string) string {
	if vendor == VendorOpenAI {
		return "4o"
	}
	return "haiku"
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
