package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	CORS        CORSConfig     `mapstructure:"cors"`
	Log         LogConfig      `mapstructure:"log"`
	Dify        DifyConfig     `mapstructure:"dify"`
	Workflow    WorkflowConfig `mapstructure:"workflow"`
	Image       ImageConfig    `mapstructure:"image"`
	Chat        ChatConfig     `mapstructure:"chat"`
	Business    BusinessConfig `mapstructure:"business"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DifyConfig 工作流引擎连接参数
type DifyConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	WorkflowID     string        `mapstructure:"workflow_id"`
	ResponseMode   string        `mapstructure:"response_mode"`
	User           string        `mapstructure:"user"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// WorkflowConfig 轮询策略
type WorkflowConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts int           `mapstructure:"max_poll_attempts"`
}

type ImageConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	WorkflowID      string        `mapstructure:"workflow_id"`
	Timeout         time.Duration `mapstructure:"timeout"`
	FallbackEnabled bool          `mapstructure:"fallback_enabled"`
	MockBaseURL     string        `mapstructure:"mock_base_url"`
	LLMAPIKey       string        `mapstructure:"llm_api_key"`
	LLMBaseURL      string        `mapstructure:"llm_base_url"`
	LiteLLMEnabled  bool          `mapstructure:"litellm_enabled"`
	LiteLLMModel    string        `mapstructure:"litellm_model"`
}

type ChatConfig struct {
	Backend          string   `mapstructure:"backend"`
	DefaultModel     string   `mapstructure:"default_model"`
	Models           []string `mapstructure:"models"`
	StreamChunkRunes int      `mapstructure:"stream_chunk_runes"`
}

type BusinessConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	DataDir   string `mapstructure:"data_dir"`
	CacheSize int    `mapstructure:"cache_size"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

const (
	BackendWorkflow    = "workflow"
	BackendBusinessAPI = "business_api"
)

// 环境变量名沿用部署脚本中已有的名字
var envBindings = map[string][]string{
	"environment":            {"ENVIRONMENT"},
	"server.port":            {"PORT", "ADAPTER_PORT"},
	"log.level":              {"LOG_LEVEL"},
	"log.format":             {"LOG_FORMAT"},
	"log.output":             {"LOG_OUTPUT"},
	"log.file":               {"LOG_FILE"},
	"dify.base_url":          {"DIFY_BASE_URL"},
	"dify.api_key":           {"DIFY_API_KEY"},
	"dify.workflow_id":       {"DIFY_WORKFLOW_ID"},
	"workflow.timeout":       {"DIFY_WORKFLOW_TIMEOUT"},
	"workflow.poll_interval": {"DIFY_POLL_INTERVAL"},
	"image.api_key":          {"DIFY_PPT_IMAGE_API_KEY"},
	"image.workflow_id":      {"DIFY_PPT_IMAGE__WORKFLOW_ID"},
	"image.fallback_enabled": {"IMAGE_MOCK_FALLBACK_ENABLED"},
	"image.mock_base_url":    {"MOCK_IMAGE_BASE_URL"},
	"image.llm_api_key":      {"LLM_IMAGE_API_KEY"},
	"image.llm_base_url":     {"LLM_IMAGE_BASE_URL"},
	"image.litellm_enabled":  {"ENABLE_LITELLM_IMAGE"},
	"image.litellm_model":    {"LITELLM_IMAGE_MODEL"},
	"chat.backend":           {"CHAT_BACKEND"},
	"chat.default_model":     {"DEFAULT_MODEL"},
	"business.base_url":      {"BUSINESS_API_BASE_URL", "BUSINESS_API_URL"},
	"business.api_key":       {"BUSINESS_API_KEY"},
	"storage.type":           {"STORAGE_TYPE"},
	"storage.data_dir":       {"DATA_DIR"},
	"metrics.enabled":        {"METRICS_ENABLED"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// 同步请求要等工作流结束，写超时需覆盖图片工作流的最长等待
	v.SetDefault("server.write_timeout", 300*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.exposed_headers", []string{"X-Request-ID"})
	v.SetDefault("cors.max_age", 600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/adapter.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("dify.base_url", "https://api.dify.ai/v1")
	v.SetDefault("dify.response_mode", "blocking")
	v.SetDefault("dify.user", "api-user")
	v.SetDefault("dify.request_timeout", 30*time.Second)

	v.SetDefault("workflow.timeout", 120*time.Second)
	v.SetDefault("workflow.poll_interval", time.Second)
	v.SetDefault("workflow.max_poll_attempts", 3)

	v.SetDefault("image.timeout", 180*time.Second)
	v.SetDefault("image.fallback_enabled", false)
	v.SetDefault("image.mock_base_url", "https://picsum.photos")
	v.SetDefault("image.litellm_enabled", false)
	v.SetDefault("image.litellm_model", "openai/gpt-image-1")

	v.SetDefault("chat.backend", BackendWorkflow)
	v.SetDefault("chat.default_model", "my-custom-model")
	v.SetDefault("chat.models", []string{"my-custom-model"})
	v.SetDefault("chat.stream_chunk_runes", 16)

	v.SetDefault("business.base_url", "http://localhost:8002")
	v.SetDefault("business.timeout", 60*time.Second)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.cache_size", 500)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// LoadEnvFiles 依次加载 .env 文件；已存在的进程环境变量优先
func LoadEnvFiles(files ...string) {
	candidates := append([]string{".env", "config/.env"}, files...)
	for _, f := range candidates {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			logger.Warnf("加载环境文件失败 %s: %v", f, err)
			continue
		}
		logger.Debugf("已加载环境文件: %s", f)
	}
}

// Load 读取配置。configPath 为空或文件不存在时只使用默认值和环境变量
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config %s: %w", configPath, err)
			}
			logger.Warnf("配置文件不存在，使用默认配置: %s", configPath)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive"))
	}
	if c.Workflow.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("workflow.timeout must be positive"))
	}
	if c.Workflow.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("workflow.poll_interval must be positive"))
	}
	if c.Workflow.MaxPollAttempts <= 0 {
		errs = append(errs, fmt.Errorf("workflow.max_poll_attempts must be positive"))
	}
	if c.Image.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("image.timeout must be positive"))
	}
	if c.Dify.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dify.request_timeout must be positive"))
	}
	if c.Chat.StreamChunkRunes <= 0 {
		errs = append(errs, fmt.Errorf("chat.stream_chunk_runes must be positive"))
	}

	switch c.Chat.Backend {
	case BackendWorkflow:
		if c.Dify.APIKey == "" || c.Dify.WorkflowID == "" {
			errs = append(errs, fmt.Errorf("chat backend %q requires DIFY_API_KEY and DIFY_WORKFLOW_ID", c.Chat.Backend))
		}
	case BackendBusinessAPI:
		if c.Business.BaseURL == "" {
			errs = append(errs, fmt.Errorf("chat backend %q requires business.base_url", c.Chat.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chat backend %q", c.Chat.Backend))
	}

	switch c.Storage.Type {
	case "memory", "disk", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	return errors.Join(errs...)
}

// IsProduction production / prod 均视为生产环境
func (c Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// FallbackAllowed 生产环境一律禁止占位图，无论开关如何配置
func (c Config) FallbackAllowed() bool {
	if c.IsProduction() {
		return false
	}
	return c.Image.FallbackEnabled
}

// LoggerOptions 转换为 logger 初始化参数
func (c LogConfig) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      strings.ToLower(c.Level),
		Format:     c.Format,
		Output:     c.Output,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}

// Summary 启动日志用，不输出任何密钥
func (c Config) Summary() logger.Fields {
	return logger.Fields{
		"environment":      c.Environment,
		"chat_backend":     c.Chat.Backend,
		"dify_base_url":    c.Dify.BaseURL,
		"dify_api_key":     keyState(c.Dify.APIKey),
		"image_api_key":    keyState(c.Image.APIKey),
		"workflow_timeout": c.Workflow.Timeout.String(),
		"poll_interval":    c.Workflow.PollInterval.String(),
		"fallback_allowed": c.FallbackAllowed(),
		"storage":          c.Storage.Type,
	}
}

func keyState(key string) string {
	if key == "" {
		return "unset"
	}
	return "set"
}
