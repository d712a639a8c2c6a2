// Package config 提供配置加载、校验与热更新.
// TOML 文件为主，APP_ 前缀的环境变量可覆盖任意键（如 APP_MODEL_C=2）。
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wyfcoding/smosvm/logging"
)

// Config 顶级配置.
type Config struct {
	App     AppConfig     `mapstructure:"app"     toml:"app"`
	Log     LogConfig     `mapstructure:"log"     toml:"log"`
	Data    DataConfig    `mapstructure:"data"    toml:"data"`
	Split   SplitConfig   `mapstructure:"split"   toml:"split"`
	Model   ModelConfig   `mapstructure:"model"   toml:"model"`
	Tuning  TuningConfig  `mapstructure:"tuning"  toml:"tuning"`
	Storage StorageConfig `mapstructure:"storage" toml:"storage"`
	Server  ServerConfig  `mapstructure:"server"  toml:"server"`
	Metrics MetricsConfig `mapstructure:"metrics" toml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" toml:"tracing"`
}

// AppConfig 应用标识.
type AppConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	Version     string `mapstructure:"version"     toml:"version"`
}

// LogConfig 日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"oneof=debug info warn warning error"`
	File       string `mapstructure:"file"        toml:"file"`        // 为空只输出到控制台
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`    // MB
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"` // 最大备份数
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`     // 天
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
	Console    bool   `mapstructure:"console"     toml:"console"` // 写文件时同时输出到控制台
}

// DataConfig 训练数据来源与预处理.
type DataConfig struct {
	Path        string `mapstructure:"path"         toml:"path"`
	Delimiter   string `mapstructure:"delimiter"    toml:"delimiter"`
	Scale       string `mapstructure:"scale"        toml:"scale"        validate:"oneof=none normalize standardize"`
	LabelColumn int    `mapstructure:"label_column" toml:"label_column" validate:"gte=-1"` // -1 表示最后一列
	HasHeader   bool   `mapstructure:"has_header"   toml:"has_header"`
}

// SplitConfig 分层划分比例，剩余部分为测试集.
type SplitConfig struct {
	Train      float64 `mapstructure:"train"      toml:"train"      validate:"gte=0,lte=1"`
	Validation float64 `mapstructure:"validation" toml:"validation" validate:"gte=0,lte=1"`
	Seed       uint64  `mapstructure:"seed"       toml:"seed"`
	Shuffle    bool    `mapstructure:"shuffle"    toml:"shuffle"`
}

// KernelConfig 核函数参数.
type KernelConfig struct {
	Type     string  `mapstructure:"type"     toml:"type"     validate:"oneof=linear poly polynomial rbf gaussian"`
	Gamma    float64 `mapstructure:"gamma"    toml:"gamma"    validate:"gte=0"`
	Constant float64 `mapstructure:"constant" toml:"constant"`
	Degree   int     `mapstructure:"degree"   toml:"degree"   validate:"gte=0"`
}

// ModelConfig SMO 训练参数.
type ModelConfig struct {
	Kernel           KernelConfig `mapstructure:"kernel"             toml:"kernel"`
	BiasRule         string       `mapstructure:"bias_rule"          toml:"bias_rule"          validate:"oneof=textbook reduced"`
	C                float64      `mapstructure:"c"                  toml:"c"                  validate:"gt=0"`
	Tolerance        float64      `mapstructure:"tolerance"          toml:"tolerance"          validate:"gt=0"`
	Epsilon          float64      `mapstructure:"epsilon"            toml:"epsilon"            validate:"gt=0"`
	InitialNoise     float64      `mapstructure:"initial_noise"      toml:"initial_noise"      validate:"gte=0"`
	SupportThreshold float64      `mapstructure:"support_threshold"  toml:"support_threshold"  validate:"gte=0"`
	MaxIterations    int          `mapstructure:"max_iterations"     toml:"max_iterations"     validate:"gt=0"`
	MaxPairsPerRound int          `mapstructure:"max_pairs_per_round" toml:"max_pairs_per_round" validate:"gt=0"`
	MinAccepted      int          `mapstructure:"min_accepted"       toml:"min_accepted"       validate:"gte=0"`
	Patience         int          `mapstructure:"patience"           toml:"patience"           validate:"gte=0"`
	Seed             uint64       `mapstructure:"seed"               toml:"seed"`
}

// TuningConfig 超参数网格搜索，笛卡尔积 CValues x Kernels.
type TuningConfig struct {
	CValues     []float64      `mapstructure:"c_values"    toml:"c_values"    validate:"dive,gt=0"`
	Kernels     []KernelConfig `mapstructure:"kernels"     toml:"kernels"     validate:"dive"`
	Parallelism int            `mapstructure:"parallelism" toml:"parallelism" validate:"gte=0"`
	Enabled     bool           `mapstructure:"enabled"     toml:"enabled"`
}

// StorageConfig 模型产物存储.
type StorageConfig struct {
	Driver string      `mapstructure:"driver" toml:"driver" validate:"oneof=local minio"`
	Key    string      `mapstructure:"key"    toml:"key"    validate:"required"`
	Local  LocalConfig `mapstructure:"local"  toml:"local"`
	Minio  MinioConfig `mapstructure:"minio"  toml:"minio"`
}

// LocalConfig 本地目录存储.
type LocalConfig struct {
	Dir string `mapstructure:"dir" toml:"dir"`
}

// MinioConfig S3 兼容对象存储 MinIO 的连接参数.
type MinioConfig struct {
	Endpoint        string `mapstructure:"endpoint"          toml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"     toml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" toml:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"       toml:"bucket_name"`
	Region          string `mapstructure:"region"            toml:"region"`
	UseSSL          bool   `mapstructure:"use_ssl"           toml:"use_ssl"`
}

// ServerConfig 预测服务.
type ServerConfig struct {
	HTTP      HTTPConfig      `mapstructure:"http"      toml:"http"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" toml:"ratelimit"`
}

// HTTPConfig HTTP 监听与超时.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"             toml:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     toml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    toml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"     toml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" toml:"shutdown_timeout"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"   toml:"slow_threshold"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"   toml:"max_body_bytes"`
	MaxBatch        int           `mapstructure:"max_batch"        toml:"max_batch"        validate:"gte=0"`
}

// RateLimitConfig 限流。配置了 Redis 地址时使用分布式滑动窗口，否则使用本地令牌桶.
type RateLimitConfig struct {
	Redis   RedisConfig   `mapstructure:"redis"    toml:"redis"`
	Window  time.Duration `mapstructure:"window"   toml:"window"`
	Rate    int           `mapstructure:"rate"     toml:"rate"     validate:"gte=0"`
	Burst   int           `mapstructure:"burst"    toml:"burst"    validate:"gte=0"`
	MaxKeys int           `mapstructure:"max_keys" toml:"max_keys" validate:"gte=0"`
	Enabled bool          `mapstructure:"enabled"  toml:"enabled"`
}

// RedisConfig Redis 连接参数.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"     toml:"addr"`
	Password string `mapstructure:"password" toml:"password"`
	DB       int    `mapstructure:"db"       toml:"db"`
}

// MetricsConfig Prometheus 指标暴露配置.
type MetricsConfig struct {
	Addr    string `mapstructure:"addr"    toml:"addr"`
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// TracingConfig OpenTelemetry 链路追踪配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"gte=0,lte=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// Validate 结构体标签之外的跨字段校验.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Split.Train+c.Split.Validation > 1+1e-9 {
		return fmt.Errorf("config validation failed: split.train + split.validation = %g > 1", c.Split.Train+c.Split.Validation)
	}
	if c.Storage.Driver == "minio" && (c.Storage.Minio.Endpoint == "" || c.Storage.Minio.BucketName == "") {
		return fmt.Errorf("config validation failed: storage.minio requires endpoint and bucket_name")
	}
	if c.Tuning.Enabled && len(c.Tuning.CValues) == 0 && len(c.Tuning.Kernels) == 0 {
		return fmt.Errorf("config validation failed: tuning enabled without c_values or kernels")
	}
	return nil
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "smosvm")
	v.SetDefault("app.environment", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("data.has_header", true)
	v.SetDefault("data.delimiter", ";")
	v.SetDefault("data.label_column", -1)
	v.SetDefault("data.scale", "standardize")
	v.SetDefault("split.train", 0.6)
	v.SetDefault("split.validation", 0.2)
	v.SetDefault("split.shuffle", true)
	v.SetDefault("split.seed", 42)
	v.SetDefault("model.kernel.type", "rbf")
	v.SetDefault("model.kernel.gamma", 0.5)
	v.SetDefault("model.kernel.degree", 3)
	v.SetDefault("model.kernel.constant", 1.0)
	v.SetDefault("model.bias_rule", "textbook")
	v.SetDefault("model.c", 1.0)
	v.SetDefault("model.tolerance", 1e-5)
	v.SetDefault("model.epsilon", 1e-8)
	v.SetDefault("model.support_threshold", 1e-8)
	v.SetDefault("model.max_iterations", 1000)
	v.SetDefault("model.max_pairs_per_round", 100)
	v.SetDefault("model.min_accepted", 10)
	v.SetDefault("model.patience", 5)
	v.SetDefault("model.seed", 42)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.key", "model.json")
	v.SetDefault("storage.local.dir", "./artifacts")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.read_timeout", 5*time.Second)
	v.SetDefault("server.http.write_timeout", 10*time.Second)
	v.SetDefault("server.http.idle_timeout", 60*time.Second)
	v.SetDefault("server.http.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.http.max_body_bytes", 4<<20)
	v.SetDefault("server.http.max_batch", 1024)
	v.SetDefault("server.ratelimit.rate", 100)
	v.SetDefault("server.ratelimit.burst", 200)
	v.SetDefault("server.ratelimit.window", time.Second)
	v.SetDefault("server.ratelimit.max_keys", 10000)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.service_name", "smosvm")
	v.SetDefault("tracing.sampler_ratio", 1.0)
}

// Default 仅由默认值构成的配置，不读取文件.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		panic(fmt.Sprintf("unmarshal defaults: %v", err))
	}
	return c
}

// Manager 持有 viper 实例与当前生效的配置快照.
type Manager struct {
	v       *viper.Viper
	current *Config
	hooks   []func(old, cur *Config)
	timer   *time.Timer
	mu      sync.RWMutex
}

// Load 读取、反序列化并校验配置文件.
func Load(path string) (*Manager, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	m := &Manager{v: v}
	c, err := m.decode()
	if err != nil {
		return nil, err
	}
	m.current = c
	return m, nil
}

func (m *Manager) decode() (*Config, error) {
	c := &Config{}
	if err := m.v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Config 当前配置快照，调用方不得修改.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnReload 注册热更新回调，回调收到旧配置与新配置.
func (m *Manager) OnReload(hook func(old, cur *Config)) {
	if hook == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Reload 重新读取配置文件。校验失败时保留旧配置并返回错误.
func (m *Manager) Reload() error {
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}
	next, err := m.decode()
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.current
	m.current = next
	hooks := append([]func(old, cur *Config){}, m.hooks...)
	m.mu.Unlock()

	logging.SetLevel(next.Log.Level)
	for _, hook := range hooks {
		hook(old, next)
	}
	return nil
}

// Watch 监听配置文件变化，500ms 防抖后调用 Reload.
func (m *Manager) Watch() {
	const debounceTimeout = 500 * time.Millisecond

	m.v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name, "op", event.Op.String())
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.timer != nil {
			m.timer.Stop()
		}
		m.timer = time.AfterFunc(debounceTimeout, func() {
			if err := m.Reload(); err != nil {
				slog.Error("config reload rejected, keeping previous config", "error", err)
				return
			}
			slog.Info("config hot-reloaded and validated successfully")
		})
	})
	m.v.WatchConfig()
}

// PrintWithMask 脱敏打印配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		slog.Error("failed to unmarshal config for masking", "error", err)
		return
	}

	mask(configMap)

	maskedJSON, err := json.MarshalIndent(configMap, "  ", "  ")
	if err != nil {
		slog.Error("failed to marshal masked config", "error", err)
		return
	}

	slog.Info("current effective configuration", "config", string(maskedJSON))
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "key_id", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}

		if slice, ok := val.([]any); ok {
			for _, item := range slice {
				if itemMap, ok := item.(map[string]any); ok {
					mask(itemMap)
				}
			}
			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}
