package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Service   ServiceConfig   `mapstructure:"service"`
	Store     StoreConfig     `mapstructure:"store"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Segmenter SegmenterConfig `mapstructure:"segmenter"`
	GrabCut   GrabCutConfig   `mapstructure:"grabcut"`
	Rembg     RembgConfig     `mapstructure:"rembg"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port" validate:"required"`
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// BaseURL 为空时按请求 Host 拼接 mask_url
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

type ServiceConfig struct {
	Name  string `mapstructure:"name" validate:"required"`
	Model string `mapstructure:"model" validate:"required"`
}

type StoreConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=memory redis"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Prefix   string `mapstructure:"prefix"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size" validate:"gt=0"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type SegmenterConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=grabcut rembg"`
}

type GrabCutConfig struct {
	Iterations    int           `mapstructure:"iterations" validate:"gte=1"`
	BorderSize    int           `mapstructure:"border_size" validate:"gte=0"`
	MaxConcurrent int           `mapstructure:"max_concurrent" validate:"gte=1"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout" validate:"gt=0"`
	MaxDimension  int           `mapstructure:"max_dimension" validate:"gte=64"`
	KeepLargest   bool          `mapstructure:"keep_largest"`
}

type RembgConfig struct {
	URL          string        `mapstructure:"url" validate:"omitempty,url"`
	Model        string        `mapstructure:"model" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxDimension int           `mapstructure:"max_dimension" validate:"gte=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Load 从 YAML 文件加载配置，环境变量优先
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 配置文件缺失时仅使用默认值与环境变量
		cfg, err = decode(newViper())
		if err != nil {
			return getDefaultConfig()
		}
	}
	return cfg
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Backend == "redis" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("invalid config: store.redis.addr is required for redis backend")
	}
	if c.Segmenter.Backend == "rembg" && c.Rembg.URL == "" {
		return fmt.Errorf("invalid config: rembg.url is required for rembg segmenter")
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SEG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "SEG_SERVER_PORT", "PORT")

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// 未指定模型名时按分割后端推断
	if cfg.Service.Model == "" {
		cfg.Service.Model = "grabcut"
		if cfg.Segmenter.Backend == "rembg" {
			cfg.Service.Model = "rembg-" + cfg.Rembg.Model
		}
	}
	// PORT=5000 形式补全冒号
	if cfg.Server.Port != "" && !strings.Contains(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":5000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.base_url", "")

	v.SetDefault("service.name", "segmentation")
	v.SetDefault("service.model", "")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.ttl", 1200*time.Second)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "mask:")

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg", "image/webp", "image/gif", "image/bmp", "image/tiff", "application/octet-stream"})

	v.SetDefault("segmenter.backend", "grabcut")

	v.SetDefault("grabcut.iterations", 5)
	v.SetDefault("grabcut.border_size", 10)
	v.SetDefault("grabcut.max_concurrent", 3)
	v.SetDefault("grabcut.queue_timeout", 30*time.Second)
	v.SetDefault("grabcut.max_dimension", 1200)
	v.SetDefault("grabcut.keep_largest", false)

	v.SetDefault("rembg.url", "")
	v.SetDefault("rembg.model", "u2net")
	v.SetDefault("rembg.timeout", 60*time.Second)
	v.SetDefault("rembg.max_dimension", 1600)

	v.SetDefault("log.level", "")
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":5000",
			Mode:         "debug",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Service: ServiceConfig{
			Name:  "segmentation",
			Model: "grabcut",
		},
		Store: StoreConfig{
			Backend: "memory",
			TTL:     1200 * time.Second,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "mask:",
			},
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg", "image/webp", "image/gif", "image/bmp", "image/tiff", "application/octet-stream"},
		},
		Segmenter: SegmenterConfig{Backend: "grabcut"},
		GrabCut: GrabCutConfig{
			Iterations:    5,
			BorderSize:    10,
			MaxConcurrent: 3,
			QueueTimeout:  30 * time.Second,
			MaxDimension:  1200,
		},
		Rembg: RembgConfig{
			Model:        "u2net",
			Timeout:      60 * time.Second,
			MaxDimension: 1600,
		},
	}
}
