package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Upload UploadConfig `mapstructure:"upload"`
	Output OutputConfig `mapstructure:"output"`
	Export ExportConfig `mapstructure:"export"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	LogLevel     string        `mapstructure:"log_level"`
	MaxBodySize  int64         `mapstructure:"max_body_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize          int64    `mapstructure:"max_size"`
	MaxFiles         int      `mapstructure:"max_files"`
	UploadDir        string   `mapstructure:"upload_dir"`
	AllowedTypes     []string `mapstructure:"allowed_types"`
	CleanupTempFiles bool     `mapstructure:"cleanup_temp_files"`
}

// OutputConfig 导出文件的输出目录
type OutputConfig struct {
	Dir            string `mapstructure:"dir"`
	FilenamePrefix string `mapstructure:"filename_prefix"`
}

// ExportConfig D2 Save PSD 节点的默认参数
type ExportConfig struct {
	FileMode      string `mapstructure:"file_mode"`
	AlphaName     string `mapstructure:"alpha_name"`
	AlphaNameMode string `mapstructure:"alpha_name_mode"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("D2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return getDefaultConfig()
	}
	return cfg
}

// Validate 检查枚举类配置项
func (c *Config) Validate() error {
	switch c.Export.FileMode {
	case "single_file", "multi_file":
	default:
		return fmt.Errorf("invalid export.file_mode %q", c.Export.FileMode)
	}
	switch c.Export.AlphaNameMode {
	case "simple", "suffix":
	default:
		return fmt.Errorf("invalid export.alpha_name_mode %q", c.Export.AlphaNameMode)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8188")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.log_level", "")
	v.SetDefault("server.max_body_size", 64*1024*1024)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("upload.max_size", 20*1024*1024)
	v.SetDefault("upload.max_files", 64)
	v.SetDefault("upload.upload_dir", "./uploads")
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg"})
	v.SetDefault("upload.cleanup_temp_files", true)

	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.filename_prefix", "ComfyUI")

	v.SetDefault("export.file_mode", "single_file")
	v.SetDefault("export.alpha_name", "_mask_")
	v.SetDefault("export.alpha_name_mode", "simple")
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8188",
			Mode:         "debug",
			MaxBodySize:  64 * 1024 * 1024,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:          20 * 1024 * 1024,
			MaxFiles:         64,
			UploadDir:        "./uploads",
			AllowedTypes:     []string{"image/jpeg", "image/png", "image/jpg"},
			CleanupTempFiles: true,
		},
		Output: OutputConfig{
			Dir:            "./output",
			FilenamePrefix: "ComfyUI",
		},
		Export: ExportConfig{
			FileMode:      "single_file",
			AlphaName:     "_mask_",
			AlphaNameMode: "simple",
		},
	}
}
