package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server            ServerConfig
	Database          DatabaseConfig
	JWT               JWTConfig
	Storage           StorageConfig
	Tracing           TracingConfig `mapstructure:"tracing"`
	Redis             RedisConfig
	CORS              CORSConfig              `mapstructure:"cors"`
	RateLimit         RateLimitConfig         `mapstructure:"rate_limit"`
	Plagiarism        PlagiarismConfig        `mapstructure:"plagiarism"`
	ContinuousControl ContinuousControlConfig `mapstructure:"continuous_control"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// PlagiarismConfig 查重引擎参数
type PlagiarismConfig struct {
	ClonePath           string        `mapstructure:"clone_path"`            // 工作副本下载根目录
	MaxComparisons      int           `mapstructure:"max_comparisons"`       // 结果保留的比较数上限
	CleanupDelayMinutes int           `mapstructure:"cleanup_delay_minutes"` // 工作副本/报告延迟删除
	ToolCommand         string        `mapstructure:"tool_command"`          // 外部结构比对工具
	ToolTimeout         time.Duration `mapstructure:"tool_timeout_minutes"`
	PolicyURL           string        `mapstructure:"policy_url"` // 学术诚信条例链接
	Workers             int           `mapstructure:"workers"`    // 并行下载/比较的 worker 数
}

type ContinuousControlConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval_hours"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("PLAG")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Plagiarism
	viper.BindEnv("plagiarism.clone_path", "PLAGIARISM_CLONE_PATH")
	viper.BindEnv("plagiarism.tool_command", "PLAGIARISM_TOOL_COMMAND")
	viper.BindEnv("plagiarism.policy_url", "PLAGIARISM_POLICY_URL")
	viper.BindEnv("continuous_control.enabled", "CONTINUOUS_CONTROL_ENABLED")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Plagiarism.ToolTimeout = cfg.Plagiarism.ToolTimeout * time.Minute
	cfg.ContinuousControl.Interval = cfg.ContinuousControl.Interval * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	applyPlagiarismDefaults(&cfg)

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func applyPlagiarismDefaults(cfg *Config) {
	if cfg.Plagiarism.ClonePath == "" {
		cfg.Plagiarism.ClonePath = "repo-downloads"
	}
	if cfg.Plagiarism.MaxComparisons <= 0 {
		cfg.Plagiarism.MaxComparisons = 500
	}
	if cfg.Plagiarism.CleanupDelayMinutes <= 0 {
		cfg.Plagiarism.CleanupDelayMinutes = 1
	}
	if cfg.Plagiarism.ToolTimeout <= 0 {
		cfg.Plagiarism.ToolTimeout = 30 * time.Minute
	}
	if cfg.Plagiarism.Workers <= 0 {
		cfg.Plagiarism.Workers = 4
	}
	if cfg.ContinuousControl.Interval <= 0 {
		cfg.ContinuousControl.Interval = 24 * time.Hour
	}
}
