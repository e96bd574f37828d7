package config

import (
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Task     TaskConfig     `mapstructure:"task"`
	Log      LogConfig      `mapstructure:"log"`
	Matching MatchingConfig `mapstructure:"matching"`
	Price    PriceConfig    `mapstructure:"price"`
	Reward   RewardConfig   `mapstructure:"reward"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 链上读取配置
type ChainConfig struct {
	ChainType string `mapstructure:"chain_type"` // 链类型 (ethereum, polygon, etc.)
	ChainId   int64  `mapstructure:"chain_id"`   // 链ID
	RpcUrl    string `mapstructure:"rpc_url"`    // RPC节点URL
	ABIPath   string `mapstructure:"abi_path"`   // 编排合约ABI路径，为空时使用内置ABI
}

// TaskConfig 定时任务配置
type TaskConfig struct {
	PriceFillInterval       int `mapstructure:"price_fill_interval"`       // 秒
	MatchingRefreshInterval int `mapstructure:"matching_refresh_interval"` // 秒
}

// MatchingConfig QF 匹配计算配置
type MatchingConfig struct {
	TokenSymbol   string        `mapstructure:"token_symbol"`    // 捐赠代币符号
	PriceLeadTime time.Duration `mapstructure:"price_lead_time"` // 取价时间相对轮次开始的提前量
	StrictCaps    bool          `mapstructure:"strict_caps"`     // 按 (项目, 轮次) 加锁校验上限
}

// PriceConfig 价格预言机配置
type PriceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint          `mapstructure:"max_retries"`
}

// RewardConfig 批量对账配置
type RewardConfig struct {
	ReportDir   string        `mapstructure:"report_dir"` // 奖励报告目录
	Workers     int           `mapstructure:"workers"`    // 并发处理的项目数
	EarlyAccess VestingConfig `mapstructure:"early_access"`
	Qf          VestingConfig `mapstructure:"qf"`
}

// VestingConfig 奖励线性释放参数
type VestingConfig struct {
	StreamStart    string        `mapstructure:"stream_start"` // RFC3339，为空时以轮次结束时间为起点
	StreamDuration time.Duration `mapstructure:"stream_duration"`
	Cliff          time.Duration `mapstructure:"cliff"`
}

// StreamStartTime 解析奖励释放起点，未配置时返回 fallback
func (v VestingConfig) StreamStartTime(fallback time.Time) (time.Time, error) {
	if v.StreamStart == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, v.StreamStart)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "qacc")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("chain.chain_type", "polygon")
	v.SetDefault("chain.chain_id", 1101)
	v.SetDefault("task.price_fill_interval", 3600)
	v.SetDefault("task.matching_refresh_interval", 300)
	v.SetDefault("matching.token_symbol", "POL")
	v.SetDefault("matching.price_lead_time", "10m")
	v.SetDefault("matching.strict_caps", false)
	v.SetDefault("price.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price.timeout", "10s")
	v.SetDefault("price.max_retries", 3)
	v.SetDefault("reward.report_dir", "reports")
	v.SetDefault("reward.workers", 1)
	v.SetDefault("reward.early_access.stream_duration", "8760h")
	v.SetDefault("reward.early_access.cliff", "4380h")
	v.SetDefault("reward.qf.stream_duration", "8760h")
	v.SetDefault("reward.qf.cliff", "4380h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

// Load 读取配置文件，path 为空时按默认路径查找
func Load(path string) *Config {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/qacc")
	}

	SetDefaults(v)

	// 自动读取环境变量
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
