package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`    // 服务器配置
	Postgres  PostgresConfig            `mapstructure:"postgres"`  // PostgreSQL配置
	Scan      ScanConfig                `mapstructure:"scan"`      // 扫描任务配置
	Scrub     ScrubConfig               `mapstructure:"scrub"`     // 目录采集配置
	Mail      MailConfig                `mapstructure:"mail"`      // 邮件发送配置
	Platforms map[string]PlatformConfig `mapstructure:"platforms"` // 多平台独立配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig PostgreSQL数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// ScanConfig 扫描任务配置（付费/免费/转售扫描共用）
type ScanConfig struct {
	Limit              int     `mapstructure:"limit"`                // 单次最多处理的目标数
	SleepBaseSeconds   float64 `mapstructure:"sleep_base_seconds"`   // 外部请求间隔基数（秒）
	DryRun             bool    `mapstructure:"dry_run"`              // 只记录不发送、不落库
	DedupeBucketMin    int     `mapstructure:"dedupe_bucket_min"`    // 免费告警的去重桶（分钟）
	EmailRetries       int     `mapstructure:"email_retries"`        // 邮件发送重试次数
	EmailBaseWaitSec   float64 `mapstructure:"email_base_wait_sec"`  // 邮件重试等待基数（秒）
	FreeLoop           bool    `mapstructure:"free_loop"`            // 免费扫描是否循环执行
	FreeLoopIntervalS  int     `mapstructure:"free_loop_interval_s"` // 免费扫描循环间隔（秒）
	ResaleEnablePrices bool    `mapstructure:"resale_enable_prices"` // 转售扫描是否附带价格探测
}

// ScrubConfig 目录采集配置
type ScrubConfig struct {
	MonthsAhead int    `mapstructure:"months_ahead"` // 采集未来多少个月
	StepDays    int    `mapstructure:"step_days"`    // 时间窗口长度（天）
	PageSize    int    `mapstructure:"page_size"`    // 每页条数
	Country     string `mapstructure:"country"`      // 国家代码
	Limit       int    `mapstructure:"limit"`        // 0=不限制
}

// MailConfig SMTP邮件发送配置
type MailConfig struct {
	Host     string `mapstructure:"host"`     // SMTP主机
	Port     int    `mapstructure:"port"`     // SMTP端口
	Username string `mapstructure:"username"` // 登录用户名
	Password string `mapstructure:"password"` // 登录密码
	From     string `mapstructure:"from"`     // 发件人地址
}

// PlatformConfig 单个平台的独立配置
type PlatformConfig struct {
	BaseURL      string `mapstructure:"base_url"`       // API基础地址
	PricesURL    string `mapstructure:"prices_url"`     // 价格API基础地址（Ticketmaster EU mfxapi）
	Timeout      int    `mapstructure:"timeout"`        // 请求超时（秒）
	RetryCount   int    `mapstructure:"retry_count"`    // 重试次数
	APIKey       string `mapstructure:"api_key"`        // API密钥
	AuthToken    string `mapstructure:"auth_token"`     // Bearer Token（Eventbrite等用）
	OrgID        string `mapstructure:"org_id"`         // 组织ID（Eventbrite专属）
	Domain       string `mapstructure:"domain"`         // 价格API的域（如it）
	Lang         string `mapstructure:"lang"`           // 价格API的语言（如it）
	Proxy        string `mapstructure:"proxy"`          // 代理地址
	PageBaseURL  string `mapstructure:"page_base_url"`  // 活动页面站点（Referer用）
	AcceptLang   string `mapstructure:"accept_lang"`    // 页面请求的Accept-Language
	HardPageCap  int    `mapstructure:"hard_page_cap"`  // 单窗口翻页硬上限
	IncludeTBA   bool   `mapstructure:"include_tba"`    // 是否包含未定档（TBA）
	IncludeTBD   bool   `mapstructure:"include_tbd"`    // 是否包含未定时（TBD）
	SourceFilter string `mapstructure:"source_filter"`  // 可选的source过滤
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if t, ok := cfg.Platforms["ticketmaster"]; ok {
		if v := os.Getenv("TICKETMASTER_API_KEY"); v != "" {
			t.APIKey = v
		}
		if v := os.Getenv("TICKETMASTER_PROXY"); v != "" {
			t.Proxy = v
		}
		cfg.Platforms["ticketmaster"] = t
	}
	if e, ok := cfg.Platforms["eventbrite"]; ok {
		if v := os.Getenv("EVENTBRITE_AUTH_TOKEN"); v != "" {
			e.AuthToken = v
		}
		cfg.Platforms["eventbrite"] = e
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Mail.Password = v
	}
}

// GetGORMConfig 获取PostgreSQL配置（适配GORM）
func (m *PostgresConfig) GetGORMConfig() gorm.Config {
	return gorm.Config{} // 可扩展：添加日志、命名策略等
}
