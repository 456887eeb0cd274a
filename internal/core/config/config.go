package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
	// 逗号分隔，"*" 表示不限制
	AllowOrigins []string
}
type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
}

type Log struct {
	Level string
	JSON  bool
	// 为空则输出到 stdout；否则按 lumberjack 滚动写文件
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// 用户缓存 TTL（秒）
	UserTTLSec int `mapstructure:"userttlsec"`
}

type DB struct {
	Driver             string // postgres / mysql / memory
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

// Schedule “今天”按 Timezone 计算
type Schedule struct {
	Timezone     string
	MaxRangeDays int
}

func (s Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
}

type AMQP struct {
	URL        string
	Exchange   string
	RoutingKey string
}

type Notify struct {
	// log / smtp / amqp
	Sender    string
	From      string
	Workers   int
	QueueSize int
	SMTP      SMTP
	AMQP      AMQP
}

type Auth struct {
	MaxFailedLogins  int
	LockoutMin       int
	ResetTokenTTLMin int
	ResetURL         string
}

// Bootstrap 管理端启动时若无该账号则创建一个 coordinator
type Bootstrap struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type Config struct {
	App       App
	Log       Log
	JWT       JWT
	DB        DB
	Redis     Redis `mapstructure:"redis"`
	Schedule  Schedule
	Notify    Notify
	Auth      Auth
	Bootstrap Bootstrap
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "docent-tagalong")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readtimeoutsec", 5)
	v.SetDefault("app.http.writetimeoutsec", 10)
	v.SetDefault("app.http.idletimeoutsec", 60)
	v.SetDefault("app.http.alloworigins", []string{"*"})
	v.SetDefault("app.admin.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.maxsizemb", 100)
	v.SetDefault("log.maxbackups", 7)
	v.SetDefault("log.maxagedays", 30)
	// 无默认值的键也要登记，AutomaticEnv 才能在 Unmarshal 时覆盖
	for _, k := range []string{"jwt.secret", "db.dsn", "db.username", "db.password", "redis.addr", "redis.password",
		"schedule.timezone", "notify.smtp.host", "notify.smtp.username", "notify.smtp.password", "notify.amqp.url",
		"auth.reseturl", "bootstrap.email", "bootstrap.password", "log.file"} {
		v.SetDefault(k, "")
	}
	v.SetDefault("jwt.issuer", "docent-tagalong")
	v.SetDefault("jwt.accesstokenttlmin", 120)
	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.maxopenconns", 20)
	v.SetDefault("db.maxidleconns", 10)
	v.SetDefault("db.connmaxlifetimemin", 30)
	v.SetDefault("db.loglevel", "warn")
	v.SetDefault("redis.userttlsec", 300)
	v.SetDefault("schedule.maxrangedays", 120)
	v.SetDefault("notify.sender", "log")
	v.SetDefault("notify.from", "noreply@docent-tagalong.local")
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.queuesize", 256)
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("notify.amqp.exchange", "notifications")
	v.SetDefault("notify.amqp.routingkey", "email.tag_filled")
	v.SetDefault("auth.maxfailedlogins", 5)
	v.SetDefault("auth.lockoutmin", 10)
	v.SetDefault("auth.resettokenttlmin", 60)
	v.SetDefault("bootstrap.firstname", "Admin")
	v.SetDefault("bootstrap.lastname", "Coordinator")
}

// Parse 读取配置文件并叠加 APP_ 环境变量；文件不存在时只用默认值与环境变量
func Parse(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil || !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "memory", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported db.driver %q", c.DB.Driver)
	}
	if c.DB.Driver != "memory" && c.DB.DSN == "" {
		return fmt.Errorf("config: db.dsn is required for %s", c.DB.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("config: schedule.timezone: %w", err)
	}
	return nil
}

func Load(path string) *Config {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	c, err := Parse(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return c
}
