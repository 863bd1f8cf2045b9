package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig 运维 HTTP 接口配置
type HTTPConfig struct {
	Enable       bool          `mapstructure:"enable"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// SerialConfig 串口与写出节流配置
type SerialConfig struct {
	Address     string        `mapstructure:"address"`
	BaudRate    int           `mapstructure:"baudRate"`
	DataBits    int           `mapstructure:"dataBits"`
	StopBits    int           `mapstructure:"stopBits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	WriteRate   int           `mapstructure:"writeRate"`
	WriteBurst  int           `mapstructure:"writeBurst"`
}

// SessionConfig 请求关联与重发配置
type SessionConfig struct {
	AckTimeout   time.Duration `mapstructure:"ackTimeout"`
	Retries      int           `mapstructure:"retries"`
	MaxInFlight  int           `mapstructure:"maxInFlight"`
	TickInterval time.Duration `mapstructure:"tickInterval"`
	AutoAck      bool          `mapstructure:"autoAck"`
	Checksum     string        `mapstructure:"checksum"` // crc16 | sum16
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Serial  SerialConfig  `mapstructure:"serial"`
	Session SessionConfig `mapstructure:"session"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 DMC_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("DMC_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// 环境变量覆盖：前缀 DMC_，点号替换为下划线，如 DMC_SERIAL_ADDRESS
	v.SetEnvPrefix("DMC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Session.AckTimeout <= 0 {
		return fmt.Errorf("config: session.ackTimeout must be positive, got %s", c.Session.AckTimeout)
	}
	if c.Session.Retries < 0 || c.Session.Retries > 255 {
		return fmt.Errorf("config: session.retries out of range: %d", c.Session.Retries)
	}
	if c.Session.MaxInFlight < 1 {
		return fmt.Errorf("config: session.maxInFlight must be >= 1, got %d", c.Session.MaxInFlight)
	}
	switch strings.ToLower(c.Session.Checksum) {
	case "crc16", "sum16":
	default:
		return fmt.Errorf("config: unknown session.checksum %q", c.Session.Checksum)
	}
	switch strings.ToUpper(c.Serial.Parity) {
	case "N", "E", "O":
	default:
		return fmt.Errorf("config: serial.parity must be N, E or O, got %q", c.Serial.Parity)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dmcd")
	v.SetDefault("app.env", "dev")

	v.SetDefault("serial.address", "/dev/ttyUSB0")
	v.SetDefault("serial.baudRate", 115200)
	v.SetDefault("serial.dataBits", 8)
	v.SetDefault("serial.stopBits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.readTimeout", "100ms")
	v.SetDefault("serial.writeRate", 0)
	v.SetDefault("serial.writeBurst", 4)

	v.SetDefault("session.ackTimeout", "500ms")
	v.SetDefault("session.retries", 2)
	v.SetDefault("session.maxInFlight", 1)
	v.SetDefault("session.tickInterval", "20ms")
	v.SetDefault("session.autoAck", true)
	v.SetDefault("session.checksum", "crc16")

	v.SetDefault("http.enable", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}
