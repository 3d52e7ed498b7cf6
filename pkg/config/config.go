package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tapo-exporter/pkg/device"
)

var valid = validator.New()

// EnvPrefix 环境变量前缀，例如 TAPO_SERVER_ADDR -> server.addr
const EnvPrefix = "TAPO"

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server      ServerConfig       `yaml:"server" mapstructure:"server"`
	Monitor     MonitorConfig      `yaml:"monitor" mapstructure:"monitor"`
	Devices     []DeviceConfig     `yaml:"devices" mapstructure:"devices" validate:"required,min=1,dive"`
	Credentials []CredentialConfig `yaml:"credentials" mapstructure:"credentials" validate:"dive"`
	Log         ZapLogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"required,gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"required,gt=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"required,gt=0"`
}

// MonitorConfig 轮询调度配置
type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval" mapstructure:"interval" validate:"required,gte=1s,lte=24h"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"required,gt=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" validate:"required,gt=0"`
	// MaxConcurrency 单轮并发上限，0 表示不限制
	MaxConcurrency int  `yaml:"max_concurrency" mapstructure:"max_concurrency" validate:"gte=0"`
	ProcessMetrics bool `yaml:"process_metrics" mapstructure:"process_metrics"`
}

// DeviceConfig 单台设备
type DeviceConfig struct {
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	IP   string `yaml:"ip" mapstructure:"ip" validate:"required,ip|hostname"`
	Type string `yaml:"type" mapstructure:"type" validate:"required,oneof=P110 P115"`
	// LegacyType 兼容旧配置的 device 键
	LegacyType string `yaml:"device" mapstructure:"device" validate:"-"`
	Credential string `yaml:"credential" mapstructure:"credential" validate:"required"`
}

// CredentialConfig 账号凭据
type CredentialConfig struct {
	Name     string `yaml:"name" mapstructure:"name" validate:"required"`
	Username string `yaml:"username" mapstructure:"username" validate:"required"`
	Password string `yaml:"password" mapstructure:"password" validate:"required"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	Format    string `yaml:"format" mapstructure:"format" validate:"required,oneof=json console"`
	Path      string `yaml:"path" mapstructure:"path" validate:"required"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" validate:"gt=0"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" validate:"gte=0"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" validate:"gte=0"`
}

// Identity 设备身份标签
func (d DeviceConfig) Identity() device.Identity {
	return device.Identity{Type: device.Type(d.Type), Name: d.Name, IP: d.IP}
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:9200",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:       60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			RequestTimeout: 10 * time.Second,
			MaxConcurrency: 0,
			ProcessMetrics: true,
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "console",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 0,
			MaxAge:    7,
		},
	}
}

// Load 从文件加载配置（无命令行参数，供 check 子命令与测试使用）
func Load(path string) (*Config, error) {
	v := viper.New()
	return load(v, path)
}

// LoadConfigWithCli (Flags + YAML + ENV)
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper（flag 名中的 - 对应配置键中的 _）
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	if bindErr != nil {
		return nil, &Error{Op: "bind flags", Err: bindErr}
	}

	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := NewDefaultConfig()

	// 1. 解析配置文件
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Op: "read " + configFile, Err: err}
		}
	}

	// 2. 绑定环境变量 ENV -> Viper （TAPO_SERVER_ADDR -> server.addr）
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 	设置默认值；旧版顶层 interval（秒）作为 monitor.interval 的默认值，显式配置优先
	setDefaults(v, cfg)
	if v.InConfig("interval") {
		v.SetDefault("monitor.interval", v.Get("interval"))
	}

	// 3. 解码反序列化到结构体（支持 time.Duration 与整数秒）
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, &Error{Op: "new decoder", Err: err}
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, &Error{Op: "decode", Err: err}
	}

	cfg.normalize()

	// 4. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 注册默认值，使环境变量能够覆盖文件中未出现的键
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.connect_timeout", d.Monitor.ConnectTimeout)
	v.SetDefault("monitor.request_timeout", d.Monitor.RequestTimeout)
	v.SetDefault("monitor.max_concurrency", d.Monitor.MaxConcurrency)
	v.SetDefault("monitor.process_metrics", d.Monitor.ProcessMetrics)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backup", d.Log.MaxBackup)
	v.SetDefault("log.max_age", d.Log.MaxAge)
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHookFunc 裸数字按秒解析（与旧版 interval: 300 保持一致）
func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != durationType || f == durationType {
			return data, nil
		}
		switch f.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		case reflect.String:
			s := strings.TrimSpace(data.(string))
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return time.Duration(n) * time.Second, nil
			}
		}
		return data, nil
	}
}

func (c *Config) normalize() {
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Type == "" {
			d.Type = d.LegacyType
		}
		d.Type = strings.ToUpper(strings.TrimSpace(d.Type))
		d.Name = strings.TrimSpace(d.Name)
		d.IP = strings.TrimSpace(d.IP)
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return &Error{Op: "validate", Err: err}
	}
	// 	1,校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return &Error{Op: "validate server", Err: err}
	}
	// 	2，校验采集配置
	if err := c.Monitor.Validate(); err != nil {
		return &Error{Op: "validate monitor", Err: err}
	}
	// 	3，校验设备与凭据引用
	if err := c.validateDevices(); err != nil {
		return &Error{Op: "validate devices", Err: err}
	}
	// 	4，校验日志配置
	if err := c.Log.Validate(); err != nil {
		return &Error{Op: "validate log", Err: err}
	}
	return nil
}

// CredentialFor 查找设备引用的凭据
func (c *Config) CredentialFor(d DeviceConfig) (device.Credential, error) {
	for _, cred := range c.Credentials {
		if cred.Name == d.Credential {
			return device.Credential{Username: cred.Username, Password: cred.Password}, nil
		}
	}
	return device.Credential{}, fmt.Errorf("%w: device %q references %q", ErrUnresolvedCredential, d.Name, d.Credential)
}
