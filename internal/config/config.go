package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/krobus00/bot-service/internal/constant"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var (
	ServiceName    = "bot-service"
	ServiceVersion = ""
)

type EnvConfig struct {
	Env                     string                       `mapstructure:"env"`
	Log                     LogConfig                    `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration                `mapstructure:"graceful_shutdown_timeout"`
	APIKeys                 []APIKeyConfig               `mapstructure:"api_keys"`
	Port                    map[string]string            `mapstructure:"port"`
	Exchanges               map[string]ExchangeConfig    `mapstructure:"exchanges"`
	Credentials             map[string]entity.Credential `mapstructure:"credentials"`
	Database                map[string]DatabaseConfig    `mapstructure:"database"`
	Redis                   map[string]RedisConfig       `mapstructure:"redis"`
	NatsJetstream           NatsJetstreamConfig          `mapstructure:"nats_jetstream"`
	Hub                     HubConfig                    `mapstructure:"hub"`
	Bot                     BotConfig                    `mapstructure:"bot"`
	Order                   OrderConfig                  `mapstructure:"order"`
	Datasource              DatasourceConfig             `mapstructure:"datasource"`
	Strategies              []StrategyConfig             `mapstructure:"strategies"`
}

type StrategyConfig struct {
	Name       string         `mapstructure:"name"`
	BotID      string         `mapstructure:"bot_id"`
	Exchange   string         `mapstructure:"exchange"`
	Credential string         `mapstructure:"credential"`
	Heartbeat  time.Duration  `mapstructure:"heartbeat"`
	Params     map[string]any `mapstructure:"params"`
}

type APIKeyConfig struct {
	Name      string `mapstructure:"name"`
	Key       string `mapstructure:"key"`
	Active    bool   `mapstructure:"active"`
	ExpiredAt any    `mapstructure:"expired_at"`
}

type NatsJetstreamConfig struct {
	URL             string                   `mapstructure:"url"`
	MaxRetries      int                      `mapstructure:"max_retries"`
	ReconnectFactor float64                  `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration            `mapstructure:"min_jitter"`
	MaxJitter       time.Duration            `mapstructure:"max_jitter"`
	TimeoutHandler  map[string]time.Duration `mapstructure:"timeout_handler"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
	// FilePath enables rotated file output next to stdout when set.
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ExchangeConfig struct {
	RestURL        string        `mapstructure:"rest_url"`
	WSPublicURL    string        `mapstructure:"ws_public_url"`
	WSCredential   string        `mapstructure:"ws_credential"`
	Simulated      bool          `mapstructure:"simulated"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryCount     int           `mapstructure:"retry_count"`
}

type RedisConfig struct {
	CacheDSN string        `mapstructure:"cache_dsn"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type HubConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type BotConfig struct {
	// ControlTransport is either memory or jetstream.
	ControlTransport     string        `mapstructure:"control_transport"`
	ControlQueueSize     int           `mapstructure:"control_queue_size"`
	LivenessTimeout      time.Duration `mapstructure:"liveness_timeout"`
	LivenessPollInterval time.Duration `mapstructure:"liveness_poll_interval"`
	StopTimeout          time.Duration `mapstructure:"stop_timeout"`
	StartAll             bool          `mapstructure:"start_all"`
}

type OrderConfig struct {
	// Transport is either memory or jetstream.
	Transport      string          `mapstructure:"transport"`
	RemoteExecutor bool            `mapstructure:"remote_executor"`
	QueueSize      int             `mapstructure:"queue_size"`
	QueryInterval  time.Duration   `mapstructure:"query_interval"`
	SubmitTimeout  time.Duration   `mapstructure:"submit_timeout"`
	ConfirmTimeout time.Duration   `mapstructure:"confirm_timeout"`
	PaperTrading   bool            `mapstructure:"paper_trading"`
	MaxNotional    decimal.Decimal `mapstructure:"max_notional"`
}

type DatasourceConfig struct {
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	ReconnectFactor   float64       `mapstructure:"reconnect_factor"`
	ReconnectMinDelay time.Duration `mapstructure:"reconnect_min_delay"`
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay"`
}

const (
	TransportMemory    = "memory"
	TransportJetstream = "jetstream"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", constant.DevelopmentEnvironment)
	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("graceful_shutdown_timeout", "30s")
	v.SetDefault("hub.queue_size", 1024)
	v.SetDefault("bot.control_queue_size", 64)
	v.SetDefault("bot.liveness_timeout", "15s")
	v.SetDefault("bot.liveness_poll_interval", "500ms")
	v.SetDefault("bot.stop_timeout", "10s")
	v.SetDefault("bot.control_transport", TransportMemory)
	v.SetDefault("order.transport", TransportMemory)
	v.SetDefault("order.queue_size", 256)
	v.SetDefault("order.query_interval", "10ms")
	v.SetDefault("order.submit_timeout", "5s")
	v.SetDefault("order.confirm_timeout", "5s")
	v.SetDefault("datasource.ping_interval", "20s")
	v.SetDefault("datasource.pong_timeout", "20s")
	v.SetDefault("datasource.handshake_timeout", "10s")
	v.SetDefault("datasource.reconnect_factor", 2.0)
	v.SetDefault("datasource.reconnect_min_delay", "500ms")
	v.SetDefault("datasource.reconnect_max_delay", "30s")
}

// LoadConfig reads the yaml config plus an optional .env file. Environment
// variables override file values, with dots replaced by underscores.
func LoadConfig(configPath string) (*EnvConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName(filepath.Base(configPath))
			v.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				v.AddConfigPath(".")
			} else {
				v.AddConfigPath(configDir)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &EnvConfig{}
	err = v.Unmarshal(cfg, viper.DecodeHook(decodeHook()))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	for name, credential := range cfg.Credentials {
		credential.Name = name
		cfg.Credentials[name] = credential
	}

	return cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		numberToDecimalHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// numberToDecimalHookFunc lets yaml numbers land in decimal fields; strings
// are left to the text unmarshaller.
func numberToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	decimalType := reflect.TypeOf(decimal.Decimal{})

	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}

		switch v := data.(type) {
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		default:
			return data, nil
		}
	}
}

// DecodeParams decodes free-form strategy params into out using the same
// hooks as the main config.
func DecodeParams(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decodeHook(),
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(params)
}

func (c *EnvConfig) Credential(name string) (entity.Credential, bool) {
	if c == nil || name == "" {
		return entity.Credential{}, false
	}

	credential, ok := c.Credentials[name]
	return credential, ok
}

func (c *EnvConfig) PortOf(name, fallback string) string {
	if c != nil {
		if port := strings.TrimSpace(c.Port[name]); port != "" {
			if strings.HasPrefix(port, ":") {
				return port
			}
			return ":" + port
		}
	}

	return fallback
}
