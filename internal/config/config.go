package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PostgresConfig with an empty DSN selects the in-memory repositories.
type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

// RedisConfig with an empty Addr keeps domain events inside the process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	BucketMedia string
	UseSSL      bool
	Region      string
}

type SecurityConfig struct {
	JWTAccessSecret string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	SignatureSecret string
	MaxSessions     int
	RefreshCookie   string
	CookieSecure    bool
}

type RealtimeConfig struct {
	Stream       string
	GroupPrefix  string
	InstanceID   string
	StreamMaxLen int64
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
	ClaimIdle    time.Duration
}

type JobsConfig struct {
	SessionPurge string
	StreamTrim   string
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	HTTP             HTTPConfig
	TLS              TLSConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Realtime         RealtimeConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("FITCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Security.JWTAccessSecret == "" {
		if cfg.Environment == "production" {
			return nil, fmt.Errorf("security.jwtaccesssecret is required in production")
		}
		cfg.Security.JWTAccessSecret = "dev-secret-change-me"
	}

	return &cfg, nil
}

func decoderOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "mapstructure"
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("tls.enabled", false)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.bucketmedia", "fitcoach-media")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "720h") // 30 days
	v.SetDefault("security.signaturesecret", "dev-signature-change-me")
	v.SetDefault("security.maxsessions", 10)
	v.SetDefault("security.refreshcookie", "fc_refresh")
	v.SetDefault("security.cookiesecure", false)

	v.SetDefault("realtime.stream", "realtime:events")
	v.SetDefault("realtime.groupprefix", "realtime")
	v.SetDefault("realtime.instanceid", "")
	v.SetDefault("realtime.streammaxlen", 10000)
	v.SetDefault("realtime.sendbuffer", 64)
	v.SetDefault("realtime.pinginterval", "25s")
	v.SetDefault("realtime.writetimeout", "10s")
	v.SetDefault("realtime.claimidle", "30s")

	v.SetDefault("jobs.sessionpurge", "0 0 * * * *")
	v.SetDefault("jobs.streamtrim", "0 */10 * * * *")

	v.SetDefault("allowcorsorigins", []string{})
}
