package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ReconnectConfig bounds realtime redials after the socket drops.
type ReconnectConfig struct {
	Disabled        bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// ClientConfig drives the coachctl client runtime.
type ClientConfig struct {
	Environment    string
	LogLevel       string
	BaseURL        string
	StateDir       string
	RequestTimeout time.Duration
	// CacheStaleTime ages cached queries; zero keeps them until invalidated.
	CacheStaleTime time.Duration
	Reconnect      ReconnectConfig
}

// LoadClient resolves client settings from flags, COACHCTL_* environment
// variables and an optional coachctl.yaml.
func LoadClient(flags *pflag.FlagSet) (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigName("coachctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "fitcoach"))
	}

	v.SetEnvPrefix("COACHCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setClientDefaults(v)

	if flags != nil {
		for key, name := range map[string]string{
			"baseurl":  "base-url",
			"statedir": "state-dir",
			"loglevel": "log-level",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &cfg, nil
}

func setClientDefaults(v *viper.Viper) {
	stateDir := ".coachctl"
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".config", "fitcoach", "state")
	}

	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "info")
	v.SetDefault("baseurl", "http://localhost:8080/api/v1")
	v.SetDefault("statedir", stateDir)
	v.SetDefault("requesttimeout", "15s")
	v.SetDefault("cachestaletime", "0s")

	v.SetDefault("reconnect.disabled", false)
	v.SetDefault("reconnect.initialinterval", "500ms")
	v.SetDefault("reconnect.maxinterval", "30s")
	v.SetDefault("reconnect.maxelapsed", "10m")
}
