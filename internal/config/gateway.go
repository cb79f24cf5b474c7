package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// GatewayConfig carries the credentials for the two payment gateways.
// Credentials are injected values read from a watched file, never
// process-wide globals, so tests can construct clients with fakes.
type GatewayConfig struct {
	DLocal DLocalConfig `mapstructure:"dlocal"`
	Stripe StripeConfig `mapstructure:"stripe"`
}

type DLocalConfig struct {
	APIKey    string `mapstructure:"apiKey"`
	SecretKey string `mapstructure:"secretKey"`
	BaseURL   string `mapstructure:"baseUrl"`
}

type StripeConfig struct {
	SecretKey      string `mapstructure:"secretKey"`
	PublishableKey string `mapstructure:"publishableKey"`
	BaseURL        string `mapstructure:"baseUrl"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		DLocal: DLocalConfig{
			BaseURL: "https://api-sbx.dlocalgo.com",
		},
		Stripe: StripeConfig{
			BaseURL: "https://api.stripe.com",
		},
	}
}

type GatewayConfigHolder struct {
	current atomic.Value // holds GatewayConfig
}

func NewGatewayConfigHolder(appCfg Config) (*GatewayConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("gateways")
	v.SetConfigType("yml")
	if appCfg.GatewayConfigPath != "" {
		v.AddConfigPath(appCfg.GatewayConfigPath)
	}
	v.AddConfigPath("/etc/paygate")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultGatewayConfig()
	v.SetDefault("gateways.dlocal.baseUrl", defaults.DLocal.BaseURL)
	v.SetDefault("gateways.stripe.baseUrl", defaults.Stripe.BaseURL)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg GatewayConfig
	if err := v.UnmarshalKey("gateways", &cfg); err != nil {
		return nil, err
	}
	if err := validateGatewayConfig(cfg); err != nil {
		return nil, err
	}

	holder := &GatewayConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated GatewayConfig
		if err := v.UnmarshalKey("gateways", &updated); err != nil {
			log.Printf("[gateway-config] reload failed: %v", err)
			return
		}
		if err := validateGatewayConfig(updated); err != nil {
			log.Printf("[gateway-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[gateway-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *GatewayConfigHolder) Get() GatewayConfig {
	return h.current.Load().(GatewayConfig)
}

func validateGatewayConfig(cfg GatewayConfig) error {
	if strings.TrimSpace(cfg.DLocal.BaseURL) == "" {
		return errors.New("gateways.dlocal.baseUrl cannot be empty")
	}
	if strings.TrimSpace(cfg.Stripe.BaseURL) == "" {
		return errors.New("gateways.stripe.baseUrl cannot be empty")
	}
	return nil
}
