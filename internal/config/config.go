package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Provider holds everything a single vendor integration needs. It is read
// once when the provider is built.
type Provider struct {
	URL          string
	ClientID     string
	ClientSecret string
	APIKey       string
	Timeout      time.Duration
	MaxResults   int
	Currency     string
	RPS          float64
	Burst        int
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

type Config struct {
	ServerAddr      string
	LogLevel        string
	JWTSecret       string
	JWTUser         string
	JWTPassword     string
	TLSCertFile     string
	TLSKeyFile      string
	ProviderTimeout time.Duration
	StreamInterval  time.Duration
	DefaultCurrency string
	MaxResults      int
	StoreDriver     string
	Redis           Redis
	Amadeus         Provider
	Kiwi            Provider
	Duffel          Provider
	RapidBooking    Provider
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("auth_user", "demo")
	v.SetDefault("auth_pass", "demo123")
	v.SetDefault("provider_timeout", "60s")
	v.SetDefault("stream_interval", "30s")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("default_currency", "BRL")
	v.SetDefault("max_results", 50)

	v.SetDefault("amadeus_url", "https://test.api.amadeus.com")
	v.SetDefault("kiwi_url", "https://api.tequila.kiwi.com")
	v.SetDefault("duffel_url", "https://api.duffel.com")
	v.SetDefault("rapid_booking_url", "https://booking-com15.p.rapidapi.com")

	v.SetDefault("store_driver", "memory")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_prefix", "flights")
	v.SetDefault("redis_ttl", "24h")

	if path := os.Getenv("FLIGHTS_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		// Fallback to conventional locations for local dev
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/flights")
	}

	// A missing file is fine for local dev; an explicit path must be readable.
	if err := v.ReadInConfig(); err != nil && os.Getenv("FLIGHTS_CONFIG") != "" {
		return nil, fmt.Errorf("read config: %w", err)
	}

	v.AutomaticEnv()

	providerTimeout, err := duration(v, "provider_timeout")
	if err != nil {
		return nil, err
	}
	streamInterval, err := duration(v, "stream_interval")
	if err != nil {
		return nil, err
	}
	requestTimeout, err := duration(v, "request_timeout")
	if err != nil {
		return nil, err
	}
	redisTTL, err := duration(v, "redis_ttl")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerAddr:      v.GetString("server_addr"),
		LogLevel:        v.GetString("log_level"),
		JWTSecret:       v.GetString("jwt_secret"),
		JWTUser:         v.GetString("auth_user"),
		JWTPassword:     v.GetString("auth_pass"),
		TLSCertFile:     v.GetString("tls_cert_file"),
		TLSKeyFile:      v.GetString("tls_key_file"),
		ProviderTimeout: providerTimeout,
		StreamInterval:  streamInterval,
		DefaultCurrency: v.GetString("default_currency"),
		MaxResults:      v.GetInt("max_results"),
		StoreDriver:     v.GetString("store_driver"),
		Redis: Redis{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
			Prefix:   v.GetString("redis_prefix"),
			TTL:      redisTTL,
		},
	}

	for _, p := range []struct {
		prefix string
		dst    *Provider
	}{
		{"amadeus", &cfg.Amadeus},
		{"kiwi", &cfg.Kiwi},
		{"duffel", &cfg.Duffel},
		{"rapid_booking", &cfg.RapidBooking},
	} {
		pc, err := providerConfig(v, p.prefix, requestTimeout, cfg.MaxResults, cfg.DefaultCurrency)
		if err != nil {
			return nil, err
		}
		*p.dst = pc
	}
	// Vendor specific credential names kept from the original deployment.
	cfg.Duffel.APIKey = firstNonEmpty(v.GetString("duffel_token"), cfg.Duffel.APIKey)
	cfg.RapidBooking.APIKey = firstNonEmpty(v.GetString("rapid_booking_rapidapikey"), cfg.RapidBooking.APIKey)

	return cfg, nil
}

func providerConfig(v *viper.Viper, prefix string, timeout time.Duration, maxResults int, currency string) (Provider, error) {
	pc := Provider{
		URL:          v.GetString(prefix + "_url"),
		ClientID:     v.GetString(prefix + "_clientid"),
		ClientSecret: v.GetString(prefix + "_clientsecret"),
		APIKey:       v.GetString(prefix + "_apikey"),
		Timeout:      timeout,
		MaxResults:   maxResults,
		Currency:     currency,
		RPS:          v.GetFloat64(prefix + "_rps"),
		Burst:        v.GetInt(prefix + "_burst"),
	}
	if v.IsSet(prefix + "_timeout") {
		d, err := duration(v, prefix+"_timeout")
		if err != nil {
			return Provider{}, err
		}
		pc.Timeout = d
	}
	if n := v.GetInt(prefix + "_max_results"); n > 0 {
		pc.MaxResults = n
	}
	if c := v.GetString(prefix + "_currency"); c != "" {
		pc.Currency = c
	}
	return pc, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("bad %s: %w", key, err)
	}
	return d, nil
}

func firstNonEmpty(vals ...string) string {
	for _, s := range vals {
		if s != "" {
			return s
		}
	}
	return ""
}
