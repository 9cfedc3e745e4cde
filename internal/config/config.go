package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned when a supplier requires a credential pair
// that was not configured. It disables that single supplier, never the service.
var ErrMissingCredentials = errors.New("missing supplier credentials")

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Check() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

type Config struct {
	RatesURL string

	// SupplierTimeout bounds every individual upstream call; SearchTimeout
	// bounds the whole fan-out.
	SupplierTimeout time.Duration
	SearchTimeout   time.Duration

	ImpexURL    string
	ImpexAPIKey string
	// ExcludedBrands is the aftermarket denylist applied to the Impex feed.
	// Treated as a policy input, overridable via configuration.
	ExcludedBrands []string

	ApecURL   string
	ApecCreds Credentials

	EmexURL   string
	EmexCreds Credentials

	StimoURL   string
	StimoCreds Credentials

	ThunderURL   string
	ThunderCreds Credentials
}

// Load reads the configuration from AUTOFIX_-prefixed environment variables,
// falling back to the documented defaults.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("AUTOFIX")
	v.AutomaticEnv()

	v.SetDefault("RATES_URL", "https://open.er-api.com/v6/latest/EUR")
	v.SetDefault("SUPPLIER_TIMEOUT", "10s")
	v.SetDefault("SEARCH_TIMEOUT", "15s")

	v.SetDefault("IMPEX_URL", "https://api.impex-jp.com")
	v.SetDefault("IMPEX_API_KEY", "")
	v.SetDefault("EXCLUDED_BRANDS", "SAT,FEBEST,ASVA,JAPANPARTS,NIPPARTS")

	v.SetDefault("APEC_URL", "https://api.apecparts.eu")
	v.SetDefault("APEC_USERNAME", "")
	v.SetDefault("APEC_PASSWORD", "")

	v.SetDefault("EMEX_URL", "https://ws.emexdwc.ae")
	v.SetDefault("EMEX_USERNAME", "")
	v.SetDefault("EMEX_PASSWORD", "")

	v.SetDefault("STIMO_URL", "https://b2b.stimo.eu")
	v.SetDefault("STIMO_USERNAME", "")
	v.SetDefault("STIMO_PASSWORD", "")

	v.SetDefault("THUNDER_URL", "https://api.pitmax.ru")
	v.SetDefault("THUNDER_USERNAME", "")
	v.SetDefault("THUNDER_PASSWORD", "")

	return &Config{
		RatesURL:        v.GetString("RATES_URL"),
		SupplierTimeout: v.GetDuration("SUPPLIER_TIMEOUT"),
		SearchTimeout:   v.GetDuration("SEARCH_TIMEOUT"),

		ImpexURL:       v.GetString("IMPEX_URL"),
		ImpexAPIKey:    v.GetString("IMPEX_API_KEY"),
		ExcludedBrands: splitList(v.GetString("EXCLUDED_BRANDS")),

		ApecURL:   v.GetString("APEC_URL"),
		ApecCreds: Credentials{v.GetString("APEC_USERNAME"), v.GetString("APEC_PASSWORD")},

		EmexURL:   v.GetString("EMEX_URL"),
		EmexCreds: Credentials{v.GetString("EMEX_USERNAME"), v.GetString("EMEX_PASSWORD")},

		StimoURL:   v.GetString("STIMO_URL"),
		StimoCreds: Credentials{v.GetString("STIMO_USERNAME"), v.GetString("STIMO_PASSWORD")},

		ThunderURL:   v.GetString("THUNDER_URL"),
		ThunderCreds: Credentials{v.GetString("THUNDER_USERNAME"), v.GetString("THUNDER_PASSWORD")},
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
