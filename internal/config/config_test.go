package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "https://open.er-api.com/v6/latest/EUR", cfg.RatesURL)
	assert.Equal(t, 10*time.Second, cfg.SupplierTimeout)
	assert.Equal(t, 15*time.Second, cfg.SearchTimeout)
	assert.Equal(t, []string{"SAT", "FEBEST", "ASVA", "JAPANPARTS", "NIPPARTS"}, cfg.ExcludedBrands)
	assert.Empty(t, cfg.ApecCreds.Username)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AUTOFIX_SUPPLIER_TIMEOUT", "3s")
	t.Setenv("AUTOFIX_EXCLUDED_BRANDS", "FOO, BAR ,")
	t.Setenv("AUTOFIX_EMEX_USERNAME", "acct")
	t.Setenv("AUTOFIX_EMEX_PASSWORD", "pw")

	cfg := Load()

	assert.Equal(t, 3*time.Second, cfg.SupplierTimeout)
	assert.Equal(t, []string{"FOO", "BAR"}, cfg.ExcludedBrands)
	require.NoError(t, cfg.EmexCreds.Check())
}

func TestCredentialsCheck(t *testing.T) {
	assert.ErrorIs(t, Credentials{}.Check(), ErrMissingCredentials)
	assert.ErrorIs(t, Credentials{Username: "u"}.Check(), ErrMissingCredentials)
	assert.ErrorIs(t, Credentials{Password: "p"}.Check(), ErrMissingCredentials)
	assert.NoError(t, Credentials{Username: "u", Password: "p"}.Check())
}
