package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "persistent.db", cfg.DatabasePath)
	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, uint8(9), cfg.NativeDecimals)
	assert.Equal(t, 60*time.Second, cfg.NativeMaxPriceAge)
	assert.Equal(t, 120*time.Second, cfg.TokenMaxPriceAge)
}

func TestLoadDotenvAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sale.env")
	require.NoError(t, os.WriteFile(file, []byte("NODESALE_DATABASE_PATH=/tmp/sale.db\nNODESALE_NATIVE_DECIMALS=6\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("NODESALE_DATABASE_PATH")
		os.Unsetenv("NODESALE_NATIVE_DECIMALS")
	})
	t.Setenv("NODESALE_TOKEN_MAX_PRICE_AGE", "90s")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/sale.db", cfg.DatabasePath)
	assert.Equal(t, uint8(6), cfg.NativeDecimals)
	assert.Equal(t, 90*time.Second, cfg.TokenMaxPriceAge)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{DatabasePath: "x.db", ListenAddress: ":1", NativeDecimals: 19, NativeMaxPriceAge: time.Second, TokenMaxPriceAge: time.Second}
	assert.Error(t, cfg.Validate())

	cfg.NativeDecimals = 9
	cfg.NativeMaxPriceAge = 0
	assert.Error(t, cfg.Validate())

	cfg.NativeMaxPriceAge = time.Second
	cfg.DatabasePath = " "
	assert.Error(t, cfg.Validate())
}
