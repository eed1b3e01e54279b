package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "nodesale"

type Config struct {
	DatabasePath    string        `envconfig:"DATABASE_PATH"     default:"persistent.db"`
	ListenAddress   string        `envconfig:"LISTEN_ADDRESS"    default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"  default:"10s"`

	LogLevel   string `envconfig:"LOG_LEVEL"   default:"info"`
	LogFile    string `envconfig:"LOG_FILE"`
	ErrorFile  string `envconfig:"ERROR_FILE"`
	LogConsole bool   `envconfig:"LOG_CONSOLE" default:"true"`

	// NativeDecimals is the number of base units per native unit expressed as
	// a power of ten (9 for lamports per SOL).
	NativeDecimals    uint8         `envconfig:"NATIVE_DECIMALS"        default:"9"`
	NativeMaxPriceAge time.Duration `envconfig:"NATIVE_MAX_PRICE_AGE"   default:"60s"`
	TokenMaxPriceAge  time.Duration `envconfig:"TOKEN_MAX_PRICE_AGE"    default:"120s"`
	OracleEndpoint    string        `envconfig:"ORACLE_ENDPOINT"        default:"https://hermes.pyth.network"`
	OracleTimeout     time.Duration `envconfig:"ORACLE_TIMEOUT"         default:"5s"`
}

// Load reads an optional .env file from the working directory, then the
// NODESALE_* environment.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("database path must be configured")
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("listen address must be configured")
	}
	if c.NativeDecimals > 18 {
		return fmt.Errorf("native decimals %d out of range", c.NativeDecimals)
	}
	if c.NativeMaxPriceAge <= 0 || c.TokenMaxPriceAge <= 0 {
		return errors.New("oracle max price age must be positive")
	}
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = 5 * time.Second
	}
	return nil
}
