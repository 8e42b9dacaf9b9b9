package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the whole service configuration, read once at startup.
type Config struct {
	Port        int    `env:"PORT" envDefault:"4000"`
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	Escrow  Escrow
	Archive Archive
	Game    Game
}

// Escrow holds the settlement contract coordinates. Escrow is enabled only
// when address, RPC endpoint and resolver key are all set.
type Escrow struct {
	Address    string        `env:"ESCROW_ADDRESS"`
	RPCURL     string        `env:"ESCROW_RPC_URL"`
	PrivateKey string        `env:"ESCROW_RESOLVER_PRIVATE_KEY"`
	ChainID    int64         `env:"ESCROW_CHAIN_ID" envDefault:"143"`
	TxTimeout  time.Duration `env:"ESCROW_TX_TIMEOUT" envDefault:"2m"`
}

func (e Escrow) Enabled() bool {
	return e.Address != "" && e.RPCURL != "" && e.PrivateKey != ""
}

// Archive points at an S3-compatible bucket for finished match records.
type Archive struct {
	Bucket          string `env:"ARCHIVE_BUCKET"`
	Endpoint        string `env:"ARCHIVE_ENDPOINT"`
	Region          string `env:"ARCHIVE_REGION" envDefault:"auto"`
	AccessKeyID     string `env:"ARCHIVE_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ARCHIVE_ACCESS_KEY_SECRET"`
	Prefix          string `env:"ARCHIVE_PREFIX" envDefault:"matches"`
}

func (a Archive) Enabled() bool {
	return a.Bucket != ""
}

// Game holds the match timings.
type Game struct {
	RoundTimeout         time.Duration `env:"ROUND_TIMEOUT" envDefault:"30s"`
	RoundMinDelay        time.Duration `env:"ROUND_MIN_DELAY" envDefault:"3s"`
	RoundCooldown        time.Duration `env:"ROUND_RESULT_PAUSE" envDefault:"5s"`
	DepositTimeout       time.Duration `env:"DEPOSIT_TIMEOUT" envDefault:"5m"`
	AbandonGrace         time.Duration `env:"DISCONNECT_GRACE" envDefault:"30s"`
	DepositCheckRetries  int           `env:"DEPOSIT_CHECK_RETRIES" envDefault:"5"`
	DepositCheckBackoff  time.Duration `env:"DEPOSIT_CHECK_BACKOFF" envDefault:"2s"`
	DepositPollInterval  time.Duration `env:"DEPOSIT_POLL_INTERVAL" envDefault:"3s"`
	RoundSweepInterval   time.Duration `env:"ROUND_SWEEP_INTERVAL" envDefault:"5s"`
	DepositSweepInterval time.Duration `env:"DEPOSIT_SWEEP_INTERVAL" envDefault:"1m"`
	ChatMaxLength        int           `env:"CHAT_BODY_MAX_LENGTH" envDefault:"150"`
	RatingK              float64       `env:"ELO_K" envDefault:"32"`
}

// DefaultGame returns the game timings with their default values.
func DefaultGame() Game {
	return Game{
		RoundTimeout:         30 * time.Second,
		RoundMinDelay:        3 * time.Second,
		RoundCooldown:        5 * time.Second,
		DepositTimeout:       5 * time.Minute,
		AbandonGrace:         30 * time.Second,
		DepositCheckRetries:  5,
		DepositCheckBackoff:  2 * time.Second,
		DepositPollInterval:  3 * time.Second,
		RoundSweepInterval:   5 * time.Second,
		DepositSweepInterval: time.Minute,
		ChatMaxLength:        150,
		RatingK:              32,
	}
}

// Load reads .env (if present) and parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
