// internal/config/config.go
package config

import (
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/jason-s-yu/cardclash/internal/database"
	"github.com/jason-s-yu/cardclash/internal/store"
	"github.com/rotisserie/eris"
)

// Config is everything the binaries read from the environment. Fields not set
// in the environment keep the defaults from Default.
type Config struct {
	Port     int    `config:"PORT"`
	LogLevel string `config:"LOG_LEVEL"`

	// Store selects the room store backend: "redis" or "memory".
	Store     string `config:"ROOM_STORE"`
	RedisAddr string `config:"REDIS_ADDR"`
	RedisDB   int    `config:"REDIS_DB"`

	DatabaseURL string `config:"DATABASE_URL"`

	TokenTTL time.Duration `config:"TOKEN_EXPIRE_TIME"`

	RoomMaxAge         time.Duration `config:"ROOM_MAX_AGE"`
	MatchmakingTimeout time.Duration `config:"MATCHMAKING_TIMEOUT"`
	SweepInterval      time.Duration `config:"SWEEP_INTERVAL"`

	// ResultsAsync routes recorded match results through the historian queue
	// instead of writing them to Postgres inline.
	ResultsAsync   bool          `config:"RESULTS_ASYNC"`
	ResultsQueue   string        `config:"HISTORIAN_QUEUE_NAME"`
	HistorianBatch int           `config:"HISTORIAN_BATCH_SIZE"`
	HistorianFlush time.Duration `config:"HISTORIAN_FLUSH"`

	StartingCoins int64 `config:"STARTING_COINS"`
	RankedEntry   int64 `config:"RANKED_ENTRY_FEE"`
	RankedReward  int64 `config:"RANKED_REWARD"`
	CasualEntry   int64 `config:"CASUAL_ENTRY_FEE"`
	CasualReward  int64 `config:"CASUAL_REWARD"`

	// AdminToken guards /admin endpoints. Empty disables them.
	AdminToken string `config:"ADMIN_TOKEN"`
}

// Default is the configuration used for anything the environment leaves out.
func Default() Config {
	return Config{
		Port:               8080,
		LogLevel:           "info",
		Store:              "redis",
		RedisAddr:          "localhost:6379",
		TokenTTL:           72 * time.Hour,
		RoomMaxAge:         30 * time.Minute,
		MatchmakingTimeout: 5 * time.Minute,
		SweepInterval:      2 * time.Minute,
		ResultsQueue:       "match_results",
		HistorianBatch:     20,
		HistorianFlush:     500 * time.Millisecond,
		StartingCoins:      100,
		RankedEntry:        10,
		RankedReward:       18,
	}
}

// Load reads the environment over Default.
func Load() (Config, error) {
	cfg := Default()
	if err := jlconfig.FromEnv().To(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "load config")
	}
	return cfg, nil
}

// Fees is the settlement schedule the ledger applies.
func (c Config) Fees() database.Fees {
	return database.Fees{
		StartingCoins: c.StartingCoins,
		RankedEntry:   c.RankedEntry,
		RankedReward:  c.RankedReward,
		CasualEntry:   c.CasualEntry,
		CasualReward:  c.CasualReward,
	}
}

// Limits are the cleanup thresholds for the room store.
func (c Config) Limits() store.Limits {
	return store.Limits{RoomMaxAge: c.RoomMaxAge, MatchmakingTimeout: c.MatchmakingTimeout}
}
