package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"

	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

// Config is the full application configuration, read from the environment
// (and a .env file when present).
type Config struct {
	// Port is unprefixed for hosting platforms that inject PORT.
	Port       int        `env:"PORT" envDefault:"8080"`
	HTTP       HTTP       `envPrefix:"HTTP_"`
	JWT        JWT        `envPrefix:"JWT_"`
	DB         Database   `envPrefix:"DB_"`
	Reputation Reputation `envPrefix:"REPUTATION_"`

	// AdminUserIDs may recompute any user's reputation.
	AdminUserIDs []int `env:"ADMIN_USER_IDS" envSeparator:","`
}

type HTTP struct {
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"1m"`
	AllowOrigins []string      `env:"ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
}

type JWT struct {
	Secret string        `env:"SECRET,required,notEmpty"`
	TTL    time.Duration `env:"TTL" envDefault:"72h"`
}

type Database struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"qa_forum"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`

	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`
	// LockTimeout bounds how long a ledger transaction waits for a row lock.
	LockTimeout   time.Duration `env:"LOCK_TIMEOUT" envDefault:"3s"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"warn"`
	SlowThreshold time.Duration `env:"SLOW_THRESHOLD" envDefault:"1s"`
}

// DSN returns the connection string in the key=value form GORM's Postgres
// dialect expects.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type Reputation struct {
	UpAnswer     int           `env:"UP_ANSWER" envDefault:"10"`
	UpQuestion   int           `env:"UP_QUESTION" envDefault:"5"`
	DownPost     int           `env:"DOWN_POST" envDefault:"2"`
	DownVoter    int           `env:"DOWN_VOTER" envDefault:"1"`
	AcceptAnswer int           `env:"ACCEPT_ANSWER" envDefault:"15"`
	AcceptGiver  int           `env:"ACCEPT_GIVER" envDefault:"2"`
	TxTimeout    time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
}

// Rules converts the configured point values into the engine's rule table.
func (r Reputation) Rules() reputation.Rules {
	return reputation.Rules{
		UpAnswer:     r.UpAnswer,
		UpQuestion:   r.UpQuestion,
		DownPost:     r.DownPost,
		DownVoter:    r.DownVoter,
		AcceptAnswer: r.AcceptAnswer,
		AcceptGiver:  r.AcceptGiver,
	}
}

// IsAdmin reports whether userID is listed in ADMIN_USER_IDS.
func (c Config) IsAdmin(userID int) bool {
	return slices.Contains(c.AdminUserIDs, userID)
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Reputation.Rules().Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
