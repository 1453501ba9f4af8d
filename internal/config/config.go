package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Ledger   LedgerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Budget   BudgetConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type LedgerConfig struct {
	BaseURL string
	Fee     *big.Int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret string
}

// BudgetConfig carries the execution-resource budget the hosting environment
// granted this instance. Startup refuses below Minimum; an unmetered host
// opts out explicitly with MIN_EXECUTION_BUDGET=0.
type BudgetConfig struct {
	Granted uint64
	Minimum uint64
}

// defaultMinimumBudget matches the ledger-platform floor of one trillion
// execution units.
const defaultMinimumBudget = 1_000_000_000_000

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	ledgerURL := os.Getenv("LEDGER_BASE_URL")
	if ledgerURL == "" {
		return nil, fmt.Errorf("%s: missing LEDGER_BASE_URL", op)
	}

	ledgerFeeStr := os.Getenv("LEDGER_FEE")
	if ledgerFeeStr == "" {
		ledgerFeeStr = "10000"
	}

	ledgerFee, ok := new(big.Int).SetString(ledgerFeeStr, 10)
	if !ok || ledgerFee.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid LEDGER_FEE %q", op, ledgerFeeStr)
	}

	ledgerCfg := LedgerConfig{
		BaseURL: ledgerURL,
		Fee:     ledgerFee,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPortStr := os.Getenv("POSTGRES_PORT")
	if postgresPortStr == "" {
		postgresPortStr = "5432"
	}

	postgresPort, err := strconv.Atoi(postgresPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid POSTGRES_PORT: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	jwtSecret := os.Getenv("AUTH_JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing AUTH_JWT_SECRET", op)
	}

	budgetCfg := BudgetConfig{Minimum: defaultMinimumBudget}

	if s := os.Getenv("HOST_EXECUTION_BUDGET"); s != "" {
		budgetCfg.Granted, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid HOST_EXECUTION_BUDGET: %w", op, err)
		}
	}

	if s := os.Getenv("MIN_EXECUTION_BUDGET"); s != "" {
		budgetCfg.Minimum, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid MIN_EXECUTION_BUDGET: %w", op, err)
		}
	}

	return &Config{
		Server:   serverCfg,
		Ledger:   ledgerCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Auth:     AuthConfig{JWTSecret: jwtSecret},
		Budget:   budgetCfg,
	}, nil
}
