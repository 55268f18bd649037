package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	AI       AIConfig
	Ledger   LedgerConfig
	Chat     ChatConfig
	Events   EventsConfig
	Sheets   SheetsConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig описывает необязательное хранилище журнала AI-запросов.
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	JWTIssuer          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
}

type AIConfig struct {
	Provider           string
	APIKey             string
	BaseURL            string
	Model              string
	Timeout            time.Duration
	MaxOutputTokens    int
	RateLimitMaxTokens int
	RateLimitWindow    time.Duration
}

type LedgerConfig struct {
	AsOf          time.Time
	RiskThreshold decimal.Decimal
	Latency       time.Duration
}

type ChatConfig struct {
	Cooldown time.Duration
}

// EventsConfig описывает публикацию событий журнала в AMQP. Пустой URL отключает публикацию.
type EventsConfig struct {
	AMQPURL    string
	Exchange   string
	RoutingKey string
}

// Enabled сообщает, настроена ли публикация событий.
func (c EventsConfig) Enabled() bool {
	return c.AMQPURL != ""
}

// SheetsConfig описывает зеркалирование проводок в Google Sheets.
// Пустой SpreadsheetID отключает зеркало.
type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	Timeout         time.Duration
}

func (c SheetsConfig) Enabled() bool {
	return c.SpreadsheetID != ""
}

// Load загружает конфигурацию приложения из окружения и .env.
func Load() (Config, error) {
	cfg := Config{}

	if err := loadEnv(); err != nil {
		return cfg, err
	}

	cfg.Env = getEnv("APP_ENV", "local")

	serverPort, err := parseIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return cfg, err
	}

	readTimeout, err := parseDurationEnv("SERVER_READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return cfg, err
	}

	// SSE-поток держит соединение открытым, поэтому запись без таймаута по умолчанию.
	writeTimeout, err := parseNonNegativeDurationEnv("SERVER_WRITE_TIMEOUT", 0)
	if err != nil {
		return cfg, err
	}

	idleTimeout, err := parseDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return cfg, err
	}

	cfg.Server = ServerConfig{
		Host:         getEnv("SERVER_HOST", "0.0.0.0"),
		Port:         serverPort,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	dbEnabled, err := parseBoolEnv("DB_ENABLED", false)
	if err != nil {
		return cfg, err
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return cfg, err
	}

	maxOpenConns, err := parseIntEnv("DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return cfg, err
	}

	maxIdleConns, err := parseIntEnv("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return cfg, err
	}

	connMaxIdleTime, err := parseDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute)
	if err != nil {
		return cfg, err
	}

	connMaxLifetime, err := parseDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return cfg, err
	}

	cfg.Database = DatabaseConfig{
		Enabled:         dbEnabled,
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            dbPort,
		User:            getEnv("DB_USER", "fincap"),
		Password:        getEnv("DB_PASSWORD", "fincap"),
		Name:            getEnv("DB_NAME", "fincap"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxIdleTime: connMaxIdleTime,
		ConnMaxLifetime: connMaxLifetime,
	}

	accessTTL, err := parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return cfg, err
	}

	refreshTTL, err := parseDurationEnv("JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return cfg, err
	}

	rateLimitPerMinute, err := parseIntEnv("AUTH_RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return cfg, err
	}

	rateLimitBurst, err := parseIntEnv("AUTH_RATE_LIMIT_BURST", 10)
	if err != nil {
		return cfg, err
	}

	cfg.Auth = AuthConfig{
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTIssuer:          getEnv("JWT_ISSUER", "fincap"),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
		RateLimitPerMinute: rateLimitPerMinute,
		RateLimitBurst:     rateLimitBurst,
	}

	aiTimeout, err := parseDurationEnv("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		return cfg, err
	}

	aiMaxOutputTokens, err := parseIntEnv("AI_MAX_OUTPUT_TOKENS", 4096)
	if err != nil {
		return cfg, err
	}

	aiMaxTokens, err := parseIntEnv("AI_RATE_LIMIT_MAX_TOKENS", 15)
	if err != nil {
		return cfg, err
	}

	aiWindow, err := parseDurationEnv("AI_RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return cfg, err
	}

	aiProvider := strings.ToLower(getEnv("AI_PROVIDER", "gemini"))
	defaultBaseURL := "https://api.groq.com/openai/v1"
	defaultModel := "llama-3.3-70b-versatile"
	if aiProvider == "gemini" {
		defaultBaseURL = ""
		defaultModel = "gemini-2.5-flash"
	}

	aiAPIKey := getEnv("AI_API_KEY", "")
	if aiAPIKey == "" && aiProvider == "gemini" {
		aiAPIKey = getEnv("GEMINI_API_KEY", "")
	}

	cfg.AI = AIConfig{
		Provider:           aiProvider,
		APIKey:             aiAPIKey,
		BaseURL:            getEnv("AI_BASE_URL", defaultBaseURL),
		Model:              getEnv("AI_MODEL", defaultModel),
		Timeout:            aiTimeout,
		MaxOutputTokens:    aiMaxOutputTokens,
		RateLimitMaxTokens: aiMaxTokens,
		RateLimitWindow:    aiWindow,
	}

	asOf, err := parseDateEnv("LEDGER_AS_OF_DATE", "2025-11-18")
	if err != nil {
		return cfg, err
	}

	riskThreshold, err := parseDecimalEnv("LEDGER_RISK_THRESHOLD", decimal.NewFromInt(5000))
	if err != nil {
		return cfg, err
	}

	latency, err := parseNonNegativeDurationEnv("LEDGER_LATENCY", 0)
	if err != nil {
		return cfg, err
	}

	cfg.Ledger = LedgerConfig{
		AsOf:          asOf,
		RiskThreshold: riskThreshold,
		Latency:       latency,
	}

	cooldown, err := parseNonNegativeDurationEnv("CHAT_COOLDOWN", 500*time.Millisecond)
	if err != nil {
		return cfg, err
	}

	cfg.Chat = ChatConfig{Cooldown: cooldown}

	cfg.Events = EventsConfig{
		AMQPURL:    getEnv("AMQP_URL", ""),
		Exchange:   getEnv("AMQP_EXCHANGE", "fincap.ledger"),
		RoutingKey: getEnv("AMQP_ROUTING_KEY", "ledger_updated"),
	}

	sheetsTimeout, err := parseDurationEnv("SHEETS_TIMEOUT", 10*time.Second)
	if err != nil {
		return cfg, err
	}

	cfg.Sheets = SheetsConfig{
		SpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetName:       getEnv("SHEETS_SHEET_NAME", "Ledger"),
		CredentialsJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		Timeout:         sheetsTimeout,
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// DSN возвращает строку подключения к базе данных.
func (c DatabaseConfig) DSN() string {
	user := url.UserPassword(c.User, c.Password)
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Name,
	}

	query := url.Values{}
	query.Set("sslmode", c.SSLMode)
	return dsn.String() + "?" + query.Encode()
}

func (c Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("SERVER_PORT must be greater than 0")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}

		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required")
		}

		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}

		if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
			return fmt.Errorf("DB_MAX_IDLE_CONNS cannot exceed DB_MAX_OPEN_CONNS")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.AI.Provider != "gemini" && c.AI.Provider != "groq" {
		return fmt.Errorf("AI_PROVIDER must be gemini or groq")
	}

	if c.Ledger.RiskThreshold.IsNegative() {
		return fmt.Errorf("LEDGER_RISK_THRESHOLD cannot be negative")
	}

	if c.Events.Enabled() && c.Events.Exchange == "" {
		return fmt.Errorf("AMQP_EXCHANGE is required when AMQP_URL is set")
	}

	if c.Sheets.Enabled() {
		if c.Sheets.SheetName == "" {
			return fmt.Errorf("SHEETS_SHEET_NAME is required when SHEETS_SPREADSHEET_ID is set")
		}
		if c.Sheets.CredentialsJSON == "" && c.Sheets.CredentialsFile == "" {
			return fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS is required when SHEETS_SPREADSHEET_ID is set")
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

func parseIntEnv(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}

	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return parsed, nil
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}

	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return parsed, nil
}

func parseNonNegativeDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}

	if parsed < 0 {
		return 0, fmt.Errorf("%s cannot be negative", key)
	}

	return parsed, nil
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}

	return parsed, nil
}

func parseDateEnv(key, fallback string) (time.Time, error) {
	value := getEnv(key, fallback)

	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date in YYYY-MM-DD format: %w", key, err)
	}

	return parsed.UTC(), nil
}

func parseDecimalEnv(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s must be a number: %w", key, err)
	}

	return parsed, nil
}

func loadEnv() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}
