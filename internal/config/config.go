package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port          int
	DBDSN         string
	DBMigrate     bool
	RedisURL      string
	AllowOrigins  []string
	LogLevel      string
	LogFormat     string
	DefaultLocale string
	AdminGrants   []string
	RateLimit     RateLimitConfig
	Auth0         Auth0Config
	Auth          AuthConfig
	Sync          SyncConfig
	AMQP          AMQPConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Auth0Config agrupa o tenant Auth0 e as credenciais da Management API.
type Auth0Config struct {
	Domain           string
	Audience         string
	RolesClaim       string
	MgmtClientID     string
	MgmtClientSecret string
	MgmtAudience     string
	HTTPTimeout      time.Duration
}

// AuthConfig define como tokens de entrada são verificados.
type AuthConfig struct {
	Mode          string
	HS256Secret   string
	HS256Issuer   string
	HS256TokenTTL time.Duration
}

// SyncConfig controla a sincronização periódica com o Auth0.
type SyncConfig struct {
	Enabled            bool
	Interval           time.Duration
	PageSize           int
	CountCheckInterval time.Duration
	LockTTL            time.Duration
	CatalogCacheTTL    time.Duration
}

// AMQPConfig habilita a publicação de eventos de usuário.
type AMQPConfig struct {
	URL   string
	Queue string
}

const (
	AuthModeOIDC  = "oidc"
	AuthModeHS256 = "hs256"
)

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	port, err := parseIntEnv("PORT", 8080)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = strings.TrimSpace(getEnv("DB_DSN", ""))
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	if cfg.DBMigrate, err = parseBoolEnv("DB_MIGRATE", true); err != nil {
		return nil, err
	}

	cfg.RedisURL = strings.TrimSpace(getEnv("REDIS_URL", ""))
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	cfg.AllowOrigins = splitList(getEnv("ALLOW_ORIGINS", "http://localhost:5173,http://localhost:4173"))
	cfg.AdminGrants = splitList(getEnv("ADMIN_GRANTS", ""))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info")))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "console")))
	cfg.DefaultLocale = strings.TrimSpace(getEnv("DEFAULT_LOCALE", "pt-BR"))

	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "10"), 64)
	if err != nil || rps <= 0 {
		return nil, errors.New("RATE_LIMIT_RPS inválido")
	}
	burst, err := parseIntEnv("RATE_LIMIT_BURST", 40)
	if err != nil || burst <= 0 {
		return nil, errors.New("RATE_LIMIT_BURST inválido")
	}
	cfg.RateLimit = RateLimitConfig{RequestsPerSecond: rps, Burst: burst}

	if err := loadAuth0(cfg); err != nil {
		return nil, err
	}
	if err := loadAuth(cfg); err != nil {
		return nil, err
	}
	if err := loadSync(cfg); err != nil {
		return nil, err
	}

	cfg.AMQP = AMQPConfig{
		URL:   strings.TrimSpace(getEnv("AMQP_URL", "")),
		Queue: strings.TrimSpace(getEnv("AMQP_QUEUE", "usuarios.eventos")),
	}

	return cfg, nil
}

func loadAuth0(cfg *Config) error {
	a := Auth0Config{
		Domain:           normalizeDomain(getEnv("AUTH0_DOMAIN", "")),
		Audience:         strings.TrimSpace(getEnv("AUTH0_AUDIENCE", "")),
		RolesClaim:       strings.TrimSpace(getEnv("AUTH0_ROLES_CLAIM", "https://api.mcloud.com/roles")),
		MgmtClientID:     strings.TrimSpace(getEnv("AUTH0_MGMT_CLIENT_ID", "")),
		MgmtClientSecret: strings.TrimSpace(getEnv("AUTH0_MGMT_CLIENT_SECRET", "")),
	}

	if a.Domain == "" {
		return errors.New("AUTH0_DOMAIN obrigatório")
	}
	if strings.ContainsAny(a.Domain, "/ ") {
		return errors.New("AUTH0_DOMAIN deve conter apenas o host (ex.: tenant.us.auth0.com)")
	}
	if a.MgmtClientID == "" || a.MgmtClientSecret == "" {
		return errors.New("AUTH0_MGMT_CLIENT_ID e AUTH0_MGMT_CLIENT_SECRET obrigatórios")
	}
	if a.RolesClaim == "" {
		return errors.New("AUTH0_ROLES_CLAIM obrigatório")
	}

	a.MgmtAudience = strings.TrimSpace(getEnv("AUTH0_MGMT_AUDIENCE", ""))
	if a.MgmtAudience == "" {
		a.MgmtAudience = "https://" + a.Domain + "/api/v2/"
	}

	timeout, err := parseDurationEnv("AUTH0_HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return err
	}
	a.HTTPTimeout = timeout

	cfg.Auth0 = a
	return nil
}

func loadAuth(cfg *Config) error {
	mode := strings.ToLower(strings.TrimSpace(getEnv("AUTH_MODE", AuthModeOIDC)))
	a := AuthConfig{Mode: mode}

	switch mode {
	case AuthModeOIDC:
		if cfg.Auth0.Audience == "" {
			return errors.New("AUTH0_AUDIENCE obrigatório no modo oidc")
		}
	case AuthModeHS256:
		a.HS256Secret = strings.TrimSpace(getEnv("AUTH_HS256_SECRET", ""))
		if len(a.HS256Secret) < 32 {
			return errors.New("AUTH_HS256_SECRET deve ter pelo menos 32 caracteres")
		}
		a.HS256Issuer = strings.TrimSpace(getEnv("AUTH_HS256_ISSUER", "autenticador-local"))
		ttl, err := parseDurationEnv("AUTH_HS256_TOKEN_TTL", time.Hour)
		if err != nil {
			return err
		}
		a.HS256TokenTTL = ttl
	default:
		return errors.New("AUTH_MODE inválido (use oidc ou hs256)")
	}

	cfg.Auth = a
	return nil
}

func loadSync(cfg *Config) error {
	var err error
	s := SyncConfig{}

	if s.Enabled, err = parseBoolEnv("SYNC_ENABLED", true); err != nil {
		return err
	}
	if s.Interval, err = parseDurationEnv("SYNC_INTERVAL", time.Hour); err != nil {
		return err
	}
	if s.CountCheckInterval, err = parseDurationEnv("SYNC_COUNT_CHECK_INTERVAL", 5*time.Minute); err != nil {
		return err
	}
	if s.LockTTL, err = parseDurationEnv("SYNC_LOCK_TTL", 10*time.Minute); err != nil {
		return err
	}
	if s.CatalogCacheTTL, err = parseDurationEnv("CATALOG_CACHE_TTL", 5*time.Minute); err != nil {
		return err
	}

	s.PageSize, err = parseIntEnv("SYNC_PAGE_SIZE", 50)
	if err != nil || s.PageSize <= 0 || s.PageSize > 100 {
		return errors.New("SYNC_PAGE_SIZE deve estar entre 1 e 100")
	}

	cfg.Sync = s
	return nil
}

func normalizeDomain(raw string) string {
	d := strings.TrimSpace(raw)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	return strings.TrimSuffix(d, "/")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil || dur <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func parseIntEnv(key string, def int) (int, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.New(key + " inválido")
	}
	return b, nil
}
