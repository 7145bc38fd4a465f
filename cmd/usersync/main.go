package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcloud/autenticador/internal/auth"
	"github.com/mcloud/autenticador/internal/auth0"
	"github.com/mcloud/autenticador/internal/config"
	"github.com/mcloud/autenticador/internal/db"
	"github.com/mcloud/autenticador/internal/user"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "migrate":
		if err := runMigrate(args); err != nil {
			log.Fatal().Err(err).Msg("falha na migração")
		}
	case "token":
		if err := runToken(args); err != nil {
			log.Fatal().Err(err).Msg("falha ao emitir token")
		}
	case "user":
		if len(args) != 1 {
			usage()
			os.Exit(1)
		}
		if err := withService(ctx, func(svc *user.Service, _ *redis.Client) error {
			return runUser(ctx, svc, args[0])
		}); err != nil {
			log.Fatal().Err(err).Msg("falha ao sincronizar usuário")
		}
	case "all":
		if err := withService(ctx, func(svc *user.Service, rdb *redis.Client) error {
			return runAll(ctx, svc, rdb)
		}); err != nil {
			log.Fatal().Err(err).Msg("falha na sincronização em lote")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usersync CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  usersync user 'auth0|123'")
	fmt.Fprintln(os.Stderr, "  usersync all")
	fmt.Fprintln(os.Stderr, "  usersync migrate up|down|version")
	fmt.Fprintln(os.Stderr, "  usersync token --sub 'auth0|123' --roles admin,viewer --permissions read:users")
}

func withService(ctx context.Context, fn func(*user.Service, *redis.Client) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	remote, err := auth0.New(auth0.Config{
		Domain:       cfg.Auth0.Domain,
		ClientID:     cfg.Auth0.MgmtClientID,
		ClientSecret: cfg.Auth0.MgmtClientSecret,
		Audience:     cfg.Auth0.MgmtAudience,
		Timeout:      cfg.Auth0.HTTPTimeout,
	})
	if err != nil {
		return fmt.Errorf("auth0: %w", err)
	}

	svc := user.NewService(user.NewRepository(pool), remote, user.Options{
		PageSize: cfg.Sync.PageSize,
		Cache:    user.NewCatalogCache(rdb, cfg.Sync.CatalogCacheTTL),
		Logger:   log.Logger,
	})
	return fn(svc, rdb)
}

func runUser(ctx context.Context, svc *user.Service, id string) error {
	u, err := svc.Sync(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(u)
}

func runAll(ctx context.Context, svc *user.Service, rdb *redis.Client) error {
	refresher := user.NewRefresher(svc, user.NewRedisLocker(rdb, 0), user.RefresherConfig{}, log.Logger)
	stats, ran := refresher.RunOnce(ctx, "cli")
	if !ran {
		return errors.New("sincronização em lote já em andamento em outra instância")
	}
	return printJSON(stats)
}

func runMigrate(args []string) error {
	if len(args) != 1 {
		return errors.New("informe up, down ou version")
	}

	_ = godotenv.Load()
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		return errors.New("defina DB_DSN")
	}

	switch args[0] {
	case "up":
		if err := db.MigrateUp(dsn); err != nil {
			return err
		}
		log.Info().Msg("migrações aplicadas")
	case "down":
		if err := db.MigrateDown(dsn); err != nil {
			return err
		}
		log.Info().Msg("última migração desfeita")
	case "version":
		version, dirty, err := db.MigrateVersion(dsn)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
	default:
		return fmt.Errorf("subcomando de migração desconhecido: %s", args[0])
	}
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		subject     string
		email       string
		roles       string
		permissions string
	)
	fs.StringVar(&subject, "sub", "", "subject do token (ex.: auth0|123)")
	fs.StringVar(&email, "email", "", "email opcional")
	fs.StringVar(&roles, "roles", "", "papéis separados por vírgula")
	fs.StringVar(&permissions, "permissions", "", "permissões separadas por vírgula")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(subject) == "" {
		return errors.New("--sub é obrigatório")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Auth.Mode != config.AuthModeHS256 {
		return errors.New("token local exige AUTH_MODE=hs256")
	}

	claims := auth.Claims{
		cfg.Auth0.RolesClaim:  splitCSV(roles),
		auth.PermissionsClaim: splitCSV(permissions),
	}
	if email != "" {
		claims["email"] = email
	}

	manager := auth.NewJWTManager(cfg.Auth.HS256Secret, cfg.Auth.HS256Issuer, cfg.Auth.HS256TokenTTL)
	token, err := manager.GenerateToken(strings.TrimSpace(subject), claims)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func splitCSV(raw string) []string {
	out := []string{}
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
