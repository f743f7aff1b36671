// Command whisperd runs the whisper web application: registration, local
// and OAuth login, and the shared secrets board, over a sqlite database.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/whisperlabs/whisper"
	whgorm "github.com/whisperlabs/whisper/stores/gorm"
)

type Config struct {
	Addr            string        `env:"WHISPER_ADDR" envDefault:":3000"`
	DBPath          string        `env:"WHISPER_DB_PATH" envDefault:"whisper.db"`
	SessionLifetime time.Duration `env:"WHISPER_SESSION_LIFETIME" envDefault:"24h"`
	BcryptCost      int           `env:"WHISPER_BCRYPT_COST" envDefault:"10"`
	JWTSecretKey    string        `env:"WHISPER_JWT_SECRET_KEY"`

	GoogleClientID     string `env:"OAUTH2_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"OAUTH2_GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"OAUTH2_GOOGLE_CALLBACK_URL"`

	GithubClientID     string `env:"OAUTH2_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"OAUTH2_GITHUB_CLIENT_SECRET"`
	GithubCallbackURL  string `env:"OAUTH2_GITHUB_CALLBACK_URL"`

	LoginAttempts int           `env:"WHISPER_LOGIN_ATTEMPTS" envDefault:"10"`
	LoginWindow   time.Duration `env:"WHISPER_LOGIN_WINDOW" envDefault:"1m"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := whgorm.AutoMigrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	store := whgorm.NewUserStore(db)
	app := &whisper.App{
		AppName:                 "Whisper",
		Store:                   store,
		JWTSecretKey:            cfg.JWTSecretKey,
		SessionTimeoutInSeconds: int(cfg.SessionLifetime.Seconds()),
	}
	app.EnsureDefaults()
	app.Local.Hasher = &whisper.PasswordHasher{Cost: cfg.BcryptCost}
	app.Local.RateLimiter = whisper.NewWindowLimiter(cfg.LoginAttempts, cfg.LoginWindow)

	if cfg.GoogleClientID != "" {
		app.UseGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
	}
	if cfg.GithubClientID != "" {
		app.UseGithub(cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubCallbackURL)
	}

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: app.Handler(),
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
