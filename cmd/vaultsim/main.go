// Command vaultsim is a development credential vault implementing the REST
// boundary credkeeper's broker talks to: JWT login, platform registrations
// with encrypted passwords, and the duplicate-conflict contract.
//
// Usage:
//
//	VAULTSIM_SECRET=... vaultsim -db vaultsim.db -addr :8091
//	VAULTSIM_SECRET=... vaultsim -db vaultsim.db -adduser alice:s3cret-pass
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/credkeeper/dbopen"
	"github.com/hazyhaar/credkeeper/netsafe"
	"github.com/hazyhaar/credkeeper/shield"
)

func main() {
	dbPath := flag.String("db", "vaultsim.db", "path to SQLite database")
	addr := flag.String("addr", "127.0.0.1:8091", "listen address")
	addUser := flag.String("adduser", "", "create a user as user:password and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *dbPath, *addr, *addUser); err != nil {
		logger.Error("vaultsim: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, dbPath, addr, addUser string) error {
	secret := []byte(os.Getenv("VAULTSIM_SECRET"))
	if err := netsafe.ValidateSecret(secret); err != nil {
		return fmt.Errorf("VAULTSIM_SECRET: %w", err)
	}

	db, err := dbopen.Open(dbPath, dbopen.WithSchema(schema), dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// The session secret doubles as the storage key through a digest, so a
	// single env var configures the whole simulator.
	key := sha256.Sum256(secret)
	store, err := newVaultStore(db, key[:])
	if err != nil {
		return err
	}

	if addUser != "" {
		username, password, ok := strings.Cut(addUser, ":")
		if !ok || username == "" || len(password) < minPasswordLen {
			return fmt.Errorf("adduser: expected user:password with a password of at least %d characters", minPasswordLen)
		}
		if err := store.createUser(ctx, username, password); err != nil {
			return fmt.Errorf("adduser: %w", err)
		}
		logger.Info("vaultsim: user created", "username", username)
		return nil
	}

	rl := shield.NewRateLimiter(db)
	done := make(chan struct{})
	defer close(done)
	rl.StartReloader(done)

	s := &server{store: store, secret: secret, logger: logger}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router(rl),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info("vaultsim: listening", "addr", addr, "db", dbPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
