package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/blockberries/distledger/naming"
)

var log = logging.Logger("namingd")

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func main() {
	listen := flag.String("listen", getEnv("LISTEN_ADDR", ":5001"), "HTTP listen address")
	dbPath := flag.String("db", getEnv("NAMING_DB", "data/naming.db"), "registry database file")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.Parse()

	for _, name := range []string{"namingd", "naming"} {
		if err := logging.SetLogLevel(name, *logLevel); err != nil {
			log.Fatalf("bad log level %q: %v", *logLevel, err)
		}
	}

	if err := run(*listen, *dbPath); err != nil {
		log.Fatal(err)
	}
}

func run(listen, dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return err
	}
	registry, err := naming.OpenRegistry(dbPath)
	if err != nil {
		return err
	}
	defer registry.Close()

	srv := &http.Server{
		Addr:              listen,
		Handler:           naming.NewServer(registry).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Infow("naming server listening", "addr", listen, "db", dbPath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("naming server stopped")
	return nil
}
