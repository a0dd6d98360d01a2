package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/blockberries/distledger/engine"
	"github.com/blockberries/distledger/naming"
	"github.com/blockberries/distledger/rpc"
	"github.com/blockberries/distledger/types"
	"github.com/blockberries/distledger/wal"
)

var log = logging.Logger("ledgerd")

var subsystems = []string{"ledgerd", "engine", "wal", "rpc", "naming"}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

type options struct {
	qualifier      string
	replicas       string
	service        string
	listen         string
	advertise      string
	namingAddr     string
	brokerBalance  int64
	gossipInterval time.Duration
	walDir         string
	walSync        bool
}

func main() {
	var o options
	flag.StringVar(&o.qualifier, "qualifier", getEnv("QUALIFIER", "A"), "replica qualifier")
	flag.StringVar(&o.replicas, "replicas", getEnv("REPLICAS", "A,B,C"), "comma-separated qualifiers of every replica")
	flag.StringVar(&o.service, "service", getEnv("SERVICE_NAME", "DistLedger"), "directory service name")
	flag.StringVar(&o.listen, "listen", getEnv("LISTEN_ADDR", ":2001"), "HTTP listen address")
	flag.StringVar(&o.advertise, "advertise", getEnv("ADVERTISE_ADDR", ""), "address registered with the naming server (default localhost:<port>)")
	flag.StringVar(&o.namingAddr, "naming", getEnv("NAMING_ADDR", "localhost:5001"), "naming server address")
	flag.Int64Var(&o.brokerBalance, "broker-balance", 1000, "initial broker balance")
	flag.DurationVar(&o.gossipInterval, "gossip-interval", 5*time.Second, "period of automatic gossip, 0 to disable")
	flag.StringVar(&o.walDir, "wal-dir", getEnv("WAL_DIR", ""), "WAL directory (default data/<qualifier>)")
	flag.BoolVar(&o.walSync, "wal-sync", true, "fsync every WAL record")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.Parse()

	for _, name := range subsystems {
		if err := logging.SetLogLevel(name, *logLevel); err != nil {
			log.Fatalf("bad log level %q: %v", *logLevel, err)
		}
	}

	if err := run(o); err != nil {
		log.Fatal(err)
	}
}

func run(o options) error {
	replicas, err := types.ParseReplicaSet(o.replicas)
	if err != nil {
		return err
	}

	cfg := engine.DefaultConfig()
	cfg.Qualifier = o.qualifier
	cfg.Replicas = replicas
	cfg.ServiceName = o.service
	cfg.BrokerBalance = o.brokerBalance
	cfg.GossipInterval = o.gossipInterval
	cfg.WALPath = o.walDir
	if cfg.WALPath == "" {
		cfg.WALPath = filepath.Join("data", o.qualifier)
	}
	cfg.WALSync = o.walSync

	w, err := wal.NewFileWAL(cfg.WALPath)
	if err != nil {
		return err
	}
	directory := naming.NewClient(o.namingAddr)

	e, err := engine.NewEngine(cfg, w, rpc.NewClient(), directory)
	if err != nil {
		return err
	}
	if err := e.Start(); err != nil {
		return err
	}
	defer func() {
		if err := e.Stop(); err != nil {
			log.Warnw("engine stop failed", "err", err)
		}
	}()

	ln, err := net.Listen("tcp", o.listen)
	if err != nil {
		return err
	}
	advertise := o.advertise
	if advertise == "" {
		advertise = defaultAdvertise(ln.Addr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := directory.Register(ctx, cfg.ServiceName, cfg.Qualifier, advertise); err != nil {
		ln.Close()
		return fmt.Errorf("failed to register with naming server: %w", err)
	}

	srv := &http.Server{
		Handler:           rpc.NewServer(e).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Infow("replica listening", "qualifier", cfg.Qualifier, "addr", ln.Addr().String(),
			"advertise", advertise, "wal", cfg.WALPath)
		errc <- srv.Serve(ln)
	}()

	select {
	case err = <-errc:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if derr := directory.Delete(shutdownCtx, cfg.ServiceName, cfg.Qualifier, advertise); derr != nil {
		log.Warnw("failed to remove registration", "err", derr)
	}
	// blocked balance reads hold connections open; drop them after the grace period
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		srv.Close()
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func defaultAdvertise(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	return net.JoinHostPort("localhost", fmt.Sprint(tcp.Port))
}
