package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	logging "github.com/ipfs/go-log"

	"github.com/blockberries/distledger/client"
	"github.com/blockberries/distledger/naming"
	"github.com/blockberries/distledger/types"
)

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func main() {
	namingAddr := flag.String("naming", getEnv("NAMING_ADDR", "localhost:5001"), "naming server address")
	service := flag.String("service", getEnv("SERVICE_NAME", "DistLedger"), "directory service name")
	replicaList := flag.String("replicas", getEnv("REPLICAS", "A,B,C"), "comma-separated qualifiers of every replica")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "error"), "log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [command args...]\n\n", os.Args[0])
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logging.SetLogLevel("client", *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "bad log level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}

	replicas, err := types.ParseReplicaSet(*replicaList)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	dir := naming.NewClient(*namingAddr)
	sh := &shell{
		user:     client.NewUserService(dir, *service, replicas),
		admin:    client.NewAdminService(dir, *service),
		replicas: replicas,
		out:      os.Stdout,
	}
	ctx := context.Background()

	// one-shot mode
	if flag.NArg() > 0 {
		sh.exec(ctx, flag.Args())
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(sh.out, "> ")
	for scanner.Scan() {
		if quit := sh.exec(ctx, strings.Fields(scanner.Text())); quit {
			return
		}
		fmt.Fprint(sh.out, "> ")
	}
}
