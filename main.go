package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	debugpkg "runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/hako/durafmt"
)

func main() {
	// Top-level panic handler: capture any unexpected panic with a stack
	// trace so operators can inspect it.
	defer func() {
		if r := recover(); r != nil {
			if f, err := os.OpenFile("panic.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				ts := time.Now().UTC().Format(time.RFC3339)
				fmt.Fprintf(f, "[%s] panic: %v\n%s\n\n", ts, r, debugpkg.Stack())
			}
		}
	}()

	configFlag := flag.String("config", "", "path to generator.toml")
	proxyFlag := flag.Bool("proxy", false, "force proxy mode")
	networkFlag := flag.String("network", "", "bitcoin network: mainnet, testnet, signet, regtest")
	stdoutLogFlag := flag.Bool("stdout", false, "mirror logs to stdout")
	logLevelFlag := flag.String("log-level", "", "override log level (debug/info/warn/error)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fatal("config", err)
	}
	if *proxyFlag {
		cfg.Proxy = true
	}
	if *networkFlag != "" {
		cfg.Network = strings.ToLower(*networkFlag)
	}
	if err := validateConfig(cfg); err != nil {
		fatal("config", err)
	}

	logLevelName := cfg.LogLevel
	if *logLevelFlag != "" {
		logLevelName = *logLevelFlag
	}
	level, err := parseLogLevel(logLevelName)
	if err != nil {
		fatal("log level", err)
	}
	setLogLevel(level)
	debugLogging = level <= logLevelDebug

	if err := configureFileLogging(cfg, *stdoutLogFlag); err != nil {
		fatal("log file", err)
	}

	SetChainParams(cfg.Network)

	mode := "server"
	if cfg.Proxy {
		mode = "proxy"
	}
	logger.Info("starting generator",
		"mode", mode,
		"network", cfg.Network,
		"control_socket", controlSocketPath(cfg),
		"sha256", sha256ImplementationName(),
	)

	metrics := newGenMetrics()
	notifier := newUnixNotifier(stratifierSocketPath(cfg))

	var ret int
	if cfg.Proxy {
		ret = proxyMode(ctx, cfg, notifier, metrics)
	} else {
		ret = serverMode(ctx, cfg, notifier, metrics)
	}

	snap := metrics.snapshot()
	uptime := durafmt.Parse(time.Since(metrics.startTime).Round(time.Second)).LimitFirstN(2)
	logger.Info("generator exiting",
		"code", ret,
		"uptime", uptime,
		"notifies", snap.NotifiesReceived,
		"shares_submitted", snap.SharesSubmitted,
		"shares_accepted", snap.SharesAccepted,
		"reconnects", snap.Reconnects,
		"blocks_submitted", snap.BlocksSubmitted,
	)

	if ret != 0 {
		// Tell the supervisor we are going down before the nonzero exit.
		notifier.send(msgShutdown)
		time.Sleep(time.Second)
	}
	logger.Stop()
	os.Exit(ret)
}
