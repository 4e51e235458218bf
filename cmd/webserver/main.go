// Command webserver starts an embedded HTTP host from a JSON config file (or
// built-in defaults) and serves until interrupted.
//
// Startup sequence:
//  1. Parse the config path flag.
//  2. Load configuration (JSON file or defaults).
//  3. Initialise logging and metrics.
//  4. Build the Host (routes, sessions, file server, mime table).
//  5. Start one Listener per web.listen[] entry.
//  6. Block until OS signals SIGINT or SIGTERM, then perform a clean
//     shutdown: stop accepting connections, drain in-flight requests, stop
//     the session sweep timer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/embedweb/ioweb/config"
	"github.com/embedweb/ioweb/logger"
	"github.com/embedweb/ioweb/metrics"
	"github.com/embedweb/ioweb/web"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file (optional; uses defaults if omitted)")
	workers := flag.Int("workers", 0, "Connections served concurrently per listener (0 uses web.limits.connections)")
	flag.Parse()

	log := logger.New(logger.LevelInfo)
	log.Info("webserver starting up")

	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			os.Exit(1)
		}
		log.Infof("configuration loaded from %q", *configFile)
	} else {
		cfg = config.DefaultConfig()
		log.Info("using default configuration")
	}

	m := metrics.NewMetrics()
	host, err := web.NewHost(cfg, log, m)
	if err != nil {
		log.Errorf("failed to build host: %v", err)
		os.Exit(1)
	}

	listeners, err := web.NewListeners(host, cfg)
	if err != nil {
		log.Errorf("failed to configure listeners: %v", err)
		os.Exit(1)
	}
	if len(listeners) == 0 {
		log.Error("no web.listen entries configured; nothing to serve")
		os.Exit(1)
	}

	workerCount := *workers
	if workerCount <= 0 {
		workerCount = cfg.Web.Limits.Connections
	}
	if workerCount <= 0 {
		workerCount = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, l := range listeners {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Listen(ctx, workerCount); err != nil {
				log.Errorf("listener error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Println() // newline after ^C
	log.Infof("received signal %s; shutting down", sig)

	cancel()
	wg.Wait()
	host.Sessions.Stop()

	total, success, failed := m.Snapshot()
	log.Infof("final metrics - total: %d | success: %d | failed: %d | rps: %.1f",
		total, success, failed, m.RequestsPerSecond())
	log.Info("webserver shut down cleanly")
}
