// Command nntp-relay replicates articles from a source NNTP server to a
// destination NNTP server, resuming from a durable per-group cursor on
// every run (spec.md §1-2). Its CLI is flag-based per SPEC_FULL.md §6.2:
// one positional argument (a config file path) plus -version.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-while/nntp-relay/internal/config"
	"github.com/go-while/nntp-relay/internal/filters"
	"github.com/go-while/nntp-relay/internal/mbox"
	"github.com/go-while/nntp-relay/internal/metrics"
	"github.com/go-while/nntp-relay/internal/nntp"
	"github.com/go-while/nntp-relay/internal/orchestrator"
	"github.com/go-while/nntp-relay/internal/pidlock"
	"github.com/go-while/nntp-relay/internal/progressdb"
	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// startupTimeout bounds connection setup (spec.md §5 "startup alarm, 120s").
const startupTimeout = 120 * time.Second

// defaultProcessingTimeout bounds the copy phase (spec.md §5 "processing alarm,
// TIMEOUT"). Overridable via NNTP_RELAY_TIMEOUT for long catch-up runs.
const defaultProcessingTimeout = 86400 * time.Second

var appVersion = "-unset-"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <config.ini>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(appVersion)
		return
	}

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("nntp-relay %s starting", appVersion)

	if err := run(flag.Arg(0)); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lock, err := pidlock.Acquire(cfg.PidFile)
	if err != nil {
		return fmt.Errorf("already running: %w", err)
	}
	defer lock.Release()

	lists, err := filters.Load(cfg.FilterList, cfg.GlobalFilterList, cfg.ForcedList, cfg.DoneList)
	if err != nil {
		return fmt.Errorf("load filter lists: %w", err)
	}

	store, err := progressdb.Open(cfg.NewsDB, cfg.ShouldMarkArticles, 0)
	if err != nil {
		return fmt.Errorf("open progress store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("progress store close: %v", err)
		}
	}()

	var metricsServer *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.New()
		go func() {
			if err := metricsServer.ListenAndServe(cfg.MetricsAddr); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startupCtx, cancelStartup := context.WithTimeout(ctx, startupTimeout)
	defer cancelStartup()
	if err := probeConnect(startupCtx, &cfg.From, &cfg.To, cfg.Mode); err != nil {
		return fmt.Errorf("startup probe: %w", err)
	}

	processingTimeout := defaultProcessingTimeout
	if v := os.Getenv("NNTP_RELAY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			processingTimeout = d
		}
	}
	runCtx, cancelRun := context.WithTimeout(ctx, processingTimeout)
	defer cancelRun()

	orchCfg := orchestrator.Config{
		SrcCfg: &nntp.RelayConfig{
			Host: cfg.From.Host, Port: cfg.From.Port, SSL: cfg.From.SSL,
			Username: cfg.From.Username, Password: cfg.From.Password,
			ConnectTimeout: config.DefaultConnectTimeout,
			ReaderMode:     cfg.Mode == relaymodel.ModeReader || cfg.Mode == relaymodel.ModeReader1,
		},
		Mode:          cfg.Mode,
		Workers:       cfg.Workers,
		MaxArticles:   cfg.MaxArticles,
		DoneListPath:  cfg.DoneList,
		BadGroupsPath: cfg.BadGroupsList,
		SalvageDir:    ".",
		Filters:       lists,
		UseIgnore:     cfg.UseIgnore,
		Metrics:       metricsServer,
	}
	if cfg.Mode != relaymodel.ModeMbox {
		orchCfg.DestCfg = &nntp.RelayConfig{
			Host: cfg.To.Host, Port: cfg.To.Port, SSL: cfg.To.SSL,
			Username: cfg.To.Username, Password: cfg.To.Password,
			ConnectTimeout: config.DefaultConnectTimeout,
			ReaderMode:     cfg.Mode == relaymodel.ModePost,
		}
	} else {
		orchCfg.Mbox = func(group string) error {
			return mbox.Audit(group, cfg.MboxDir+"/"+group)
		}
	}

	stats, err := orchestrator.Run(runCtx, store, orchCfg)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	log.Printf("done: moved=%d dup=%d unwanted=%d retry=%d notfound=%d seenindb=%d error=%d",
		stats.Moved, stats.Dup, stats.Spam, stats.Retry, stats.Notfound, stats.SeenInDB, stats.Other)
	return nil
}

// probeConnect performs a throwaway dial against both endpoints during the
// startup window so a misconfigured host/port/credential fails fast, before
// the worker pool and pipeline commit to the processing timeout.
func probeConnect(ctx context.Context, from, to *config.Server, mode relaymodel.Mode) error {
	done := make(chan error, 1)
	go func() {
		srcConn, err := nntp.DialRelay(&nntp.RelayConfig{
			Host: from.Host, Port: from.Port, SSL: from.SSL,
			Username: from.Username, Password: from.Password,
			ConnectTimeout: config.DefaultConnectTimeout,
		})
		if err != nil {
			done <- fmt.Errorf("source: %w", err)
			return
		}
		srcConn.Close()

		if mode != relaymodel.ModeMbox {
			destConn, err := nntp.DialRelay(&nntp.RelayConfig{
				Host: to.Host, Port: to.Port, SSL: to.SSL,
				Username: to.Username, Password: to.Password,
				ConnectTimeout: config.DefaultConnectTimeout,
				ReaderMode:     mode == relaymodel.ModePost,
			})
			if err != nil {
				done <- fmt.Errorf("destination: %w", err)
				return
			}
			destConn.Close()
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
