// Package orchestrator wires the Server Orchestrator (spec.md §4.5): it
// enumerates the destination's catalogue, applies filter precedence,
// spawns the worker pool, and runs the Group Pipeline across every accepted
// group sequentially. Concurrency lives entirely inside the worker pool —
// one pipeline, W shared workers — unlike the teacher's `runTransfer`, which
// launches one goroutine per newsgroup behind a `maxThreadsChan` semaphore
// (spec.md's concurrency model puts the fan-out at the article level, not
// the group level, so no semaphore is used: the configured worker count
// alone bounds concurrency).
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-while/nntp-relay/internal/filters"
	"github.com/go-while/nntp-relay/internal/metrics"
	"github.com/go-while/nntp-relay/internal/nntp"
	"github.com/go-while/nntp-relay/internal/pipeline"
	"github.com/go-while/nntp-relay/internal/progressdb"
	"github.com/go-while/nntp-relay/internal/relaymodel"
	"github.com/go-while/nntp-relay/internal/worker"
)

// Config is everything the orchestrator needs for one run, assembled by
// cmd/nntp-relay from an internal/config.Config.
type Config struct {
	SrcCfg  *nntp.RelayConfig
	DestCfg *nntp.RelayConfig // zero value when Mode == relaymodel.ModeMbox

	Mode        relaymodel.Mode
	Workers     int
	MaxArticles int64

	DoneListPath  string
	BadGroupsPath string
	SalvageDir    string

	Filters   *filters.Lists
	UseIgnore bool

	Mbox pipeline.MboxHandler

	Metrics *metrics.Server // nil disables metrics recording
}

// Run enumerates the destination's catalogue, filters it, and drives every
// accepted group through the Group Pipeline with a shared worker pool. It
// returns the aggregate Stats across every processed group, and the first
// fatal error (a worker pool failure, a catalogue LIST failure, or ctx
// cancellation) if any.
func Run(ctx context.Context, store *progressdb.DB, cfg Config) (relaymodel.Stats, error) {
	var total relaymodel.Stats

	// The catalogue comes from the destination; mbox mode has none, so it
	// falls back to the source.
	catalogueCfg := cfg.DestCfg
	if catalogueCfg == nil {
		catalogueCfg = cfg.SrcCfg
	}
	catalogueConn, err := nntp.DialRelay(catalogueCfg)
	if err != nil {
		return total, fmt.Errorf("orchestrator: dial catalogue server: %w", err)
	}
	defer catalogueConn.Close()

	entries, err := catalogueConn.List()
	if err != nil {
		return total, fmt.Errorf("orchestrator: LIST: %w", err)
	}

	groups := make([]string, 0, len(entries))
	for _, e := range entries {
		if cfg.Filters == nil || cfg.Filters.Accept(e.Group, cfg.UseIgnore) {
			groups = append(groups, e.Group)
		}
	}
	log.Printf("[ORCHESTRATOR] catalogue: %d groups, %d accepted after filtering", len(entries), len(groups))

	requests := make(chan relaymodel.FetchRequest, 10000)
	outcomes := make(chan relaymodel.FetchOutcome, 10000)

	poolCtx, cancelPool := context.WithCancel(ctx)
	defer cancelPool()

	var pool *worker.Pool
	var poolErrors <-chan error
	var workerErr error // first error any worker exited with
	if cfg.Mode != relaymodel.ModeMbox {
		salvage := newSalvageWriter(cfg.SalvageDir)
		pool = worker.NewPool(cfg.Workers, cfg.Mode, cfg.SrcCfg, cfg.DestCfg, requests, outcomes, salvage)
		pool.Run(poolCtx)
		poolErrors = pool.Errors
	}

	sourceForGroups, err := nntp.DialRelay(cfg.SrcCfg)
	if err != nil {
		return total, fmt.Errorf("orchestrator: dial pipeline source: %w", err)
	}
	defer sourceForGroups.Close()

	p := &pipeline.Pipeline{
		Source:        sourceForGroups,
		Store:         store,
		Requests:      requests,
		Outcomes:      outcomes,
		Mode:          cfg.Mode,
		MaxArticles:   cfg.MaxArticles,
		DoneListPath:  cfg.DoneListPath,
		BadGroupsPath: cfg.BadGroupsPath,
		Mbox:          cfg.Mbox,
	}

	for _, group := range groups {
		select {
		case <-ctx.Done():
			log.Printf("[ORCHESTRATOR] context cancelled, stopping before group %s", group)
			return total, ctx.Err()
		default:
		}

		// Surface worker-pool failures as soon as they happen, rather than
		// only after every remaining group has already been dispatched
		// against a pool that may have no capacity left.
		if err := drainPoolErrors(poolErrors, &workerErr); err != nil {
			return total, fmt.Errorf("orchestrator: worker pool: %w", err)
		}

		start := time.Now()
		p.Stats = relaymodel.Stats{}
		ok, err := p.ProcessGroup(group)
		if err != nil {
			return total, fmt.Errorf("orchestrator: group %s: %w", group, err)
		}
		if ok {
			log.Printf("[ORCHESTRATOR] %s: moved=%d dup=%d unwanted=%d retry=%d notfound=%d seenindb=%d error=%d (%v)",
				group, p.Stats.Moved, p.Stats.Dup, p.Stats.Spam, p.Stats.Retry, p.Stats.Notfound, p.Stats.SeenInDB, p.Stats.Other, time.Since(start))
		}

		total.Moved += p.Stats.Moved
		total.Dup += p.Stats.Dup
		total.Spam += p.Stats.Spam
		total.Retry += p.Stats.Retry
		total.Notfound += p.Stats.Notfound
		total.SeenInDB += p.Stats.SeenInDB
		total.Other += p.Stats.Other

		if cfg.Metrics != nil {
			cfg.Metrics.RecordGroup(p.Stats)
		}
	}

	if pool != nil {
		cancelPool()
		close(requests)
		pool.Wait()
		// Every worker has exited, so Errors is closed: collect what is left
		// and fail the run if any worker exited with an error.
		for err := range poolErrors {
			log.Printf("[ORCHESTRATOR] worker error: %v", err)
			if workerErr == nil {
				workerErr = err
			}
		}
		if workerErr != nil {
			return total, fmt.Errorf("orchestrator: worker pool: %w", workerErr)
		}
	}

	return total, nil
}

// drainPoolErrors non-blockingly consumes every error currently queued on
// errs, logging each one and keeping the first in *first. It returns a non-nil error only once errs has
// been closed — meaning every worker in the pool has exited and no
// capacity remains — which is the one pool condition genuinely fatal to
// the orchestrator (spec.md §4.3: a worker's own fatal condition ends that
// worker, not its siblings; only the pool as a whole running dry blocks
// the pipeline's sends forever). A nil errs (mbox mode, no pool) is a
// permanently-empty channel, so the select's default always fires.
func drainPoolErrors(errs <-chan error, first *error) error {
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return fmt.Errorf("all workers exited, no capacity remains")
			}
			log.Printf("[ORCHESTRATOR] worker error: %v", err)
			if *first == nil {
				*first = err
			}
		default:
			return nil
		}
	}
}
