package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/go-while/nntp-relay/internal/nntp"
	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// idleBackoff is the non-blocking pull loop's sleep when the request
// channel is empty (spec.md §4.3, §8 property 9: must be >= ~50ms).
const idleBackoff = 100 * time.Millisecond

// Worker is a long-lived consumer owning one source and one destination
// connection for its entire lifetime (spec.md §3 Ownership — never
// pool-shared).
type Worker struct {
	ID       int
	Mode     relaymodel.Mode
	SrcCfg   *nntp.RelayConfig
	DestCfg  *nntp.RelayConfig
	Requests <-chan relaymodel.FetchRequest
	Outcomes chan<- relaymodel.FetchOutcome
	Running  *atomic.Int64
	Salvage  SalvageWriter

	// OnExit, if set, is called exactly once after this worker has
	// decremented Running, with the worker's own exit error (nil on a
	// clean exit) and the post-decrement value of Running. The Pool uses
	// it to detect "last worker out" without deriving a shared cancellable
	// context the way errgroup.WithContext would (spec.md §4.3 exit
	// conditions are per-worker; a sibling's failure is not one of them).
	OnExit func(err error, remaining int64)

	srcBreaker  *gobreaker.CircuitBreaker
	destBreaker *gobreaker.CircuitBreaker

	currentGroup string
}

// newBreaker builds a per-host circuit breaker so a worker pool hammering a
// host that just started refusing connections backs off collectively.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})
}

func dialWithBreaker(breaker *gobreaker.CircuitBreaker, cfg *nntp.RelayConfig) (*nntp.RelayConn, error) {
	result, err := breaker.Execute(func() (any, error) {
		var conn *nntp.RelayConn
		op := func() error {
			c, dialErr := nntp.DialRelay(cfg)
			if dialErr != nil {
				return dialErr
			}
			conn = c
			return nil
		}
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 2 * time.Minute
		if retryErr := backoff.Retry(op, b); retryErr != nil {
			return nil, retryErr
		}
		return conn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("worker: dial %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return result.(*nntp.RelayConn), nil
}

// Run drives the worker's non-blocking pull loop until ctx is cancelled (the
// engine itself shutting down — never a sibling worker's failure), the
// request channel is closed, or a connection fails fatally. It decrements
// Running exactly once on exit and invokes OnExit with its own error and the
// post-decrement counter value, matching spec.md §4.3's "the worker
// decrements the shared running-worker counter; the last worker to exit
// drains remaining requests and outcomes".
func (w *Worker) Run(ctx context.Context) {
	err := w.run(ctx)
	remaining := w.Running.Add(-1)
	if w.OnExit != nil {
		w.OnExit(err, remaining)
	}
}

func (w *Worker) run(ctx context.Context) error {
	if w.srcBreaker == nil {
		w.srcBreaker = newBreaker(fmt.Sprintf("src:%s", w.SrcCfg.Host))
	}
	if w.destBreaker == nil {
		w.destBreaker = newBreaker(fmt.Sprintf("dest:%s", w.DestCfg.Host))
	}

	src, err := dialWithBreaker(w.srcBreaker, w.SrcCfg)
	if err != nil {
		return fmt.Errorf("worker %d: connect source: %w", w.ID, err)
	}
	defer src.Close()

	dest, err := dialWithBreaker(w.destBreaker, w.DestCfg)
	if err != nil {
		return fmt.Errorf("worker %d: connect destination: %w", w.ID, err)
	}
	defer dest.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-w.Requests:
			if !ok {
				return nil
			}
			if err := w.handle(src, dest, req); err != nil {
				return err
			}
		default:
			time.Sleep(idleBackoff)
		}
	}
}

func (w *Worker) handle(src, dest *nntp.RelayConn, req relaymodel.FetchRequest) error {
	if req.Group != w.currentGroup {
		if _, _, _, err := src.Group(req.Group); err != nil {
			log.Printf("[WORKER %d] GROUP %s failed on source: %v", w.ID, req.Group, err)
			w.emit(relaymodel.OutcomeError, req)
			return fmt.Errorf("worker %d: GROUP %s: %w", w.ID, req.Group, nntp.ErrBroken)
		}
		w.currentGroup = req.Group
	}

	tag, err := copyArticle(w.Mode, src, dest, req.Group, req.ArticleNo, req.MessageID, w.Salvage)
	w.emit(tag, req)
	if errors.Is(err, nntp.ErrBroken) {
		return err
	}
	return nil
}

func (w *Worker) emit(tag relaymodel.OutcomeTag, req relaymodel.FetchRequest) {
	w.Outcomes <- relaymodel.FetchOutcome{
		Tag:       tag,
		MessageID: req.MessageID,
		Group:     req.Group,
		ArticleNo: req.ArticleNo,
	}
}
