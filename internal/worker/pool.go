package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/go-while/nntp-relay/internal/nntp"
	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// Pool owns the configured number of Workers sharing one request channel
// and one outcome channel (spec.md §5). Each worker runs against the
// context passed to Run; the pool derives no context of its own that a
// sibling's error could cancel, so one worker's fatal condition never kills
// another's (spec.md §4.3 exit conditions: connection I/O error,
// copyArticle "broken", or engine shutdown; a sibling's failure is none of
// those). This mirrors the teacher's own idiom for "N independent workers,
// one failure shouldn't kill the others" (cmd/nntp-transfer/main.go's
// runTransfer: a WaitGroup plus a semaphore channel, errors logged
// per-goroutine, no cross-goroutine cancellation) rather than
// errgroup.WithContext, which the teacher never uses for this pattern.
type Pool struct {
	Requests chan relaymodel.FetchRequest
	Outcomes chan relaymodel.FetchOutcome
	Running  atomic.Int64

	// Errors receives one entry per worker that exits with a non-nil
	// error, as soon as it happens — buffered to the worker count so no
	// worker ever blocks reporting its own failure. It is closed once the
	// last worker has decremented Running to zero, after drain() has run,
	// so a receive that observes closure also observes a fully-drained
	// pool.
	Errors chan error

	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool builds n workers against the given request/outcome channels.
func NewPool(n int, mode relaymodel.Mode, srcCfg, destCfg *nntp.RelayConfig, requests chan relaymodel.FetchRequest, outcomes chan relaymodel.FetchOutcome, salvage SalvageWriter) *Pool {
	p := &Pool{
		Requests: requests,
		Outcomes: outcomes,
		Errors:   make(chan error, n),
	}
	for i := 0; i < n; i++ {
		p.workers = append(p.workers, &Worker{
			ID:       i,
			Mode:     mode,
			SrcCfg:   srcCfg,
			DestCfg:  destCfg,
			Requests: requests,
			Outcomes: outcomes,
			Running:  &p.Running,
			Salvage:  salvage,
		})
	}
	p.Running.Store(int64(len(p.workers)))
	return p
}

// Run launches every worker against ctx and returns immediately. Each
// worker reports its own exit through Errors (if it errored) and the last
// worker to decrement Running to zero drains any requests still buffered,
// then closes Errors. Callers should select on Errors to detect worker
// failures as they happen, and call Wait to block for full pool shutdown.
func (p *Pool) Run(ctx context.Context) {
	p.wg.Add(len(p.workers))
	for _, w := range p.workers {
		w := w
		w.OnExit = func(err error, remaining int64) {
			defer p.wg.Done()
			if err != nil {
				p.Errors <- err
			}
			if remaining == 0 {
				p.drain()
				close(p.Errors)
			}
		}
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// drain answers every request still buffered once every worker has exited
// with an error outcome, so the Group Pipeline's send on a full channel
// cannot deadlock waiting for a worker that will never come back. Invoked once, by the worker whose
// exit brings Running to zero.
func (p *Pool) drain() {
	drained := 0
	for {
		select {
		case req, ok := <-p.Requests:
			if !ok {
				if drained > 0 {
					log.Printf("[WORKER-POOL] drained %d undelivered requests after pool exit", drained)
				}
				return
			}
			drained++
			p.Outcomes <- relaymodel.FetchOutcome{
				Tag:       relaymodel.OutcomeError,
				MessageID: req.MessageID,
				Group:     req.Group,
				ArticleNo: req.ArticleNo,
			}
		default:
			if drained > 0 {
				log.Printf("[WORKER-POOL] drained %d undelivered requests after pool exit", drained)
			}
			return
		}
	}
}
