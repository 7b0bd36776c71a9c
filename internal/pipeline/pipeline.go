// Package pipeline implements the Group Pipeline: for one group, determine
// the unseen range, fetch Message-ID headers, fan out fetch requests to the
// worker pool, drain outcomes, update the Progress Store, and decide
// group-level completion (spec.md §4.4).
package pipeline

import (
	"fmt"
	"log"
	"os"

	"github.com/go-while/nntp-relay/internal/nntp"
	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// backpressureThreshold is the point at which the dispatch phase interleaves
// draining to keep channels bounded (spec.md §4.4 step 5).
const backpressureThreshold = 10000

// SourceConn is the subset of RelayConn the pipeline needs from the
// engine's reference source connection (distinct from worker connections).
// *nntp.RelayConn satisfies this structurally.
type SourceConn interface {
	Group(name string) (count, first, last int64, err error)
	XHdr(header string, first, last int64) ([]nntp.HeaderEntry, error)
}

// ProgressStore is the subset of progressdb.DB the pipeline needs.
// *progressdb.DB satisfies this structurally.
type ProgressStore interface {
	HasArticle(messageID string) (bool, error)
	MarkArticle(messageID, group string, status relaymodel.Status) error
	GetLastID(group string) (int64, error)
	SetLastID(group string, id int64) error
	GetGroupRange(group string, first, last, maxArticles int64) (relaymodel.GroupRange, error)
}

// MboxHandler delegates mbox-mode groups (spec.md §4.4 step 1) to the
// read/count-only side-ingest collaborator (Open Question 2, decided:
// non-feeding audit mode — see internal/mbox).
type MboxHandler func(group string) error

// Pipeline processes groups one at a time against a shared request/outcome
// channel pair and a Progress Store.
type Pipeline struct {
	Source        SourceConn
	Store         ProgressStore
	Requests      chan<- relaymodel.FetchRequest
	Outcomes      <-chan relaymodel.FetchOutcome
	Mode          relaymodel.Mode
	MaxArticles   int64
	DoneListPath  string
	BadGroupsPath string
	Mbox          MboxHandler

	Stats relaymodel.Stats
}

// ProcessGroup runs the full per-group protocol from spec.md §4.4. It
// returns false for a bad group (logged and recorded, not fatal to the
// orchestrator) and for a failed mbox audit (logged only), and false with
// an error when the Progress Store fails; an already-complete or
// successfully-drained group returns true.
func (p *Pipeline) ProcessGroup(group string) (bool, error) {
	if p.Mode == relaymodel.ModeMbox {
		if p.Mbox == nil {
			return false, fmt.Errorf("pipeline: mbox mode configured but no handler set")
		}
		if err := p.Mbox(group); err != nil {
			log.Printf("[PIPELINE] mbox %s: %v", group, err)
			return false, nil
		}
		return true, nil
	}

	_, first, last, err := p.Source.Group(group)
	if err != nil {
		log.Printf("[PIPELINE] GROUP %s failed: %v", group, err)
		p.markBad(group)
		return false, nil
	}

	rng, err := p.Store.GetGroupRange(group, first, last, p.MaxArticles)
	if err != nil {
		return false, fmt.Errorf("pipeline: getGroupRange(%s): %w", group, err)
	}
	if rng.Count == 0 {
		p.markDone(group)
		return true, nil
	}

	entries, err := p.Source.XHdr("message-id", rng.First, rng.Last)
	if err != nil {
		log.Printf("[PIPELINE] XHDR message-id %s %d-%d failed: %v", group, rng.First, rng.Last, err)
		p.markBad(group)
		return false, nil
	}
	if int64(len(entries)) != rng.Count {
		log.Printf("[PIPELINE] %s: XHDR returned %d entries, expected %d (holes are normal)", group, len(entries), rng.Count)
	}

	awaitingFromWorkers := 0

	for _, e := range entries {
		seen, err := p.Store.HasArticle(e.Value)
		if err != nil {
			return false, fmt.Errorf("pipeline: hasArticle: %w", err)
		}
		if seen {
			if err := p.apply(relaymodel.FetchOutcome{
				Tag:       relaymodel.OutcomeSeenDB,
				MessageID: e.Value,
				Group:     group,
				ArticleNo: e.ArticleNo,
			}); err != nil {
				return false, fmt.Errorf("pipeline: %s: %w", group, err)
			}
			continue
		}

		p.Requests <- relaymodel.FetchRequest{Group: group, ArticleNo: e.ArticleNo, MessageID: e.Value}
		awaitingFromWorkers++

		if awaitingFromWorkers >= backpressureThreshold {
			if err := p.drainOutcomes(awaitingFromWorkers); err != nil {
				return false, fmt.Errorf("pipeline: %s: %w", group, err)
			}
			awaitingFromWorkers = 0
		}
	}

	if err := p.drainOutcomes(awaitingFromWorkers); err != nil {
		return false, fmt.Errorf("pipeline: %s: %w", group, err)
	}

	p.markDone(group)
	return true, nil
}

// drainOutcomes pulls n outcomes off the outcome channel and applies each
// in turn, stopping at the first Progress Store write failure (spec.md
// §4.1: a storage error is fatal to the calling pipeline, not merely
// logged). A non-nil return leaves the group incomplete and propagates up
// through ProcessGroup to the orchestrator.
func (p *Pipeline) drainOutcomes(n int) error {
	for i := 0; i < n; i++ {
		outcome := <-p.Outcomes
		if err := p.apply(outcome); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) markBad(group string) {
	if p.BadGroupsPath == "" {
		return
	}
	f, err := os.OpenFile(p.BadGroupsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[PIPELINE] cannot append bad-group record for %s: %v", group, err)
		return
	}
	defer f.Close()
	fmt.Fprintln(f, group)
}

func (p *Pipeline) markDone(group string) {
	if p.DoneListPath == "" {
		return
	}
	f, err := os.OpenFile(p.DoneListPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[PIPELINE] cannot append done-list record for %s: %v", group, err)
		return
	}
	defer f.Close()
	fmt.Fprintln(f, group)
}
