package pipeline

import (
	"fmt"

	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// apply is the Outcome Processor (spec.md §4.4.1): per-outcome Progress
// Store update, cursor advance, and stats increment. A Progress Store write
// error is returned rather than logged, per spec.md §4.1 markArticle:
// "Never fails silently; a storage error must surface as fatal to the
// calling pipeline." Stats are only incremented once the store write for
// that outcome has actually succeeded.
func (p *Pipeline) apply(o relaymodel.FetchOutcome) error {
	switch o.Tag {
	case relaymodel.OutcomeSuccess:
		if err := p.markAndAdvance(o, relaymodel.StatusSuccess); err != nil {
			return err
		}
	case relaymodel.OutcomeDup:
		if err := p.markAndAdvance(o, relaymodel.StatusDup); err != nil {
			return err
		}
	case relaymodel.OutcomeUnwanted:
		if err := p.markAndAdvance(o, relaymodel.StatusUnwant); err != nil {
			return err
		}
	case relaymodel.OutcomeRetry:
		// cursor not advanced: spec.md §4.4.1, §8 invariant 3.
		if err := p.Store.MarkArticle(o.MessageID, o.Group, relaymodel.StatusRetry); err != nil {
			return fmt.Errorf("pipeline: markArticle(retry) %s: %w", o.MessageID, err)
		}
	case relaymodel.OutcomeNotfound:
		if err := p.markAndAdvance(o, relaymodel.StatusNotfound); err != nil {
			return err
		}
	case relaymodel.OutcomeSeenDB:
		// already present: no markArticle, cursor still advances.
		if err := p.Store.SetLastID(o.Group, o.ArticleNo); err != nil {
			return fmt.Errorf("pipeline: setLastId(seenindb) %s: %w", o.Group, err)
		}
	case relaymodel.OutcomeError:
		// Open Question 1, decided: error outcomes do NOT advance the cursor.
		if err := p.Store.MarkArticle(o.MessageID, o.Group, relaymodel.StatusError); err != nil {
			return fmt.Errorf("pipeline: markArticle(error) %s: %w", o.MessageID, err)
		}
	}
	p.Stats.Add(o.Tag)
	return nil
}

func (p *Pipeline) markAndAdvance(o relaymodel.FetchOutcome, status relaymodel.Status) error {
	if err := p.Store.MarkArticle(o.MessageID, o.Group, status); err != nil {
		return fmt.Errorf("pipeline: markArticle(%s) %s: %w", status, o.MessageID, err)
	}
	if err := p.Store.SetLastID(o.Group, o.ArticleNo); err != nil {
		return fmt.Errorf("pipeline: setLastId %s: %w", o.Group, err)
	}
	return nil
}
