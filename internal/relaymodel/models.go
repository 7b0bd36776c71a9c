// Package relaymodel holds the data types shared across the replication
// engine: articles, groups, fetch requests/outcomes and run statistics.
package relaymodel

import "time"

// Status is the Progress Store's status tag for a recorded article.
type Status string

const (
	StatusSuccess Status = "suc"
	StatusDup     Status = "dup"
	StatusUnwant  Status = "unw"
	StatusRetry   Status = "ret"
	StatusNotfound Status = "nof"
	StatusSeen    Status = "see"
	StatusError   Status = "err"
)

// OutcomeTag is the tag attached to a Fetch outcome as it travels from a
// Worker (or the pipeline, for seenindb) back to the Group Pipeline.
type OutcomeTag string

const (
	OutcomeSuccess  OutcomeTag = "success"
	OutcomeDup      OutcomeTag = "duplicate"
	OutcomeUnwanted OutcomeTag = "unwanted"
	OutcomeRetry    OutcomeTag = "retry"
	OutcomeNotfound OutcomeTag = "notfound"
	OutcomeSeenDB   OutcomeTag = "seenindb"
	OutcomeError    OutcomeTag = "error"
)

// Article is a durable record of one processed Message-ID.
type Article struct {
	MessageID string
	Timestamp time.Time
	Group     string
	Status    Status
}

// Group is the durable per-group high-water mark.
type Group struct {
	Name   string
	LastID int64
}

// FetchRequest is placed by the Group Pipeline onto the request channel and
// consumed by exactly one Worker.
type FetchRequest struct {
	Group     string
	ArticleNo int64
	MessageID string
}

// FetchOutcome is produced by a Worker (or directly by the pipeline, for
// OutcomeSeenDB) and consumed only by the Group Pipeline.
type FetchOutcome struct {
	Tag       OutcomeTag
	MessageID string
	Group     string
	ArticleNo int64
}

// Stats accumulates per-run counters. Mutated only from the Group Pipeline
// during result draining.
type Stats struct {
	Moved    int64
	Dup      int64
	Spam     int64
	Retry    int64
	Notfound int64
	Other    int64
	SeenInDB int64
	Workers  int64
}

// Add folds one outcome tag into the counters.
func (s *Stats) Add(tag OutcomeTag) {
	switch tag {
	case OutcomeSuccess:
		s.Moved++
	case OutcomeDup:
		s.Dup++
	case OutcomeUnwanted:
		s.Spam++
	case OutcomeRetry:
		s.Retry++
	case OutcomeNotfound:
		s.Notfound++
	case OutcomeSeenDB:
		s.SeenInDB++
	case OutcomeError:
		s.Other++
	}
}

// GroupRange is the result of Progress Store's getGroupRange computation.
type GroupRange struct {
	First int64
	Last  int64
	Count int64
}

// Mode is the configured transfer mode for a destination server.
type Mode string

const (
	ModeReader  Mode = "reader"
	ModeReader1 Mode = "reader1"
	ModeIhave   Mode = "ihave"
	ModeIhave2  Mode = "ihave2"
	ModePost    Mode = "post"
	ModeMbox    Mode = "mbox"
)
