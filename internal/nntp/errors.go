package nntp

import "errors"

// NNTP response codes shared across the connection and command files,
// carried over from the teacher's BackendConn welcome/auth/article handling.
const (
	NNTPWelcomeCodeMin = 200
	NNTPWelcomeCodeMax = 201

	NNTPMoreInfoCode = 381
	NNTPAuthSuccess  = 281

	ArticleFollows = 220
	NoSuchArticle  = 430
	DMCA           = 451
)

// Sentinel errors surfaced by the article-retrieval commands.
var (
	ErrArticleNotFound     = errors.New("nntp: article not found")
	ErrArticleRemoved      = errors.New("nntp: article removed")
	ErrNoSuchArticleNumber = errors.New("nntp: no such article number in group")
)

// ErrBroken is the distinguished copyArticle sentinel: the worker must
// abandon its connections and terminate (spec.md §4.3.1).
var ErrBroken = errors.New("nntp: connection broken, worker must exit")
