// Package metrics exposes /healthz, /stats, and /metrics over gin, grounded
// on the teacher's own web server wiring (gin + gin-contrib/secure security
// headers) but trimmed to the three endpoints an unattended relay run needs:
// a liveness probe, a human-readable stats snapshot, and a Prometheus
// scrape target.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// Collectors holds the Prometheus counters, updated once per completed group
// through Server.RecordGroup. One set per process; Server owns the registry.
type Collectors struct {
	Moved    prometheus.Counter
	Dup      prometheus.Counter
	Spam     prometheus.Counter
	Retry    prometheus.Counter
	Notfound prometheus.Counter
	SeenInDB prometheus.Counter
	Other    prometheus.Counter
}

func newCollectors(reg prometheus.Registerer) *Collectors {
	mk := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nntp_relay",
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(c)
		return c
	}
	return &Collectors{
		Moved:    mk("articles_moved_total", "Articles successfully relayed to the destination."),
		Dup:      mk("articles_duplicate_total", "Articles the destination already had."),
		Spam:     mk("articles_unwanted_total", "Articles the destination rejected as unwanted."),
		Retry:    mk("articles_retry_total", "Articles deferred for a later run."),
		Notfound: mk("articles_notfound_total", "Articles missing on the source by the time they were fetched."),
		SeenInDB: mk("articles_seenindb_total", "Articles already recorded in the Progress Store."),
		Other:    mk("articles_error_total", "Articles that failed for any other reason."),
	}
}

// Apply adds one Stats snapshot's deltas to the collectors. Called by the
// orchestrator after each group completes, with the group's own (non-
// cumulative) Stats value.
func (c *Collectors) Apply(s relaymodel.Stats) {
	c.Moved.Add(float64(s.Moved))
	c.Dup.Add(float64(s.Dup))
	c.Spam.Add(float64(s.Spam))
	c.Retry.Add(float64(s.Retry))
	c.Notfound.Add(float64(s.Notfound))
	c.SeenInDB.Add(float64(s.SeenInDB))
	c.Other.Add(float64(s.Other))
}

// Server is the HTTP surface. StartTime is exposed for uptime reporting on
// /stats, the same field name the teacher's WebServer tracks.
type Server struct {
	Router     *gin.Engine
	Collectors *Collectors
	StartTime  time.Time

	mu        sync.Mutex
	cumulative relaymodel.Stats
}

// New builds the gin engine with the teacher's security-header middleware
// applied, plus the three endpoints.
func New() *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	router.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	reg := prometheus.NewRegistry()
	s := &Server{
		Router:     router,
		Collectors: newCollectors(reg),
		StartTime:  time.Now(),
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/stats", s.handleStats)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return s
}

// RecordGroup folds a completed group's Stats into the running total shown
// on /stats, and into the Prometheus counters.
func (s *Server) RecordGroup(st relaymodel.Stats) {
	s.mu.Lock()
	s.cumulative.Moved += st.Moved
	s.cumulative.Dup += st.Dup
	s.cumulative.Spam += st.Spam
	s.cumulative.Retry += st.Retry
	s.cumulative.Notfound += st.Notfound
	s.cumulative.SeenInDB += st.SeenInDB
	s.cumulative.Other += st.Other
	s.mu.Unlock()
	s.Collectors.Apply(st)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime_seconds": int(time.Since(s.StartTime).Seconds())})
}

func (s *Server) handleStats(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": int(time.Since(s.StartTime).Seconds()),
		"moved":          s.cumulative.Moved,
		"duplicate":      s.cumulative.Dup,
		"unwanted":       s.cumulative.Spam,
		"retry":          s.cumulative.Retry,
		"notfound":       s.cumulative.Notfound,
		"seenindb":       s.cumulative.SeenInDB,
		"error":          s.cumulative.Other,
	})
}

// ListenAndServe runs the HTTP surface; it blocks until the server stops or
// errors, matching net/http.Server's own contract.
func (s *Server) ListenAndServe(addr string) error {
	return s.Router.Run(addr)
}
