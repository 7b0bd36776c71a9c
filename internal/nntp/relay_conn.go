package nntp

// Feeder-mode client connection for the replication engine. Grounded on
// BackendConn's dial/auth pattern in nntp-client.go, but exclusively owned
// by one Worker or the pipeline's reference connection — never pool-shared.

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"net/textproto"
	"sync"
	"time"
)

// Additional response codes used by the feeder/poster operations, not
// already declared alongside BackendConn's reader-mode constants.
const (
	codeGroupSelected = 211
	codeNoSuchGroup   = 411
	codeListFollows   = 215

	codeIhaveWanted    = 335
	codeIhaveDup       = 435
	codeIhaveRetry     = 436
	codeIhaveRejected  = 437
	codeTakeAccepted   = 235
	codePostIntermediate = 340
	codePostOK           = 240
	codeNoPermission     = 502
)

// RelayConfig describes one endpoint (source or destination server) this
// engine talks to.
type RelayConfig struct {
	Host           string
	Port           int
	SSL            bool
	Username       string
	Password       string
	ConnectTimeout time.Duration
	ReaderMode     bool // issue MODE READER after connecting
}

// RelayConn is a single synchronous conversation with one remote server,
// exclusively owned by its caller for its entire lifetime.
type RelayConn struct {
	mu       sync.Mutex
	conn     net.Conn
	textConn *textproto.Conn
	writer   *bufio.Writer
	cfg      *RelayConfig

	connected    bool
	CurrentGroup string // cached so repeated requests skip redundant GROUP
}

// DialRelay performs the greeting exchange, optional AUTHINFO USER/PASS, and
// (if cfg.ReaderMode) MODE READER. Failures during greeting or auth are
// fatal for this connection, per spec.md §4.2 connect().
func DialRelay(cfg *RelayConfig) (*RelayConn, error) {
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	var conn net.Conn
	var err error
	if cfg.SSL {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", addr, &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		conn, err = net.DialTimeout("tcp", addr, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("nntp: dial %s: %w", addr, err)
	}

	c := &RelayConn{
		conn:     conn,
		textConn: textproto.NewConn(conn),
		writer:   bufio.NewWriter(conn),
		cfg:      cfg,
	}

	code, msg, err := c.textConn.ReadCodeLine(NNTPWelcomeCodeMin)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nntp: read welcome from %s: %w", addr, err)
	}
	if code < NNTPWelcomeCodeMin || code > NNTPWelcomeCodeMax {
		conn.Close()
		return nil, fmt.Errorf("nntp: unexpected welcome %d %s from %s", code, msg, addr)
	}
	c.connected = true

	if cfg.Username != "" {
		if err := c.authenticate(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("nntp: authenticate to %s: %w", addr, err)
		}
	}

	if cfg.ReaderMode {
		id, err := c.textConn.Cmd("MODE READER")
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("nntp: send MODE READER: %w", err)
		}
		c.textConn.StartResponse(id)
		_, _, _ = c.textConn.ReadCodeLine(NNTPWelcomeCodeMin)
		c.textConn.EndResponse(id)
	}

	return c, nil
}

func (c *RelayConn) authenticate() error {
	id, err := c.textConn.Cmd("AUTHINFO USER %s", c.cfg.Username)
	if err != nil {
		return err
	}
	c.textConn.StartResponse(id)
	code, msg, err := c.textConn.ReadCodeLine(NNTPMoreInfoCode)
	c.textConn.EndResponse(id)
	if err != nil {
		return err
	}
	if code != NNTPMoreInfoCode {
		return fmt.Errorf("unexpected response to AUTHINFO USER: %d %s", code, msg)
	}

	id, err = c.textConn.Cmd("AUTHINFO PASS %s", c.cfg.Password)
	if err != nil {
		return err
	}
	c.textConn.StartResponse(id)
	code, msg, err = c.textConn.ReadCodeLine(NNTPAuthSuccess)
	c.textConn.EndResponse(id)
	if err != nil {
		return err
	}
	if code != NNTPAuthSuccess {
		return fmt.Errorf("authentication rejected: %d %s", code, msg)
	}
	return nil
}

// Close tears down the transport. Safe to call multiple times.
func (c *RelayConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	if c.textConn != nil {
		c.textConn.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Connected reports whether the transport is still believed open.
func (c *RelayConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *RelayConn) setDeadline(d time.Duration) {
	if d <= 0 || c.conn == nil {
		return
	}
	c.conn.SetDeadline(time.Now().Add(d))
}
