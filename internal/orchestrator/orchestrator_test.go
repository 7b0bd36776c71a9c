package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-while/nntp-relay/internal/filters"
	"github.com/go-while/nntp-relay/internal/nntp"
	"github.com/go-while/nntp-relay/internal/progressdb"
	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// fakeSourceServer answers LIST/GROUP/XHDR/ARTICLE for one group ("alt.test")
// holding two articles, enough to drive the orchestrator end to end without
// a real news server.
func fakeSourceServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSource(conn)
		}
	}()
	return ln.Addr().String()
}

func serveSource(conn net.Conn) {
	defer conn.Close()
	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)
	fmt.Fprintf(w, "200 hello\r\n")
	w.Flush()

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "LIST":
			fmt.Fprintf(w, "215 list follows\r\n")
			fmt.Fprintf(w, "alt.test 2 1 y\r\n")
			fmt.Fprintf(w, ".\r\n")
		case "GROUP":
			fmt.Fprintf(w, "211 2 1 2 %s\r\n", fields[1])
		case "XHDR":
			fmt.Fprintf(w, "221 Header follows\r\n")
			fmt.Fprintf(w, "1 <a@test>\r\n")
			fmt.Fprintf(w, "2 <b@test>\r\n")
			fmt.Fprintf(w, ".\r\n")
		case "ARTICLE":
			fmt.Fprintf(w, "220 article follows\r\n")
			fmt.Fprintf(w, "Message-ID: %s\r\n", fields[1])
			fmt.Fprintf(w, "Subject: hi\r\n")
			fmt.Fprintf(w, "\r\n")
			fmt.Fprintf(w, "body\r\n")
			fmt.Fprintf(w, ".\r\n")
		default:
			fmt.Fprintf(w, "500 unknown command\r\n")
		}
		w.Flush()
	}
}

// fakeDestServer answers LIST with the one-group catalogue and IHAVE,
// accepting every offered article.
func fakeDestServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveDest(conn)
		}
	}()
	return ln.Addr().String()
}

func serveDest(conn net.Conn) {
	defer conn.Close()
	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)
	fmt.Fprintf(w, "200 hello\r\n")
	w.Flush()

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "LIST":
			fmt.Fprintf(w, "215 list follows\r\n")
			fmt.Fprintf(w, "alt.test 2 1 y\r\n")
			fmt.Fprintf(w, ".\r\n")
		case "IHAVE":
			fmt.Fprintf(w, "335 send article\r\n")
			w.Flush()
			for {
				bodyLine, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(bodyLine, "\r\n") == "." {
					break
				}
			}
			fmt.Fprintf(w, "235 article transferred ok\r\n")
		default:
			fmt.Fprintf(w, "500 unknown command\r\n")
		}
		w.Flush()
	}
}

func hostPort(addr string) (string, int) {
	host, portStr, _ := net.SplitHostPort(addr)
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

func TestRunReplicatesGroupEndToEnd(t *testing.T) {
	srcAddr := fakeSourceServer(t)
	dstAddr := fakeDestServer(t)
	srcHost, srcPort := hostPort(srcAddr)
	dstHost, dstPort := hostPort(dstAddr)

	store, err := progressdb.Open(filepath.Join(t.TempDir(), "progress.db"), true, 64)
	if err != nil {
		t.Fatalf("progressdb.Open: %v", err)
	}
	defer store.Close()

	flists, err := filters.Load("", "", "", "")
	if err != nil {
		t.Fatalf("filters.Load: %v", err)
	}

	cfg := Config{
		SrcCfg:      &nntp.RelayConfig{Host: srcHost, Port: srcPort, ConnectTimeout: 5 * time.Second},
		DestCfg:     &nntp.RelayConfig{Host: dstHost, Port: dstPort, ConnectTimeout: 5 * time.Second},
		Mode:        relaymodel.ModeIhave,
		Workers:     2,
		MaxArticles: 0,
		Filters:     flists,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := Run(ctx, store, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Moved != 2 {
		t.Fatalf("stats.Moved = %d, want 2 (stats: %+v)", stats.Moved, stats)
	}

	lastID, _ := store.GetLastID("alt.test")
	if lastID != 2 {
		t.Fatalf("lastID = %d, want 2", lastID)
	}
}
