// Package config reads the INI-format configuration file (sections misc,
// servers, and one section per named server) described in spec.md §6.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"
	"gopkg.in/ini.v1"

	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// Byte constants of NNTP line framing. No other package refers to them;
// internal/nntp frames lines through net/textproto.
const (
	DOT  = "."
	CR   = "\r"
	LF   = "\n"
	CRLF = CR + LF
)

// DefaultConnectTimeout bounds a single dial+welcome round trip.
const DefaultConnectTimeout = 30 * time.Second

// Server describes one NNTP endpoint (a "from" or "to" peer).
type Server struct {
	Name     string
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
}

// Config is the fully-resolved engine configuration for one run.
type Config struct {
	PidFile            string
	NewsDB             string
	ShouldMarkArticles bool
	MaxArticles        int64
	Workers            int
	Mode               relaymodel.Mode

	FilterList       string
	GlobalFilterList string
	ForcedList       string
	UseIgnore        bool
	DoneList         string
	BadGroupsList    string

	MboxDir     string
	MetricsAddr string

	From Server
	To   Server
}

// Load reads path (an INI file) plus any sibling .env credential overlay and
// returns a validated Config. Missing passwords are prompted for
// interactively when stdin is a terminal.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	envOverlay := map[string]string{}
	if env, err := godotenv.Read(path + ".env"); err == nil {
		envOverlay = env
	}

	misc := f.Section("misc")
	cfg := &Config{
		PidFile:            misc.Key("pidfile").MustString("nntp-relay.pid"),
		NewsDB:             misc.Key("newsdb").MustString("progress.db"),
		ShouldMarkArticles: misc.Key("mark_articles").MustBool(true),
		MaxArticles:        misc.Key("max_articles").MustInt64(0),
		Workers:            misc.Key("workers").MustInt(1),
		Mode:               relaymodel.Mode(misc.Key("mode").MustString(string(relaymodel.ModeIhave))),
		FilterList:         misc.Key("filterlist").String(),
		GlobalFilterList:   misc.Key("globalfilterlist").String(),
		ForcedList:         misc.Key("forcedlist").String(),
		UseIgnore:          misc.Key("useignore").MustBool(false),
		DoneList:           misc.Key("donelist").MustString("done.list"),
		BadGroupsList:      misc.Key("badgroupslist").MustString("bad.groups"),
		MboxDir:            misc.Key("mboxdir").MustString("mbox"),
		MetricsAddr:        misc.Key("metrics_addr").String(),
	}

	switch cfg.Mode {
	case relaymodel.ModeReader, relaymodel.ModeReader1, relaymodel.ModeIhave,
		relaymodel.ModeIhave2, relaymodel.ModePost, relaymodel.ModeMbox:
	default:
		return nil, fmt.Errorf("config: unknown mode %q", cfg.Mode)
	}

	servers := f.Section("servers")
	fromName := servers.Key("from").String()
	if fromName == "" {
		return nil, fmt.Errorf("config: [servers]: from is required")
	}
	from, err := loadServer(f, fromName, 119, envOverlay)
	if err != nil {
		return nil, fmt.Errorf("config: [servers] from=%s: %w", fromName, err)
	}
	cfg.From = from

	if cfg.Mode != relaymodel.ModeMbox {
		toName := servers.Key("to").String()
		if toName == "" {
			return nil, fmt.Errorf("config: [servers]: to is required")
		}
		to, err := loadServer(f, toName, 119, envOverlay)
		if err != nil {
			return nil, fmt.Errorf("config: [servers] to=%s: %w", toName, err)
		}
		cfg.To = to
	}

	return cfg, nil
}

// loadServer reads one [name] section into a Server. A password left blank
// in the file is first looked up as NAME_PASSWORD in the .env overlay, then
// prompted for interactively as a last resort.
func loadServer(f *ini.File, name string, defaultPort int, envOverlay map[string]string) (Server, error) {
	sec, err := f.GetSection(name)
	if err != nil {
		return Server{}, fmt.Errorf("missing section [%s]: %w", name, err)
	}

	srv := Server{
		Name:     name,
		Host:     sec.Key("host").String(),
		Port:     sec.Key("port").MustInt(defaultPort),
		Username: sec.Key("username").String(),
		Password: sec.Key("password").String(),
		SSL:      sec.Key("ssl").MustBool(false),
	}
	if srv.Host == "" {
		return Server{}, fmt.Errorf("[%s]: host is required", name)
	}

	if srv.Username != "" && srv.Password == "" {
		envKey := fmt.Sprintf("%s_PASSWORD", name)
		if v, ok := envOverlay[envKey]; ok {
			srv.Password = v
		} else {
			pw, err := promptPassword(name)
			if err != nil {
				return Server{}, fmt.Errorf("[%s]: password: %w", name, err)
			}
			srv.Password = pw
		}
	}

	return srv, nil
}

// promptPassword asks for a server's password on the controlling terminal,
// used when neither the config file nor the .env overlay supplies one.
func promptPassword(serverName string) (string, error) {
	fmt.Fprintf(os.Stderr, "password for [%s]: ", serverName)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
