// Command nntp-relay-dbtool is the companion dump/load utility for the
// Progress Store (spec.md §6 "companion utilities"): it produces or
// consumes tab-separated key\tvalue records, with filters by record kind.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-while/nntp-relay/internal/dumpload"
	"github.com/go-while/nntp-relay/internal/progressdb"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <dump|load> -db <path> [-articles] [-groups]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	sub := os.Args[1]

	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	dbPath := fs.String("db", "", "path to the Progress Store file")
	articlesOnly := fs.Bool("articles", false, "dump only article records (load reads every record)")
	groupsOnly := fs.Bool("groups", false, "dump only group records (load reads every record)")
	fs.Parse(os.Args[2:])

	if *dbPath == "" {
		usage()
		os.Exit(1)
	}

	switch sub {
	case "dump":
		if err := runDump(*dbPath, dumpload.Options{Articles: *articlesOnly, Groups: *groupsOnly}); err != nil {
			log.Fatalf("dump: %v", err)
		}
	case "load":
		if err := runLoad(*dbPath); err != nil {
			log.Fatalf("load: %v", err)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func runDump(dbPath string, opts dumpload.Options) error {
	store, err := progressdb.Open(dbPath, true, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer store.Close()

	return dumpload.Dump(store, os.Stdout, opts)
}

func runLoad(dbPath string) error {
	store, err := progressdb.Open(dbPath, true, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer store.Close()

	articles, groups, err := dumpload.Load(store, os.Stdin)
	if err != nil {
		return err
	}
	log.Printf("loaded %d article records, %d group records into %s", articles, groups, dbPath)
	return nil
}
