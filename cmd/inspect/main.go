// inspect dumps the raw key space of a Parakarry database for debugging.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
)

func main() {
	var (
		path   string
		prefix string
		values bool
	)
	flag.StringVar(&path, "db", "", "Pebble DB path")
	flag.StringVar(&prefix, "prefix", "", "only keys with this prefix")
	flag.BoolVar(&values, "values", false, "print values, not just sizes")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	logger.InitWithLevel("error")
	if err := store.Open(path); err != nil {
		fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	iter, err := store.DBIter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "iterator failed: %v\n", err)
		os.Exit(1)
	}
	defer iter.Close()

	count := 0
	var total uint64
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		count++
		total += uint64(len(iter.Value()))
		if values {
			fmt.Printf("%s\t%s\n", key, string(iter.Value()))
		} else {
			fmt.Printf("%s\t%s\n", key, humanize.Bytes(uint64(len(iter.Value()))))
		}
	}
	if err := iter.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "iteration error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n%d keys, %s total\n", count, humanize.Bytes(total))
}
