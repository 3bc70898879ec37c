package main

import (
	"flag"
	"fmt"
	"os"

	"assistdb/pkg/logger"
	"assistdb/pkg/store"
)

// inspect dumps raw keys (and optionally values) from a database
// directory. Debugging aid; run it against a copy, not the live store.
func main() {
	var (
		path   = flag.String("db", "", "path to pebble database directory")
		prefix = flag.String("prefix", "", "key prefix to list (empty lists everything)")
		values = flag.Bool("values", false, "print values alongside keys")
	)
	flag.Parse()
	if *path == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}
	logger.Init("error")

	if err := store.Open(*path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	keys, err := store.ListKeys(*prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if !*values {
			fmt.Println(k)
			continue
		}
		v, err := store.GetKey(k)
		if err != nil {
			fmt.Printf("%s\t<error: %v>\n", k, err)
			continue
		}
		fmt.Printf("%s\t%s\n", k, v)
	}
}
