// Package main provides the entry point for ragrep, the query client
// (spec §4.8). Usage: ragrep [-n top_n] [-files-only] <query>. Flags
// are parsed with the standard library only (spec §1 Non-goal: no CLI
// framework).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/laulauland/ragrep/internal/client"
	"github.com/laulauland/ragrep/internal/retrieve"
)

func main() {
	// -n defaults to 0 ("unset") rather than hardcoding a number here:
	// a Query with TopN<=0 is resolved against the project's
	// retrieval.top_n_default (configs.RetrievalConfig, spec §6.4) by
	// whichever Retriever ends up serving it, server-side or in-process.
	topN := flag.Int("n", 0, "number of results to return (default: project's retrieval.top_n_default)")
	filesOnly := flag.Bool("files-only", false, "omit chunk text, list matching files only")
	asJSON := flag.Bool("json", false, "emit results as JSON")
	flag.Parse()

	query := strings.Join(flag.Args(), " ")
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: ragrep [-n top_n] [-files-only] [-json] <query>")
		os.Exit(2)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ragrep:", err)
		os.Exit(1)
	}

	c := client.New(cwd)
	results, stats, err := c.Search(context.Background(), retrieve.Query{
		Text: query, TopN: *topN, FilesOnly: *filesOnly,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ragrep:", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"results": results, "stats": stats})
		return
	}

	for _, r := range results {
		if *filesOnly {
			fmt.Println(r.FilePath)
			continue
		}
		fmt.Printf("%s:%d-%d (%.3f)\n", r.FilePath, r.StartLine, r.EndLine, r.Score)
		if r.Text != "" {
			fmt.Println(r.Text)
			fmt.Println("---")
		}
	}
}
