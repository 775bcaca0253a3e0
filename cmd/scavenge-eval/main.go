// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Scavenge-eval builds randomized generational heaps, runs the parallel
// card-table scavenge over them, and cross-checks the result against a
// ground-truth sweep of the old generation.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"text/tabwriter"
)

const (
	Text = "text"
	TSV  = "tsv"
)

var allFormats = []string{Text, TSV}

var (
	outputFormat = flag.String("format", Text, fmt.Sprintf("output format %v", allFormats))
	scenarioRe   = flag.String("scenario", ".*", "scenario regexp")
	threads      = flag.Int("threads", 0, "override scenario thread counts")
	seed         = flag.Uint64("seed", 1, "randomized heap seed")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	scnRegexp, err := regexp.Compile(*scenarioRe)
	if err != nil {
		return fmt.Errorf("parsing scenario regexp: %v", err)
	}

	var (
		writeHeader func()
		writeRecord func(Scenario, Result)
	)
	switch format := *outputFormat; format {
	case Text, TSV:
		var w io.Writer = os.Stdout
		if format == Text {
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			defer tw.Flush()
			w = tw
		}
		writeHeader = func() {
			fmt.Fprintf(w, "Scenario\tThreads\tObjects\tDirty\tYoungRefs\tPushed\tSpans\tPromoted\tSurvived\n")
			if format == Text {
				fmt.Fprintf(w, "-\t-\t-\t-\t-\t-\t-\t-\t-\n")
			}
		}
		writeRecord = func(s Scenario, r Result) {
			n := s.Threads
			if *threads > 0 {
				n = *threads
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
				s.Name, n, r.Objects, r.DirtyCards, r.YoungRefs,
				r.Pushed, r.Spans, r.Promoted, r.Survived)
		}
	default:
		return fmt.Errorf("unknown output format %q", *outputFormat)
	}

	writeHeader()
	for _, s := range Scenarios {
		if !scnRegexp.MatchString(s.Name) {
			continue
		}
		res, err := runScenario(s, *seed, *threads)
		if err != nil {
			return fmt.Errorf("scenario %s: %v", s.Name, err)
		}
		writeRecord(s, res)
	}
	return nil
}
