// Command vc0706-journal prints the packet journal written by vc0706d.
//
// Usage:
//
//	vc0706-journal view [-kind hk|image] [-id uuid] [-since time] <file>
//	vc0706-journal stats <file>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CACTUS-Mission/cFS-VC0706/internal/journal"
)

const usage = `vc0706-journal - camera packet journal viewer

Usage:
  vc0706-journal <command> [flags] <file>

Commands:
  view     print entries
  stats    count entries per kind
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "view":
		return runView(args, out)
	case "stats":
		return runStats(args, out)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func runView(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	kind := fs.String("kind", "", "only entries of this kind: hk, image, other")
	id := fs.String("id", "", "only the entry with this id")
	since := fs.String("since", "", "only entries at or after this RFC 3339 time")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("view needs exactly one journal file")
	}

	var f journal.Filter
	if *kind != "" {
		k, err := parseKind(*kind)
		if err != nil {
			return err
		}
		f.Kind = &k
	}
	if *id != "" {
		u, err := uuid.Parse(*id)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		f.ID = u.String()
	}
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			return fmt.Errorf("invalid since: %w", err)
		}
		f.Since = t
	}

	return each(fs.Arg(0), f, func(e journal.Entry) {
		fmt.Fprintln(out, e)
	})
}

func runStats(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("stats needs exactly one journal file")
	}

	counts := map[journal.Kind]int{}
	var total, failed int
	var first, last time.Time
	var lastImage string
	err := each(fs.Arg(0), journal.Filter{}, func(e journal.Entry) {
		total++
		counts[e.Kind]++
		if first.IsZero() {
			first = e.Time
		}
		last = e.Time
		if e.Kind == journal.KindImage {
			if e.Name == "error.txt" {
				failed++
			} else {
				lastImage = e.Name
			}
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Entries:      %d\n", total)
	if total == 0 {
		return nil
	}
	fmt.Fprintf(out, "Span:         %s .. %s\n", first.Format(time.RFC3339), last.Format(time.RFC3339))
	for _, k := range []journal.Kind{journal.KindHousekeeping, journal.KindImage, journal.KindOther} {
		fmt.Fprintf(out, "%-13s %d\n", k.String()+":", counts[k])
	}
	fmt.Fprintf(out, "Failed:       %d\n", failed)
	if lastImage != "" {
		fmt.Fprintf(out, "Last picture: %s\n", lastImage)
	}
	return nil
}

func parseKind(s string) (journal.Kind, error) {
	switch strings.ToLower(s) {
	case "hk":
		return journal.KindHousekeeping, nil
	case "image":
		return journal.KindImage, nil
	case "other":
		return journal.KindOther, nil
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

func each(path string, f journal.Filter, fn func(journal.Entry)) error {
	r, err := journal.Open(path, f)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		e, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fn(e)
	}
}
