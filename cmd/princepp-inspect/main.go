// princepp-inspect is an interactive browser for a PRINCE engine built
// from a wordlist file: the same chain-building and keyspace arithmetic
// princepp itself runs, exposed one command at a time instead of streamed
// to stdout.
//
// Usage:
//
//	princepp-inspect [flags] <wordlist-file>
//
// Flags:
//
//	--pw-min, --pw-max            candidate length range (defaults: 1, 16)
//	--elem-cnt-min, --elem-cnt-max chain part-count range (defaults: 1, 8)
//	--wl-dist-len                  derive length priority from the wordlist
//	--stats-cache <path>            browse a stats-cache file (created empty if absent)
//
// Commands (in REPL):
//
//	buckets                              List non-empty word-length buckets
//	chains <len>                         List chains for one output length
//	candidate <len> <chain-index> <pos>  Materialize one candidate
//	keyspace                             Show the total keyspace
//	stats                                Show length priorities and order
//	cache                                 List --stats-cache contents
//	help                                 Show this help
//	exit / quit / q                      Exit
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/princepp/princepp/internal/cli"
	"github.com/princepp/princepp/internal/prince"
	"github.com/princepp/princepp/pkg/slotcache"
)

// statsCacheDefaultSlotCapacity mirrors princepp's own default: an upper
// bound on distinct chain signatures, generous enough that browsing a
// cache built by a real run never collides with this tool's own opening.
const statsCacheDefaultSlotCapacity = 1 << 20

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("princepp-inspect", flag.ExitOnError)

	pwMin := fs.Int("pw-min", prince.LenMin, "minimum candidate length")
	pwMax := fs.Int("pw-max", prince.LenMax, "maximum candidate length")
	elemCntMin := fs.Int("elem-cnt-min", 1, "minimum number of elements per chain")
	elemCntMax := fs.Int("elem-cnt-max", 8, "maximum number of elements per chain")
	wlDistLen := fs.Bool("wl-dist-len", false, "derive length priority from the wordlist")
	statsCachePath := fs.String("stats-cache", "", "open a stats-cache file for the 'cache' command (created empty if absent)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: princepp-inspect [flags] <wordlist-file>\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing wordlist file path")
	}

	wordlistPath := fs.Arg(0)

	f, err := os.Open(wordlistPath)
	if err != nil {
		return fmt.Errorf("opening wordlist: %w", err)
	}
	defer f.Close()

	table := prince.NewBucketTable()

	added, err := cli.LoadWords(f, table)
	if err != nil {
		return fmt.Errorf("loading wordlist: %w", err)
	}

	engine, err := prince.NewEngine(table, prince.Config{
		PwMin:      *pwMin,
		PwMax:      *pwMax,
		ElemCntMin: *elemCntMin,
		ElemCntMax: *elemCntMax,
		WlDistLen:  *wlDistLen,
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	repl := &REPL{engine: engine, wlDistLen: *wlDistLen, wordsLoaded: added}

	if *statsCachePath != "" {
		cache, err := prince.OpenStatsCache(*statsCachePath, table, *pwMin, *pwMax, statsCacheDefaultSlotCapacity)
		if err != nil {
			if errors.Is(err, slotcache.ErrIncompatible) {
				fmt.Fprintf(os.Stderr, "warning: --stats-cache file does not match this wordlist/pw-min/pw-max, 'cache' command will be unavailable\n")
			} else {
				return fmt.Errorf("opening stats cache: %w", err)
			}
		} else {
			defer cache.Close()

			repl.statsCache = cache
		}
	}

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	engine      *prince.Engine
	wlDistLen   bool
	wordsLoaded int
	liner       *liner.State
	statsCache  *prince.StatsCache
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".princepp_inspect_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("princepp-inspect (%d words loaded)\n", r.wordsLoaded)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("princepp> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil
		case "help", "?":
			r.printHelp()
		case "buckets":
			r.cmdBuckets()
		case "chains":
			r.cmdChains(args)
		case "candidate":
			r.cmdCandidate(args)
		case "keyspace":
			r.cmdKeyspace()
		case "stats":
			r.cmdStats()
		case "cache":
			r.cmdCache()
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"buckets", "chains", "candidate", "keyspace", "stats", "cache", "help", "exit", "quit", "q"}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  buckets                              List non-empty word-length buckets")
	fmt.Println("  chains <len>                          List chains for one output length")
	fmt.Println("  candidate <len> <chain-index> <pos>   Materialize one candidate")
	fmt.Println("  keyspace                               Show the total keyspace")
	fmt.Println("  stats                                  Show length priorities and visitation order")
	fmt.Println("  cache                                  List --stats-cache contents")
	fmt.Println("  help                                   Show this help")
	fmt.Println("  exit / quit / q                        Exit")
}

func (r *REPL) cmdBuckets() {
	table := r.engine.Table()

	empty := true

	for n := prince.LenMin; n <= prince.LenMax; n++ {
		if count := table.Count(n); count > 0 {
			fmt.Printf("  len=%-2d  words=%d\n", n, count)
			empty = false
		}
	}

	if empty {
		fmt.Println("(no words loaded)")
	}
}

func (r *REPL) cmdChains(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: chains <len>")
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("Error: invalid length %q\n", args[0])
		return
	}

	chains := r.engine.Chains(n)
	if len(chains) == 0 {
		fmt.Println("(no chains for this length)")
		return
	}

	for i, c := range chains {
		fmt.Printf("  [%d] parts=%v ks_cnt=%s\n", i, c.Parts, c.KsCnt.String())
	}
}

func (r *REPL) cmdCandidate(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: candidate <len> <chain-index> <position>")
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("Error: invalid length %q\n", args[0])
		return
	}

	idx, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Printf("Error: invalid chain index %q\n", args[1])
		return
	}

	pos, err := prince.ParseInt(args[2])
	if err != nil {
		fmt.Printf("Error: invalid position %q: %v\n", args[2], err)
		return
	}

	chains := r.engine.Chains(n)
	if idx < 0 || idx >= len(chains) {
		fmt.Printf("Error: chain index %d out of range [0, %d)\n", idx, len(chains))
		return
	}

	chain := chains[idx]
	if pos.Cmp(chain.KsCnt) >= 0 {
		fmt.Printf("Error: position %s out of range [0, %s)\n", pos.String(), chain.KsCnt.String())
		return
	}

	buf := make([]byte, n)
	written := prince.Materialize(chain, r.engine.Table(), pos, buf)
	fmt.Printf("%s\n", buf[:written])
}

func (r *REPL) cmdKeyspace() {
	fmt.Println(r.engine.TotalKeyspace().String())
}

func (r *REPL) cmdCache() {
	if r.statsCache == nil {
		fmt.Println("(no --stats-cache file opened)")
		return
	}

	chains, err := r.statsCache.List()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if len(chains) == 0 {
		fmt.Println("(cache is empty)")
		return
	}

	for _, c := range chains {
		fmt.Printf("  parts=%v ks_cnt=%s\n", c.Parts, c.KsCnt.String())
	}

	count, err := r.statsCache.Count()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("%d entries\n", count)
}

func (r *REPL) cmdStats() {
	fmt.Printf("wl-dist-len: %v\n", r.wlDistLen)
	fmt.Println("visitation order (ascending length priority):")

	for _, n := range r.engine.Lengths() {
		chains := r.engine.Chains(n)

		total := prince.IntFromUint64(0)
		for _, c := range chains {
			total = total.Add(c.KsCnt)
		}

		fmt.Printf("  len=%-2d  chains=%-4d  ks_cnt=%s\n", n, len(chains), total.String())
	}
}
