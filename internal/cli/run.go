package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/princepp/princepp/internal/prince"
	"github.com/princepp/princepp/pkg/fs"
	"github.com/princepp/princepp/pkg/slotcache"

	flag "github.com/spf13/pflag"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// defaultElemCntMin and defaultElemCntMax mirror pp.c's ELEM_CNT_MIN/MAX.
const (
	defaultElemCntMin = 1
	defaultElemCntMax = 8
)

// statsCacheDefaultSlotCapacity bounds the number of distinct chain
// signatures a --stats-cache file can hold before it must be recreated
// larger; 1<<20 comfortably covers every chain under the default
// elem-cnt-max against any wordlist with fewer than 17 distinct lengths.
const statsCacheDefaultSlotCapacity = 1 << 20

// Run is princepp's single entry point. Returns the process exit code.
// sigCh may be nil if signal handling is not needed (e.g. in tests).
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	cmd := buildCommand(in, env)

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, args[1:])
	}()

	// Wait for completion or first signal (nil channel never fires).
	select {
	case exitCode := <-done:
		if exitCode != 0 {
			return exitCode
		}

		return cmdIO.Finish()
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	// Wait for completion, timeout, or second signal.
	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")

		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")

		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")

		return 130
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

// buildCommand assembles the single flag set and wires it to runEnumerate.
func buildCommand(in io.Reader, env map[string]string) *Command {
	flags := flag.NewFlagSet("princepp", flag.ContinueOnError)

	flagVersion := flags.BoolP("version", "V", false, "Print version")
	flagKeyspace := flags.Bool("keyspace", false, "Calculate number of combinations and exit")
	flagPwMin := flags.Int("pw-min", prince.LenMin, "Minimum candidate length")
	flagPwMax := flags.Int("pw-max", prince.LenMax, "Maximum candidate length")
	flagElemCntMin := flags.Int("elem-cnt-min", defaultElemCntMin, "Minimum number of elements per chain")
	flagElemCntMax := flags.Int("elem-cnt-max", defaultElemCntMax, "Maximum number of elements per chain")
	flagWlDistLen := flags.Bool("wl-dist-len", false,
		"Derive length priority from the wordlist instead of the built-in reference distribution")
	flagSkip := flags.StringP("skip", "s", "0", "Start at specific position (decimal, arbitrary precision)")
	flagLimit := flags.StringP("limit", "l", "", "Stop after NUM candidates (decimal, arbitrary precision)")
	flagOutputFile := flags.StringP("output-file", "o", "", "Output file (default: stdout)")
	flagConfig := flags.String("config", "", "Use the given JSONC config file instead of the default")
	flagInitConfig := flags.Bool("init-config", false, "Write a default config file at --config (or the project default path) and exit")
	flagStatsCache := flags.String("stats-cache", "", "Memoize chain keyspaces across invocations")
	flagStatsFile := flags.String("stats-file", "", "Write a one-shot JSON diagnostics manifest")

	return &Command{
		Flags: flags,
		Usage: "princepp [flags] < wordlist",
		Short: "PRINCE password-candidate generator",
		Long: "Reads newline-delimited words from stdin and emits password candidates " +
			"formed by chaining them together, per the PRINCE algorithm.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if *flagVersion {
				o.Println("princepp", Version)
				return nil
			}

			workDir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("cannot get working directory: %w", err)
			}

			if *flagInitConfig {
				return runInitConfig(o, workDir, *flagConfig)
			}

			opts := runOptions{
				keyspace:      *flagKeyspace,
				pwMin:         *flagPwMin,
				pwMax:         *flagPwMax,
				pwMinSet:      flags.Changed("pw-min"),
				pwMaxSet:      flags.Changed("pw-max"),
				elemCntMin:    *flagElemCntMin,
				elemCntMax:    *flagElemCntMax,
				elemCntMinSet: flags.Changed("elem-cnt-min"),
				elemCntMaxSet: flags.Changed("elem-cnt-max"),
				wlDistLen:     *flagWlDistLen,
				wlDistLenSet:  flags.Changed("wl-dist-len"),
				skip:          *flagSkip,
				limit:         *flagLimit,
				limitSet:      flags.Changed("limit"),
				outputFile:    *flagOutputFile,
				outputFileSet: flags.Changed("output-file"),
				configPath:    *flagConfig,
				statsCache:    *flagStatsCache,
				statsCacheSet: flags.Changed("stats-cache"),
				statsFile:     *flagStatsFile,
				statsFileSet:  flags.Changed("stats-file"),
			}

			return runEnumerate(ctx, in, o, workDir, env, opts)
		},
	}
}

// runOptions carries every flag value plus whether it was explicitly set,
// so resolveConfig can apply the flags > config file > defaults precedence.
type runOptions struct {
	keyspace bool

	pwMin, pwMax           int
	pwMinSet, pwMaxSet     bool
	elemCntMin, elemCntMax int
	elemCntMinSet          bool
	elemCntMaxSet          bool
	wlDistLen              bool
	wlDistLenSet           bool

	skip, limit string
	limitSet    bool

	outputFile    string
	outputFileSet bool

	configPath string

	statsCache    string
	statsCacheSet bool
	statsFile     string
	statsFileSet  bool
}

// resolveConfig applies the config-file layer on top of built-in defaults,
// then lets any explicitly-set flag override it.
func resolveConfig(workDir string, env map[string]string, opts runOptions) (runOptions, error) {
	fileCfg, err := LoadConfig(LoadConfigInput{WorkDir: workDir, ConfigPath: opts.configPath, Env: env})
	if err != nil {
		return runOptions{}, err
	}

	resolved := opts

	if !opts.pwMinSet && fileCfg.PwMin != nil {
		resolved.pwMin = *fileCfg.PwMin
	}

	if !opts.pwMaxSet && fileCfg.PwMax != nil {
		resolved.pwMax = *fileCfg.PwMax
	}

	if !opts.elemCntMinSet && fileCfg.ElemCntMin != nil {
		resolved.elemCntMin = *fileCfg.ElemCntMin
	}

	if !opts.elemCntMaxSet && fileCfg.ElemCntMax != nil {
		resolved.elemCntMax = *fileCfg.ElemCntMax
	}

	if !opts.wlDistLenSet && fileCfg.WlDistLen != nil {
		resolved.wlDistLen = *fileCfg.WlDistLen
	}

	if !opts.outputFileSet && fileCfg.OutputFile != nil && *fileCfg.OutputFile != "" {
		resolved.outputFile = *fileCfg.OutputFile
	}

	if !opts.statsCacheSet && fileCfg.StatsCache != nil && *fileCfg.StatsCache != "" {
		resolved.statsCache = *fileCfg.StatsCache
	}

	if !opts.statsFileSet && fileCfg.StatsFile != nil && *fileCfg.StatsFile != "" {
		resolved.statsFile = *fileCfg.StatsFile
	}

	return resolved, nil
}

func runInitConfig(o *IO, workDir, configPath string) error {
	path := configPath
	if path == "" {
		path = filepath.Join(workDir, ConfigFileName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	writer := fs.NewAtomicWriter(fs.NewReal())
	if err := writer.WriteWithDefaults(path, strings.NewReader(DefaultFileConfigJSON)); err != nil {
		return err
	}

	o.Println("wrote", path)

	return nil
}

// runEnumerate loads the wordlist, builds the engine, and either reports
// the keyspace or enumerates candidates, depending on opts.keyspace.
func runEnumerate(ctx context.Context, in io.Reader, o *IO, workDir string, env map[string]string, opts runOptions) error {
	opts, err := resolveConfig(workDir, env, opts)
	if err != nil {
		return err
	}

	table := prince.NewBucketTable()
	if _, err := LoadWords(in, table); err != nil {
		return err
	}

	skip, err := prince.ParseInt(opts.skip)
	if err != nil {
		return fmt.Errorf("--skip: %w", err)
	}

	var limit prince.Int
	if opts.limitSet {
		limit, err = prince.ParseInt(opts.limit)
		if err != nil {
			return fmt.Errorf("--limit: %w", err)
		}
	}

	cfg := prince.Config{
		PwMin:      opts.pwMin,
		PwMax:      opts.pwMax,
		ElemCntMin: opts.elemCntMin,
		ElemCntMax: opts.elemCntMax,
		WlDistLen:  opts.wlDistLen,
		Skip:       skip,
		Limit:      limit,
		LimitSet:   opts.limitSet,
	}

	var statsCache *prince.StatsCache

	if opts.statsCache != "" {
		statsCache, err = prince.OpenStatsCache(opts.statsCache, table, opts.pwMin, opts.pwMax, statsCacheDefaultSlotCapacity)
		switch {
		case err == nil:
			defer statsCache.Close()

			cfg.StatsCache = statsCache
		case errors.Is(err, slotcache.ErrIncompatible):
			o.WarnLLM("--stats-cache file does not match this wordlist/config",
				"recomputing keyspaces without memoization; delete "+opts.statsCache+" to silence this warning")
		default:
			return err
		}
	}

	engine, err := prince.NewEngine(table, cfg)
	if err != nil {
		return err
	}

	if opts.statsFile != "" {
		if err := writeStatsFile(engine, opts.statsFile); err != nil {
			return err
		}
	}

	if opts.keyspace {
		o.Println(engine.TotalKeyspace().String())
		return nil
	}

	sink, closeSink, err := openSink(o, opts.outputFile)
	if err != nil {
		return err
	}

	defer closeSink()

	writer := prince.NewWriter(sink)

	return engine.RunContext(ctx, writer)
}

func writeStatsFile(engine *prince.Engine, path string) error {
	runID, err := prince.NewRunID()
	if err != nil {
		return err
	}

	manifest := prince.BuildManifest(engine, runID)
	writer := fs.NewAtomicWriter(fs.NewReal())

	return prince.WriteManifest(writer, path, manifest)
}

// openSink resolves where candidate output goes: stdout's underlying
// writer (via o), or an append-mode file when --output-file is set.
func openSink(o *IO, outputFile string) (io.Writer, func(), error) {
	if outputFile == "" {
		return o.RawOut(), func() {}, nil
	}

	f, err := OpenOutputFile(fs.NewReal(), outputFile)
	if err != nil {
		return nil, nil, err
	}

	return f, func() { _ = f.Close() }, nil
}
