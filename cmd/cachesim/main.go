// cachesim is a REPL driver for the engine package: it builds a Cache from
// a config file (or defaults) and lets you submit synthetic requests
// through PrepareClines interactively.
//
// Usage:
//
//	cachesim [--config file.hujson] [--core-lines N] [--seed N]
//
// Commands (in REPL):
//
//	touch <core-line> [len]   Submit a read request covering [core-line, core-line+len)
//	write <core-line> [len]   Same, but a write request (no sector is marked dirty)
//	stats                     Show free-line count and fallback-error counter
//	evict <n>                 Submit an n-line read request at a random core line in
//	                          partition 0; lines are evicted only when it is full
//	config                    Show the free-line count (configuration values are not printed)
//	help                      Show this help
//	exit / quit / q           Exit
package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/blockcache-go/engine/pkg/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.String("config", "", "path to a HuJSON config file (defaults to engine.DefaultConfig())")
		coreLines  = pflag.Int64("core-lines", 1<<20, "size of the simulated core device, in core lines")
		seed       = pflag.Int64("seed", 1, "seed for the synthetic request generator")
	)
	pflag.Parse()

	cfg := engine.DefaultConfig()
	if *configPath != "" {
		loaded, err := engine.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	cache := engine.NewCache(cfg)

	r := &REPL{
		cache:     cache,
		coreLines: *coreLines,
		rng:       rand.New(rand.NewSource(*seed)),
		queue:     engine.NewQueue(),
	}
	return r.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	cache     *engine.Cache
	coreLines int64
	rng       *rand.Rand
	liner     *liner.State
	queue     *engine.Queue
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cachesim_history")
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

	fmt.Printf("cachesim - engine pipeline driver (core_lines=%d)\n", r.coreLines)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("cachesim> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
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
			r.saveHistory()
			fmt.Println("Bye!")
			return nil

		case "help", "?":
			r.printHelp()

		case "touch":
			r.cmdTouch(args, engine.Read)

		case "write":
			r.cmdTouch(args, engine.Write)

		case "stats":
			r.cmdStats()

		case "evict":
			r.cmdEvict(args)

		case "config":
			r.cmdConfig()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}

		r.drainQueue()
	}

	r.saveHistory()
	return nil
}

// drainQueue runs any resumed requests the cache-line concurrency manager
// has pushed onto the REPL's queue since the last command - the stand-in
// for a production executor's worker pool.
func (r *REPL) drainQueue() {
	r.queue.Kick(true, r.cache.RunRequest)
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
	commands := []string{"touch", "write", "stats", "evict", "config", "help", "exit", "quit", "q"}
	var out []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}
	return out
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  touch <core-line> [len]   Submit a read request")
	fmt.Println("  write <core-line> [len]   Submit a write request")
	fmt.Println("  stats                     Show free-line count and fallback-error counter")
	fmt.Println("  evict <n>                 Submit an n-line request; evicts only when partition 0 is full")
	fmt.Println("  config                    Show the free-line count")
	fmt.Println("  help                      Show this help")
	fmt.Println("  exit / quit / q           Exit")
}

func (r *REPL) cmdTouch(args []string, dir engine.Direction) {
	if len(args) < 1 {
		fmt.Println("usage: touch <core-line> [len]")
		return
	}

	coreLine, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("bad core-line: %v\n", err)
		return
	}

	lineCount := uint32(1)
	if len(args) >= 2 {
		n, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			fmt.Printf("bad length: %v\n", err)
			return
		}
		lineCount = uint32(n)
	}

	req := r.cache.NewRequest(0, engine.CoreLine(coreLine), lineCount, dir)
	req.PartID = 0
	req.EngineCBs = syncCallbacks{}
	req.IOQueue = r.queue
	req.IOIf = engine.NewIOInterface(onResumedDispatch, onResumedDispatch)

	lock, err := r.cache.PrepareClines(req)
	switch {
	case err == nil:
		fmt.Printf("prepared: lock=%d hits=%d inserts=%d seq=%d\n", lock, req.Info.HitNo, req.Info.InsertNo, req.Info.SeqNo)
		// The REPL never dispatches real I/O to clear this, so release the
		// cache-line lock immediately - otherwise a repeat touch of the same
		// core line would contend against this command forever.
		r.cache.UnlockClines(req)
	case err == engine.ErrNoLock:
		fmt.Println("prepared: deferred (cache line lock contended)")
	default:
		fmt.Printf("mapping error: %v\n", err)
	}
}

func (r *REPL) cmdStats() {
	snap := r.cache.StatsSnapshot()
	fmt.Printf("free_lines=%d fallback_pt_errors=%d last_access_ms=%d\n",
		snap.FreeLines, snap.FallbackPTErrorCounter, snap.LastAccessMs)
}

func (r *REPL) cmdEvict(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: evict <n>")
		return
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("bad count: %v\n", err)
		return
	}

	// A request entirely of synthetic misses gives Evict() somewhere to
	// write its REMAPPED victims; discard it afterward.
	req := r.cache.NewRequest(0, engine.CoreLine(r.rng.Int63n(r.coreLines)), uint32(n), engine.Read)
	req.PartID = 0
	req.EngineCBs = syncCallbacks{}
	req.IOQueue = r.queue
	req.IOIf = engine.NewIOInterface(onResumedDispatch, onResumedDispatch)

	_, err = r.cache.PrepareClines(req)
	if err != nil && err != engine.ErrNoLock {
		fmt.Printf("eviction drive failed: %v\n", err)
		return
	}
	if err == nil {
		r.cache.UnlockClines(req)
	}
	fmt.Printf("drove %d lines through prepare/evict\n", n)
}

func (r *REPL) cmdConfig() {
	snap := r.cache.StatsSnapshot()
	fmt.Printf("free_lines=%d (snapshot)\n", snap.FreeLines)
}

// onResumedDispatch is what runs once a deferred request's cache-line lock
// is finally granted and refresh (engine's resume.go) re-verifies the
// mapping still holds. There's nothing left to do here but report it - a
// real I/O-if would now issue the actual device read/write.
func onResumedDispatch(req *engine.Request) {
	if req.Err != nil {
		fmt.Printf("\nresumed request diverged: %v\n", req.Err)
		return
	}
	fmt.Printf("\nresumed: hits=%d inserts=%d seq=%d\n", req.Info.HitNo, req.Info.InsertNo, req.Info.SeqNo)
}

// syncCallbacks is the simplest EngineCallbacks: always take a write lock,
// and resume synchronously through the cache's own run loop on a deferred
// grant. Good enough for a single-threaded REPL.
type syncCallbacks struct{}

func (syncCallbacks) GetLockType(*engine.Request) engine.LockType { return engine.LockWrite }

func (syncCallbacks) Resume(req *engine.Request) {
	req.Cache.OnResume(req)
}
