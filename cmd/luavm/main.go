// cmd/luavm/main.go
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"luavm/internal/heap"
	"luavm/internal/interp"
	"luavm/internal/loader"
	"luavm/internal/rterrors"
	"luavm/internal/stdlib"
)

const VERSION = "0.1.0"

// commandAliases mirrors the teacher driver's short-form aliases, trimmed
// to the handful of subcommands this thin wrapper actually offers: loading
// and executing a prebuilt chunk is the whole job, everything else (a real
// compiler front end, a REPL, a debugger) is out of scope for the core.
var commandAliases = map[string]string{
	"r": "run",
	"v": "version",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		showUsage()
	case "--version", "-v", "version":
		fmt.Printf("luavm %s\n", VERSION)
	case "run":
		runCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`luavm - register VM runtime for compiled chunks

Usage:
  luavm run [--leak-all] [--stats] <chunk-file>
  luavm version

The loader only understands luavm's own binary chunk format (see
internal/loader): there is no source-to-bytecode compiler bundled with
this build.`)
}

func runCommand(args []string) {
	leakAll := false
	showStats := false
	var path string
	for _, a := range args {
		switch a {
		case "--leak-all":
			leakAll = true
		case "--stats":
			showStats = true
		default:
			path = a
		}
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "run: missing chunk file")
		os.Exit(1)
	}

	chunk, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("reading %s: %v", path, err)
	}

	h := heap.New()
	vm := interp.NewVM(h)
	stdlib.Install(vm)

	proto, chunkID, err := (loader.BinaryLoader{}).Load(chunk, vm.Strings())
	if err != nil {
		log.Fatalf("loading %s (chunk %s): %v", path, chunkID, err)
	}

	closure := interp.NewLuaClosure(h, proto, nil)
	_, err = vm.Call(closure, nil)

	if leakAll {
		h.LeakAll()
	} else if showStats {
		vm.Collect()
	}

	if err != nil {
		report(path, err)
		os.Exit(1)
	}

	if showStats {
		printStats(h)
	}
}

// report renders a runtime error the way the reference interpreter's own
// driver does: message, then a stack traceback, one frame per line.
// RuntimeError.Error() already renders that shape; anything else (a
// loader or host-side failure) is printed as a bare message. The
// traceback body is dimmed when stderr is a real terminal.
func report(source string, err error) {
	rt, ok := err.(*rterrors.RuntimeError)
	if !ok {
		fmt.Fprintf(os.Stderr, "luavm: %s: %s\n", source, err)
		return
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "luavm: %s: %s\n\x1b[2mstack traceback:%s\x1b[0m\n",
			source, rt.Cause, tracebackLines(rt))
		return
	}
	fmt.Fprintf(os.Stderr, "luavm: %s: %s\n", source, err)
}

func tracebackLines(rt *rterrors.RuntimeError) string {
	var sb strings.Builder
	for _, f := range rt.Traceback {
		if f.MainChunk {
			sb.WriteString("\n\tin main chunk")
		} else {
			fmt.Fprintf(&sb, "\n\tin function <%s:%d>", f.Source, f.Line)
		}
	}
	return sb.String()
}

func printStats(h *heap.Heap) {
	s := h.Stat()
	fmt.Printf("heap: %s allocated, %s freed, %s live across %d cycle(s)\n",
		humanize.Comma(int64(s.Allocated)), humanize.Comma(int64(s.Freed)),
		humanize.Comma(int64(s.Live)), s.Cycles)
}
