// Command pngine replays a compiled module file against a backend.
//
// Usage:
//
//	pngine run file.pngb [-backend native|cmdbuf] [-frames N] [-fps N]
//	pngine dump file.pngb
//
// run drives the module for N frames; with the cmdbuf backend each
// frame's serialized command stream is hex-dumped to stdout. dump
// disassembles the module's bytecode.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/gogpu/pngine"
	"github.com/gogpu/pngine/backend/cmdbuf"
	"github.com/gogpu/pngine/bytecode"
	"github.com/gogpu/pngine/pmod"
)

func main() {
	if len(os.Args) < 3 {
		usage()
	}
	cmd, path := os.Args[1], os.Args[2]

	data, err := os.ReadFile(path)
	if err != nil {
		fatal("read %s: %v", path, err)
	}

	switch cmd {
	case "run":
		run(data, os.Args[3:])
	case "dump":
		dump(data)
	default:
		usage()
	}
}

func run(data []byte, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	backendName := fs.String("backend", "cmdbuf", "backend to drive (native|cmdbuf)")
	frames := fs.Int("frames", 1, "number of frames to render")
	fps := fs.Float64("fps", 60, "frame rate used to derive frame times")
	verbose := fs.Bool("v", false, "enable info logging")
	_ = fs.Parse(args)

	if *verbose {
		pngine.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}
	if err := pngine.Init(); err != nil {
		fatal("init: %v", err)
	}
	defer pngine.Shutdown()

	var opts []pngine.Option
	var cb *cmdbuf.Backend
	if *backendName == "cmdbuf" {
		cb = cmdbuf.New(data)
		opts = append(opts, pngine.WithBackend(cb))
	} else {
		opts = append(opts, pngine.WithBackendName(*backendName))
	}

	anim, err := pngine.Create(data, opts...)
	if err != nil {
		fatal("create: %v", err)
	}
	defer anim.Destroy()

	for i := range *frames {
		t := float64(i) / *fps
		if code := anim.Render(t); code != pngine.CodeOK {
			fatal("frame %d: %s", i, code)
		}
		if cb != nil {
			stream, _ := cb.Drain()
			fmt.Printf("# frame %d (%d bytes)\n%s", i, len(stream), hex.Dump(stream))
		}
	}
	fmt.Fprintf(os.Stderr, "rendered %d frames, render counters %#x\n",
		anim.FrameCount(), anim.RenderCounters())
}

func dump(data []byte) {
	mod, err := pmod.Parse(data)
	if err != nil {
		fatal("parse: %v", err)
	}
	fmt.Printf("version %d, plugins %#02x, %d strings, %d data blobs, %d wgsl modules\n",
		mod.Version(), byte(mod.Plugins()), mod.NumStrings(), mod.NumData(), mod.NumWGSL())
	fmt.Print(bytecode.Disassemble(mod.Bytecode()))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pngine run|dump file.pngb [flags]")
	os.Exit(2)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "pngine: "+format+"\n", args...)
	os.Exit(1)
}
