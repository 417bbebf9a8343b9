package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"svdtools/internal/config"
	"svdtools/internal/safeio"
)

// version is overridden at link time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("svdtools: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "svdtools: ", 0)
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "svdtools %s\n", version)
		return exitOK
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	case "patch":
		logger.Print("patch: applying YAML patches is not supported")
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Print(err)
		return exitUsage
	}

	switch cmd {
	case "interrupts":
		return runInterrupts(ctx, cfg, rest, stdout, stderr, logger)
	case "makedeps":
		return runMakedeps(cfg, rest, stderr, logger)
	default:
		logger.Printf("unknown command %q", cmd)
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage:
  svdtools interrupts [--root DIR] [--gaps|--no-gaps] [--strict] [--format text|json|yaml] [--no-cache] PATH...
  svdtools makedeps [--root DIR] YAML_FILE DEPS_FILE
  svdtools patch YAML_FILE
  svdtools version
`)
}

// openFS confines reads to root when one is set; otherwise paths are used as
// given, relative to the working directory.
func openFS(root string) (*safeio.FS, error) {
	if strings.TrimSpace(root) == "" {
		return safeio.Unconfined(), nil
	}
	return safeio.New(root)
}
