package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"

	"svdtools/internal/batch"
	"svdtools/internal/cache"
	"svdtools/internal/config"
	"svdtools/internal/interrupts"
	"svdtools/internal/safeio"
	"svdtools/internal/scan"
	"svdtools/internal/svd"
)

var errNoPaths = errors.New("interrupts: at least one PATH is required")

type interruptsOptions struct {
	root    string
	gaps    bool
	strict  bool
	format  interrupts.Format
	workers int
	noCache bool
	verbose bool
	paths   []string
}

func parseInterruptsFlags(cfg *config.Config, args []string, stderr io.Writer) (interruptsOptions, error) {
	opts := interruptsOptions{
		root:    cfg.Root,
		gaps:    cfg.Gaps,
		strict:  cfg.Strict,
		format:  cfg.Format,
		workers: cfg.Workers,
		verbose: cfg.Verbose,
	}
	var noGaps bool
	flags := flag.NewFlagSet("interrupts", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.root, "root", opts.root, "directory every input must live under; relative paths start here (default: unconfined)")
	flags.BoolVar(&opts.gaps, "gaps", opts.gaps, "append the Gaps line")
	flags.BoolVar(&noGaps, "no-gaps", false, "omit the Gaps line")
	flags.BoolVar(&opts.strict, "strict", opts.strict, "fail on duplicate interrupt numbers")
	flags.Var(&opts.format, "format", "output format: text, json or yaml")
	flags.IntVar(&opts.workers, "workers", opts.workers, "documents parsed in parallel (0 = GOMAXPROCS)")
	flags.BoolVar(&opts.noCache, "no-cache", false, "skip the persistent device cache")
	flags.BoolVar(&opts.verbose, "v", opts.verbose, "log cache statistics")
	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	if noGaps {
		opts.gaps = false
	}
	if flags.NArg() == 0 {
		return opts, errNoPaths
	}
	opts.paths = flags.Args()
	return opts, nil
}

func runInterrupts(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer, logger *log.Logger) int {
	opts, err := parseInterruptsFlags(cfg, args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		// flag has already reported its own parse errors
		if errors.Is(err, errNoPaths) {
			logger.Print(err)
		}
		return exitUsage
	}

	fsys, err := openFS(opts.root)
	if err != nil {
		logger.Print(err)
		return exitUsage
	}
	paths, err := expandInputs(fsys, opts.paths)
	if err != nil {
		logger.Print(err)
		return exitFailure
	}

	devices, err := openDevices(cfg.Cache, !opts.noCache, logger)
	if err != nil {
		logger.Print(err)
		return exitFailure
	}
	var parserOpts []svd.Option
	if opts.strict {
		parserOpts = append(parserOpts, svd.WithStrictDuplicates())
	}
	parser := svd.NewParser(parserOpts...)

	results := batch.Run(ctx, paths, opts.workers, func(ctx context.Context, path string) (*svd.Device, error) {
		content, err := fsys.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dev, err := devices.Parse(ctx, parser, content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return dev, nil
	})

	code := exitOK
	written := 0
	for i, res := range results {
		path := paths[i]
		if res.Err != nil {
			logger.Print(res.Err)
			code = exitFailure
			continue
		}
		dev := res.Value
		for _, ow := range dev.Overwrites {
			logger.Printf("%s: interrupt %d %s (in %s) replaced by %s (in %s)",
				path, ow.Number, ow.Previous.Name, ow.Previous.Peripheral, ow.Current.Name, ow.Current.Peripheral)
		}
		if err := writeReport(stdout, opts.format, dev, path, opts.gaps, len(paths) > 1, written); err != nil {
			logger.Printf("write report: %v", err)
			return exitFailure
		}
		written++
	}

	if opts.verbose {
		st := devices.Stats()
		logger.Printf("cache: %d memory hits, %d tier hits, %d misses, %d tier errors",
			st.MemoryHits, st.TierHits, st.Misses, st.TierErrors)
	}
	return code
}

func writeReport(w io.Writer, format interrupts.Format, dev *svd.Device, path string, gaps, multi bool, written int) error {
	switch {
	case format == interrupts.FormatText && multi:
		if _, err := fmt.Fprintf(w, "== %s (%s)\n", dev.Name, path); err != nil {
			return err
		}
	case format == interrupts.FormatYAML && written > 0:
		if _, err := io.WriteString(w, "---\n"); err != nil {
			return err
		}
	}
	source := ""
	if multi {
		source = path
	}
	return interrupts.Write(w, format, dev.Name, source, interrupts.Build(dev.Interrupts, gaps))
}

// expandInputs replaces directory arguments with the SVD files below them
// and drops repeated files.
func expandInputs(fsys *safeio.FS, args []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(display, resolved string) {
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		out = append(out, display)
	}
	for _, arg := range args {
		resolved, err := fsys.Resolve(arg)
		if err != nil {
			return nil, err
		}
		info, err := fsys.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg, resolved)
			continue
		}
		found, err := scan.FindSVD(resolved, scan.Options{})
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("%s: no .svd files found", arg)
		}
		for _, p := range found {
			add(p, p)
		}
	}
	return out, nil
}

// openDevices builds the device cache. Persistent tiers that cannot be
// opened are skipped with a warning.
func openDevices(cfg config.CacheConfig, persistent bool, logger *log.Logger) (*cache.Devices, error) {
	var tiers []cache.Store
	if persistent && cfg.Enabled {
		disk, err := cache.NewDiskStore(cache.DiskConfig{
			Root:       cfg.Dir,
			MaxEntries: cfg.MaxEntries,
			MaxBytes:   cfg.MaxBytes,
			TTL:        cfg.TTL,
		})
		if err != nil {
			logger.Printf("disk cache disabled: %v", err)
		} else {
			tiers = append(tiers, disk)
		}
	}
	if persistent && cfg.S3.Enabled {
		s3, err := cache.NewS3Store(cache.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			logger.Printf("s3 cache disabled: %v", err)
		} else {
			tiers = append(tiers, s3)
		}
	}
	return cache.NewDevices(cfg.MemoryEntries, tiers...)
}
