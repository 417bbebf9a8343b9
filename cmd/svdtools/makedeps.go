package main

import (
	"errors"
	"flag"
	"io"
	"log"

	"svdtools/internal/config"
	"svdtools/internal/makedeps"
)

func runMakedeps(cfg *config.Config, args []string, stderr io.Writer, logger *log.Logger) int {
	root := cfg.Root
	flags := flag.NewFlagSet("makedeps", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&root, "root", root, "directory the YAML file and its includes must live under; relative paths start here (default: unconfined)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if flags.NArg() != 2 {
		logger.Print("makedeps: expected YAML_FILE DEPS_FILE")
		return exitUsage
	}

	fsys, err := openFS(root)
	if err != nil {
		logger.Print(err)
		return exitUsage
	}
	yamlFile, depsFile := flags.Arg(0), flags.Arg(1)
	if err := makedeps.New(fsys).WriteFile(yamlFile, depsFile); err != nil {
		logger.Printf("makedeps: %v", err)
		return exitFailure
	}
	return exitOK
}
