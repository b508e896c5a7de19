// ABOUTME: CLI flag parsing using stdlib flag package
// ABOUTME: Supports -config, -model, -base-url, -system, -replay, -format, -markdown, -verbose, -no-color

package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

type cliArgs struct {
	config   string
	model    string
	baseURL  string
	system   string
	replay   string
	format   string
	markdown bool
	verbose  bool
	noColor  bool
	version  bool
	prompt   string
}

func parseFlags(argv []string, stderr io.Writer) (cliArgs, error) {
	var args cliArgs

	fs := flag.NewFlagSet("chatstream", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&args.config, "config", "", "Config file (default: ~/.chatstream/config.yaml merged with ./.chatstream/config.yaml)")
	fs.StringVar(&args.model, "model", "", "Model to use (e.g., gpt-4o)")
	fs.StringVar(&args.baseURL, "base-url", "", "Custom API base URL")
	fs.StringVar(&args.system, "system", "", "System prompt")
	fs.StringVar(&args.replay, "replay", "", "Replay a captured SSE response file instead of calling the API")
	fs.StringVar(&args.format, "format", "text", "Output format: text, json, stream-json")
	fs.BoolVar(&args.markdown, "markdown", false, "Render the final text as markdown (text format only)")
	fs.BoolVar(&args.verbose, "verbose", false, "Debug logging and diagnostics")
	fs.BoolVar(&args.noColor, "no-color", false, "Disable styled output")
	fs.BoolVar(&args.version, "version", false, "Show version and exit")

	if err := fs.Parse(argv); err != nil {
		return cliArgs{}, err
	}

	switch args.format {
	case "text", "json", "stream-json":
	default:
		return cliArgs{}, fmt.Errorf("unknown -format %q", args.format)
	}

	args.prompt = strings.TrimSpace(strings.Join(fs.Args(), " "))
	return args, nil
}
