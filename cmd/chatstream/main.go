// ABOUTME: Entry point for the chatstream CLI: streams one chat completion to the terminal
// ABOUTME: Loads config, registers the OpenAI-compatible provider, and prints events as they arrive

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/mauromedda/chatstream/internal/config"
	cslog "github.com/mauromedda/chatstream/internal/log"
	"github.com/mauromedda/chatstream/internal/mode/print"
	"github.com/mauromedda/chatstream/pkg/ai"
	"github.com/mauromedda/chatstream/pkg/ai/provider/openai"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	// errCancelled reports an interrupted stream.
	errCancelled = errors.New("cancelled")
	// errFailed reports a stream whose error was already printed.
	errFailed = errors.New("stream failed")
)

func main() {
	args, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if args.version {
		fmt.Printf("chatstream %s (%s) built %s\n", version, commit, date)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, args, env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, tty: isTerminal(os.Stdout)})
	stop()

	switch {
	case errors.Is(err, errCancelled):
		os.Exit(130)
	case errors.Is(err, errFailed):
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env holds the process streams so run can be exercised in tests.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	tty    bool
	width  int
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func terminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// run performs the initialization sequence and prints one stream.
func run(ctx context.Context, args cliArgs, e env) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	if lvl, ok := cslog.ParseLevel(cfg.LogLevel); ok {
		cslog.SetLevel(lvl)
	}
	if args.verbose {
		cslog.SetLevel(cslog.LevelDebug)
	}

	consumeOpts, err := consumeOptions(cfg)
	if err != nil {
		return err
	}

	var stream *ai.EventStream
	if args.replay != "" {
		f, err := os.Open(args.replay)
		if err != nil {
			return fmt.Errorf("opening replay file: %w", err)
		}
		cslog.Debug("replaying %s", args.replay)
		stream = openai.Consume(ctx, f, consumeOpts...)
	} else {
		prompt, err := readPrompt(args.prompt, e.stdin)
		if err != nil {
			return err
		}

		reg := ai.NewRegistry()
		if err := reg.Register(newProvider(cfg, consumeOpts)); err != nil {
			return err
		}
		if err := reg.Init(ctx); err != nil {
			return fmt.Errorf("initializing providers: %w", err)
		}
		defer func() {
			if err := reg.Dispose(); err != nil {
				cslog.Warn("disposing providers: %v", err)
			}
		}()

		provider, _ := reg.Provider("openai")
		stream = provider.Stream(ctx, &ai.Request{
			Model:       cfg.Model,
			System:      cfg.System,
			Messages:    []ai.Message{ai.NewTextMessage(ai.RoleUser, prompt)},
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	}

	width := e.width
	if width == 0 && e.tty {
		width = terminalWidth(os.Stdout)
	}
	resp := print.Run(stream, print.Config{
		OutputFormat: args.format,
		Markdown:     args.markdown,
		Color:        e.tty && !args.noColor,
		Verbose:      args.verbose,
		Width:        width,
		Stdout:       e.stdout,
		Stderr:       e.stderr,
	})

	switch resp.Outcome {
	case ai.OutcomeFailed:
		return fmt.Errorf("%w: %w", errFailed, resp.Err)
	case ai.OutcomeCancelled:
		return errCancelled
	default:
		return nil
	}
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(args cliArgs) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.config != "" {
		cfg, err = config.LoadFile(args.config)
	} else {
		cwd, _ := os.Getwd()
		cfg, err = config.Load(cwd)
	}
	if err != nil {
		return nil, err
	}

	if args.model != "" {
		cfg.Model = args.model
	}
	if args.baseURL != "" {
		cfg.BaseURL = args.baseURL
	}
	if args.system != "" {
		cfg.System = args.system
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func consumeOptions(cfg *config.Config) ([]openai.ConsumeOption, error) {
	sentinel, err := cfg.SentinelByte()
	if err != nil {
		return nil, err
	}
	return []openai.ConsumeOption{
		openai.WithBufferSize(cfg.Stream.BufferSize),
		openai.WithSentinel(sentinel),
		openai.WithMaxLineBytes(cfg.Stream.MaxLineBytes),
	}, nil
}

func newProvider(cfg *config.Config, consumeOpts []openai.ConsumeOption) *openai.Provider {
	return openai.New(cfg.APIKey, cfg.BaseURL,
		openai.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.AttemptTimeout),
		openai.WithStreamOptions(consumeOpts...),
	)
}

// readPrompt returns the prompt from the arguments, or from stdin when none given.
func readPrompt(fromArgs string, stdin io.Reader) (string, error) {
	if fromArgs != "" {
		return fromArgs, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("no prompt given")
	}
	return prompt, nil
}
