// Command pggraphql introspects a Postgres database, builds a GraphQL schema
// for it and either prints the schema or executes one request against it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/graphql-go/graphql"
	"github.com/spf13/pflag"

	"pg-graphql/internal/app"
	"pg-graphql/internal/config"
	"pg-graphql/internal/gqlrequest"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

// errRequestFailed marks a request whose result carried errors.
var errRequestFailed = errors.New("request completed with errors")

type cliOptions struct {
	version     bool
	printSchema bool
	query       string
	queryFile   string
	variables   string
	operation   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if err != nil {
		if !errors.Is(err, errRequestFailed) {
			slog.Error("pggraphql failed", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
}

func newFlagSet() (*pflag.FlagSet, *cliOptions) {
	fs := pflag.NewFlagSet("pggraphql", pflag.ContinueOnError)
	opts := &cliOptions{}
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	fs.BoolVar(&opts.printSchema, "print-schema", false, "Print the schema in SDL and exit")
	fs.StringVar(&opts.query, "query", "", "GraphQL document to execute")
	fs.StringVar(&opts.queryFile, "query-file", "", "File containing the GraphQL document (- for stdin)")
	fs.StringVar(&opts.variables, "variables", "", "Variables as a JSON object, or @path to read them from a file")
	fs.StringVar(&opts.operation, "operation", "", "Operation to run when the document has several")
	config.DefineFlags(fs)
	return fs, opts
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs, opts := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.version {
		fmt.Fprintf(stdout, "pggraphql %s (%s)\n", Version, Commit)
		return nil
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" || cfg.Observability.ServiceVersion == "dev" {
		cfg.Observability.ServiceVersion = Version
	}
	if err := validate(cfg); err != nil {
		return err
	}

	var env gqlrequest.Envelope
	if !opts.printSchema {
		if env, err = readRequest(opts, stdin); err != nil {
			return err
		}
	}

	logger, providers, err := app.InitTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, logger, providers)
	if err != nil {
		return err
	}
	defer func() {
		if cfg.Output.MetricsFile != "" && providers != nil && providers.Meter != nil {
			if err := writeMetricsFile(a, cfg.Output.MetricsFile); err != nil {
				logger.Warn("failed to write metrics", slog.String("error", err.Error()))
			}
		}
		_ = a.Shutdown(context.Background())
	}()

	if err := a.Init(ctx); err != nil {
		return err
	}

	if cfg.Output.SDLFile != "" {
		if err := os.WriteFile(cfg.Output.SDLFile, []byte(a.SDL()), 0o644); err != nil {
			return fmt.Errorf("failed to write schema: %w", err)
		}
		logger.Info("schema written", slog.String("path", cfg.Output.SDLFile))
	}
	if opts.printSchema {
		if cfg.Output.SDLFile == "" {
			_, err = io.WriteString(stdout, a.SDL())
		}
		return err
	}

	result, err := a.Execute(ctx, env)
	if err != nil {
		return err
	}
	return writeResult(stdout, result)
}

func validate(cfg *config.Config) error {
	result := cfg.Validate()
	for _, warn := range result.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if result.HasErrors() {
		for _, err := range result.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed: %s", result.Error())
	}
	return nil
}

// readRequest assembles the request envelope from the CLI flags.
func readRequest(opts *cliOptions, stdin io.Reader) (gqlrequest.Envelope, error) {
	query := opts.query
	switch {
	case query != "" && opts.queryFile != "":
		return gqlrequest.Envelope{}, errors.New("--query and --query-file are mutually exclusive")
	case opts.queryFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return gqlrequest.Envelope{}, fmt.Errorf("failed to read query from stdin: %w", err)
		}
		query = string(data)
	case opts.queryFile != "":
		data, err := os.ReadFile(opts.queryFile)
		if err != nil {
			return gqlrequest.Envelope{}, fmt.Errorf("failed to read query file: %w", err)
		}
		query = string(data)
	}
	if strings.TrimSpace(query) == "" {
		return gqlrequest.Envelope{}, errors.New("nothing to do: pass --print-schema, --query or --query-file")
	}

	var variables []byte
	if path, ok := strings.CutPrefix(opts.variables, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return gqlrequest.Envelope{}, fmt.Errorf("failed to read variables file: %w", err)
		}
		variables = data
	} else if opts.variables != "" {
		variables = []byte(opts.variables)
	}
	return gqlrequest.NewEnvelope(query, opts.operation, variables), nil
}

// writeResult prints result as indented JSON and reports errRequestFailed when it carries errors.
func writeResult(w io.Writer, result *graphql.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if result.HasErrors() {
		return errRequestFailed
	}
	return nil
}

func writeMetricsFile(a *app.App, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := a.WriteMetrics(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
