package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/metrics"
	"github.com/rendis/flowcheck/internal/report"
	"github.com/rendis/flowcheck/internal/rules"
	"github.com/rendis/flowcheck/internal/validation"
)

// app carries the process streams and the resolved configuration shared by
// every command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	configPath string
	query      string
	cfg        Config
	logger     *slog.Logger
	recorder   *metrics.Recorder
	jq         *report.Query
}

func newApp(stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		getenv: getenv,
		logger: logging.Discard(),
		jq:     report.NewQuery(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	var flags Config

	root := &cobra.Command{
		Use:   "flowcheck",
		Short: "Validate n8n workflow documents without running them",
		Long: `flowcheck checks n8n workflow JSON for structural, configuration,
expression and AI topology problems, and reports errors, warnings and
suggestions as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, flags)
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "settings file (default ~/.flowcheck/settings.yaml)")
	pf.StringVar(&flags.Catalog, "catalog", "", "libSQL catalog database (default: builtin catalog)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.LogFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&flags.Profile, "profile", "", "validation profile: minimal, runtime, ai-friendly, strict")
	pf.StringVar(&flags.RulesFile, "rules", "", "YAML file with additional CEL policies")
	pf.IntVar(&flags.FetchConcurrency, "fetch-concurrency", 0, "concurrent catalog lookups per run")
	pf.StringVarP(&a.query, "query", "q", "", "jq filter applied to the JSON output")

	root.AddCommand(
		newValidateCmd(a),
		newConnectionsCmd(a),
		newExpressionsCmd(a),
		newNodeCmd(a),
		newDiagramCmd(a),
		newServeCmd(a),
		newCatalogCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup resolves the configuration and builds the logger. Flags override
// every other layer, but only when set.
func (a *app) setup(cmd *cobra.Command, flags Config) error {
	cfg, err := loadConfig(a.configPath, a.getenv)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	changed := cmd.Flags().Changed
	if changed("catalog") {
		cfg.Catalog = flags.Catalog
	}
	if changed("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if changed("log-format") {
		cfg.LogFormat = flags.LogFormat
	}
	if changed("profile") {
		cfg.Profile = flags.Profile
	}
	if changed("rules") {
		cfg.RulesFile = flags.RulesFile
	}
	if changed("fetch-concurrency") {
		cfg.FetchConcurrency = flags.FetchConcurrency
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	logger, err := logging.New(a.stderr, cfg.LogFormat, level)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	a.logger = logger
	return nil
}

// profile returns the configured rule profile, or def when none is set.
func (a *app) profile(def rules.Profile) (rules.Profile, error) {
	return rules.ProfileOr(a.cfg.Profile, def)
}

// openCatalog returns the configured catalog and a release func. Without a
// catalog path the builtin descriptors are used.
func (a *app) openCatalog(ctx context.Context) (catalog.Catalog, func(), error) {
	if a.cfg.Catalog == "" {
		mem, err := catalog.Builtin()
		if err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	}
	store, err := catalog.OpenLibSQLStore(ctx, catalogDSN(a.cfg.Catalog))
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("closing catalog", slog.String("error", err.Error()))
		}
	}
	return catalog.NewCached(store), release, nil
}

// buildEngine loads the builtin policies plus the configured rules file.
func (a *app) buildEngine() (*rules.Engine, error) {
	policies := rules.BuiltinPolicies()
	if a.cfg.RulesFile != "" {
		extra, err := rules.LoadPolicyFile(a.cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		policies = append(policies, extra...)
	}
	set, err := rules.NewPolicySet(policies)
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(rules.WithPolicies(set), rules.WithLogger(a.logger))
}

// buildValidator wires catalog, rule engine, logger and metrics recorder.
func (a *app) buildValidator(ctx context.Context) (*validation.Validator, func(), error) {
	cat, release, err := a.openCatalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	engine, err := a.buildEngine()
	if err != nil {
		release()
		return nil, nil, err
	}
	opts := []validation.Option{
		validation.WithLogger(a.logger),
		validation.WithEngine(engine),
		validation.WithFetchConcurrency(a.cfg.FetchConcurrency),
	}
	if a.recorder != nil {
		opts = append(opts, validation.WithObserver(a.recorder))
	}
	v, err := validation.New(cat, opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return v, release, nil
}
