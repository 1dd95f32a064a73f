package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mbmigrate/internal/apply"
	"mbmigrate/internal/config"
	"mbmigrate/internal/metabase"
	"mbmigrate/internal/output"
	"mbmigrate/internal/report"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	dryRun     bool
	reportDir  string
	format     string
}

// app carries what a command needs once flags and config are loaded.
type app struct {
	opts      globalOptions
	cfg       *config.Config
	logger    *slog.Logger
	formatter output.Formatter
	stdout    io.Writer
	stderr    io.Writer
}

// errItemsFailed makes the process exit non-zero when some items failed.
var errItemsFailed = errors.New("some items failed")

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:          "mbmigrate",
		Short:        "Metabase maintenance tool for the Exasol to StarRocks migration",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.opts.configPath, "config", "c", "", "Path to the config file (default "+config.DefaultFile+" when present)")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	flags.BoolVarP(&a.opts.dryRun, "dry-run", "d", false, "Compute and report changes without writing to Metabase")
	flags.StringVar(&a.opts.reportDir, "report-dir", "", "Directory for the JSON run report (overrides config)")
	flags.StringVarP(&a.opts.format, "format", "f", "", "Output format: json or summary")

	rootCmd.AddCommand(
		newRemapCmd(a),
		newFiltersCmd(a),
		newBracketsCmd(a),
		newTranslateCmd(a),
		newMetricsCmd(a),
		newRestoreCmd(a),
		newVerifyMappingCmd(a),
		newCompareTablesCmd(a),
	)
	return rootCmd
}

// load reads the config file and applies flag overrides.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return err
	}
	if a.opts.logLevel != "" {
		cfg.LogLevel = a.opts.logLevel
	}
	if a.opts.reportDir != "" {
		cfg.Report.Dir = a.opts.reportDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	formatter, err := output.NewFormatter(a.opts.format)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(a.stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	a.formatter = formatter
	return nil
}

// printInfo writes progress text. With JSON output it goes to stderr so that
// stdout stays machine readable.
func (a *app) printInfo(msg string) {
	_, _ = fmt.Fprintln(a.progress(), msg)
}

func (a *app) progress() io.Writer {
	if strings.EqualFold(strings.TrimSpace(a.opts.format), string(output.FormatJSON)) {
		return a.stderr
	}
	return a.stdout
}

// session logs in to Metabase with the configured credentials.
func (a *app) session(ctx context.Context) (*metabase.Session, error) {
	if err := a.cfg.RequireMetabase(); err != nil {
		return nil, err
	}
	c := metabase.NewClient(a.cfg.Metabase.BaseURL,
		metabase.WithTimeout(a.cfg.Metabase.Timeout.Duration),
		metabase.WithRateLimit(a.cfg.Metabase.RequestsPerSecond),
		metabase.WithLogger(a.logger),
	)
	if token := a.cfg.Metabase.SessionToken; token != "" {
		a.logger.Debug("using configured session token", "url", a.cfg.Metabase.BaseURL)
		return metabase.NewSession(c, token), nil
	}
	a.logger.Debug("logging in", "url", a.cfg.Metabase.BaseURL, "user", a.cfg.Metabase.Username)
	return c.Login(ctx, a.cfg.Metabase.Username, a.cfg.Metabase.Password)
}

// run sends ids through transform and finishes the report.
func (a *app) run(ctx context.Context, store apply.Store, kind apply.Kind, rep *report.Report, ids []int64, transform apply.Transform) error {
	return a.runWith(ctx, store, apply.Options{Kind: kind}, rep, ids, transform)
}

// runWith is run with explicit applier options. DryRun, Out and Logger are
// always taken from rep and a.
func (a *app) runWith(ctx context.Context, store apply.Store, opts apply.Options, rep *report.Report, ids []int64, transform apply.Transform) error {
	opts.DryRun = rep.DryRun
	opts.Out = a.progress()
	opts.Logger = a.logger
	applier := apply.NewApplier(store, transform, opts)
	runErr := applier.Run(ctx, rep, ids)
	if err := a.finish(rep); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if rep.HasFailures() {
		return fmt.Errorf("%w: %d of %d", errItemsFailed, rep.Summary.Failed, rep.Summary.Processed)
	}
	return nil
}

// finish prints the report in the selected format and saves it.
func (a *app) finish(rep *report.Report) error {
	formatted, err := a.formatter.FormatReport(rep)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, _ = fmt.Fprint(a.stdout, formatted)
	return a.saveReport(rep)
}

func (a *app) saveReport(rep *report.Report) error {
	path, err := rep.Save(a.cfg.Report.Dir)
	if err != nil {
		return err
	}
	a.printInfo(fmt.Sprintf("Report saved to %s", path))
	return nil
}

// target is what a command works on: the cards of dashboards, or cards and
// metrics by id.
type target struct {
	kind string
	ids  []int64
}

const (
	targetDashboard = "dashboard"
	targetCard      = "card"
	targetMetric    = "metric"
)

// parseTarget reads "<kind> <id>..." arguments.
func parseTarget(args []string, kinds ...string) (target, error) {
	if len(args) < 2 {
		return target{}, fmt.Errorf("expected <%s> <id>...", strings.Join(kinds, "|"))
	}
	kind := strings.ToLower(args[0])
	valid := false
	for _, k := range kinds {
		if k == kind {
			valid = true
			break
		}
	}
	if !valid {
		return target{}, fmt.Errorf("unsupported target %q; use %s", args[0], strings.Join(kinds, " or "))
	}
	ids, err := parseIDs(args[1:])
	if err != nil {
		return target{}, err
	}
	return target{kind: kind, ids: ids}, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, s := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// name is used in the report file name, for example "dashboard_42".
func (t target) name() string {
	parts := []string{t.kind}
	for _, id := range t.ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, "_")
}

// cardIDs expands dashboards to their cards. Card and metric targets are returned as is.
func (a *app) cardIDs(ctx context.Context, sess *metabase.Session, t target) ([]int64, error) {
	if t.kind != targetDashboard {
		return t.ids, nil
	}
	var out []int64
	seen := make(map[int64]struct{})
	for _, id := range t.ids {
		dash, err := sess.Dashboard(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch dashboard %d: %w", id, err)
		}
		ids, skipped, err := apply.DashboardCardIDs(dash)
		if err != nil {
			return nil, fmt.Errorf("dashboard %d: %w", id, err)
		}
		a.printInfo(fmt.Sprintf("Dashboard %d %q: %d cards (%d without a card skipped)", id, dash.StringAt("name"), len(ids), skipped))
		for _, cid := range ids {
			if _, dup := seen[cid]; dup {
				continue
			}
			seen[cid] = struct{}{}
			out = append(out, cid)
		}
	}
	return out, nil
}

func (t target) applyKind() apply.Kind {
	if t.kind == targetMetric {
		return apply.KindMetric
	}
	return apply.KindCard
}
