package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/rankcrawl/internal/config"
	"github.com/nao1215/rankcrawl/internal/database"
	"github.com/nao1215/rankcrawl/internal/filter"
	rclog "github.com/nao1215/rankcrawl/internal/log"
	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/paginate"
	"github.com/nao1215/rankcrawl/internal/pipeline"
	"github.com/nao1215/rankcrawl/internal/planner"
	"github.com/nao1215/rankcrawl/internal/render"
	"github.com/nao1215/rankcrawl/internal/render/rodsession"
	"github.com/nao1215/rankcrawl/internal/report"
	"github.com/nao1215/rankcrawl/internal/robots"
	"github.com/nao1215/rankcrawl/internal/sink"
)

var (
	// errDisallowed is returned for a source whose robots.txt forbids
	// crawling its landing page.
	errDisallowed = errors.New("disallowed by robots.txt (use --ignore-robots to override)")

	// errIncompleteRun is returned when a run finished with failed or
	// abandoned tasks.
	errIncompleteRun = errors.New("incomplete run")
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [source...]",
		Short: "Crawl ranking sources and write their rankings to CSV",
		Long: `Crawl drives a headless browser through one or more ranking sources.

For every ranking page it selects the requested indicator in the filter
dropdown, extracts the university name and rank of each table row and
follows the pagination until the last page. Categorized sources are
planned from their landing page: every subject link becomes a task.

Sources are either built in (see 'rankcrawl sources'), defined in the
.rankcrawl configuration file, or given ad hoc with --url.

Examples:
  # Crawl the built-in GRAS 2024 subject rankings
  rankcrawl crawl gras-2024

  # Crawl two sources, two browser tabs at a time
  rankcrawl crawl --workers 2 arwu-2024 grsssd-2024

  # Crawl an arbitrary flat ranking page
  rankcrawl crawl --url https://www.shanghairanking.com/rankings/arwu/2023 -o arwu-2023.csv

  # Print the run summary as Markdown into a file
  rankcrawl crawl --markdown --summary report.md gras-2024`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Target flags
	cmd.Flags().String("url", "",
		"Crawl this landing page instead of named sources")
	cmd.Flags().String("layout", "",
		"Source layout: categorized or flat (default: source setting, flat for --url)")
	cmd.Flags().String("filter", "",
		"Dropdown option to select on every ranking page")
	cmd.Flags().String("pagination", "",
		"Pagination mode: next or load-more (default: source setting)")
	cmd.Flags().StringP("output", "o", "",
		"CSV output path (single source only; default: source setting)")

	// Crawl behavior flags
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent browser sessions")
	cmd.Flags().Duration("page-timeout", config.DefaultPageTimeout,
		"Timeout for page loads and page transitions")
	cmd.Flags().Duration("settle-timeout", config.DefaultSettleTimeout,
		"Timeout for dropdown and landing page waits")
	cmd.Flags().Duration("page-delay", config.DefaultPageDelay,
		"Minimum delay between page transitions of one task")
	cmd.Flags().Int("max-pages", 0,
		"Maximum pages per task (0 means no limit)")
	cmd.Flags().Bool("ignore-robots", false,
		"Skip the robots.txt check")

	// Browser flags
	cmd.Flags().Bool("headless", true,
		"Run the browser without a window")
	cmd.Flags().String("browser-bin", "",
		"Chrome/Chromium binary (default: auto-detect or download)")
	cmd.Flags().String("control-url", "",
		"DevTools URL of an already running browser")
	cmd.Flags().String("proxy", "",
		"Proxy server for browser traffic (e.g., socks5://127.0.0.1:1080)")
	cmd.Flags().Bool("no-sandbox", false,
		"Disable the Chrome sandbox (needed in some containers)")

	// History flags
	cmd.Flags().Bool("no-db", false,
		"Do not store the run in the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .rankcrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON summary (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown summary (mutually exclusive with --json)")
	cmd.Flags().StringP("summary", "s", "",
		"Write the run summary to the specified file (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	file, path, err := config.Load(cfg.ConfigFilePath)
	if err != nil {
		return err
	}

	logger := rclog.NewLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)
	if path != "" {
		logger.Debug("configuration file loaded", "path", path)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newCrawler(cfg, file, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
	c.pageDelaySet = cmd.Flags().Changed("page-delay")
	c.maxPagesSet = cmd.Flags().Changed("max-pages")
	return c.run(ctx)
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.URL, err = flags.GetString("url"); err != nil {
		return nil, err
	}
	if cfg.Layout, err = flags.GetString("layout"); err != nil {
		return nil, err
	}
	if cfg.Filter, err = flags.GetString("filter"); err != nil {
		return nil, err
	}
	if cfg.Pagination, err = flags.GetString("pagination"); err != nil {
		return nil, err
	}
	if cfg.Output, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.PageTimeout, err = flags.GetDuration("page-timeout"); err != nil {
		return nil, err
	}
	if cfg.SettleTimeout, err = flags.GetDuration("settle-timeout"); err != nil {
		return nil, err
	}
	if cfg.PageDelay, err = flags.GetDuration("page-delay"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.IgnoreRobots, err = flags.GetBool("ignore-robots"); err != nil {
		return nil, err
	}
	if cfg.Headless, err = flags.GetBool("headless"); err != nil {
		return nil, err
	}
	if cfg.BrowserBin, err = flags.GetString("browser-bin"); err != nil {
		return nil, err
	}
	if cfg.ControlURL, err = flags.GetString("control-url"); err != nil {
		return nil, err
	}
	if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.NoSandbox, err = flags.GetBool("no-sandbox"); err != nil {
		return nil, err
	}

	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("summary"); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Sources = args
	return cfg, nil
}

// browserLauncher starts a render backend. It returns the session factory
// and a function that shuts the backend down.
type browserLauncher func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (render.Factory, func() error, error)

// launchRod starts (or attaches to) a Chrome instance through go-rod.
func launchRod(ctx context.Context, cfg *config.Config, logger *slog.Logger) (render.Factory, func() error, error) {
	b, err := rodsession.Launch(ctx,
		rodsession.WithHeadless(cfg.Headless),
		rodsession.WithBinary(cfg.BrowserBin),
		rodsession.WithControlURL(cfg.ControlURL),
		rodsession.WithProxy(cfg.Proxy),
		rodsession.WithNoSandbox(cfg.NoSandbox),
		rodsession.WithNavigationTimeout(cfg.PageTimeout),
		rodsession.WithClickTimeout(cfg.SettleTimeout),
		rodsession.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}

// target is one resolved source of a crawl invocation.
type target struct {
	name       string
	src        config.SourceConfig
	crawlDelay time.Duration
}

// crawler runs one crawl invocation over its targets.
type crawler struct {
	cfg        *config.Config
	file       *config.File
	logger     *slog.Logger
	launch     browserLauncher
	httpClient *http.Client
	stdout     io.Writer
	stderr     io.Writer

	// gate checks every task URL against robots.txt. Nil when robots.txt
	// is ignored.
	gate pipeline.Gate

	// pageDelaySet and maxPagesSet record flags given explicitly, which
	// take precedence over source settings.
	pageDelaySet bool
	maxPagesSet  bool

	mu sync.Mutex
}

func newCrawler(cfg *config.Config, file *config.File, logger *slog.Logger, stdout, stderr io.Writer) *crawler {
	return &crawler{
		cfg:        cfg,
		file:       file,
		logger:     logger,
		launch:     launchRod,
		httpClient: &http.Client{Timeout: robots.DefaultTimeout},
		stdout:     stdout,
		stderr:     stderr,
	}
}

// run crawls every target in order. Failures of one source never stop
// the next one; all of them are joined into the returned error.
func (c *crawler) run(ctx context.Context) error {
	targets, err := resolveTargets(c.cfg, c.file)
	if err != nil {
		return err
	}

	var errs []error
	if !c.cfg.IgnoreRobots {
		checker := robots.NewChecker(
			robots.WithHTTPClient(c.httpClient),
			robots.WithLogger(c.logger),
		)
		c.gate = checker
		targets, errs = c.checkRobots(ctx, checker, targets)
		if len(targets) == 0 {
			return errors.Join(errs...)
		}
	}

	factory, shutdown, err := c.launch(ctx, c.cfg, c.logger)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("failed to start browser: %w", err))...)
	}
	defer func() {
		if err := shutdown(); err != nil {
			c.logger.Warn("failed to shut down browser", "error", err)
		}
	}()

	var db *database.RunDB
	if c.cfg.SaveToDB {
		db, err = database.Open(c.cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return errors.Join(append(errs, fmt.Errorf("failed to open database: %w", err))...)
		}
		defer db.Close()
		c.logger.Debug("database opened", "path", db.Path())
	}

	out, closeOut, err := openReportOutput(c.cfg.ReportFile, c.stdout)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	defer closeOut()
	w := newReportWriter(c.cfg, out)

	for _, t := range targets {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.name, context.Cause(ctx)))
			continue
		}
		if err := c.crawlSource(ctx, factory, db, w, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}

// checkRobots drops targets whose robots.txt disallows the landing page.
// A robots.txt that cannot be fetched only produces a warning. Task pages
// found by planning are checked again by the pipeline through c.gate.
func (c *crawler) checkRobots(ctx context.Context, checker *robots.Checker, targets []target) ([]target, []error) {

	var (
		allowed []target
		errs    []error
	)
	for _, t := range targets {
		ok, err := checker.Allowed(ctx, t.src.URL)
		if err != nil {
			c.logger.Warn("robots.txt check failed, continuing", "source", t.name, "error", err)
			allowed = append(allowed, t)
			continue
		}
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", t.name, errDisallowed))
			continue
		}
		if d, err := checker.CrawlDelay(ctx, t.src.URL); err == nil {
			t.crawlDelay = d
		}
		allowed = append(allowed, t)
	}
	return allowed, errs
}

// crawlSource runs one source, writes its CSV, stores the run and prints
// its summary. The CSV and the history entry are written even when the
// run was interrupted.
func (c *crawler) crawlSource(ctx context.Context, factory render.Factory, db *database.RunDB, w report.Writer, t target) error {
	layout, err := t.src.LayoutOrFlat()
	if err != nil {
		return err
	}
	mode, err := paginate.ParseMode(t.src.Pagination)
	if err != nil {
		return err
	}

	csvOut, err := sink.CreateCSV(t.src.Output, layout)
	if err != nil {
		return err
	}

	// Records are streamed when tasks run one at a time. With more
	// workers tasks finish out of order, so the file is written from the
	// ordered result instead.
	var stream sink.Sink
	if c.cfg.Workers == 1 {
		stream = csvOut
	}

	sel := t.src.Selectors
	resolver := filter.New(
		filter.WithSelectors(sel.Filter),
		filter.WithSettleTimeout(c.cfg.SettleTimeout),
		filter.WithLogger(c.logger),
	)
	walkerOpts := []paginate.Option{
		paginate.WithSelectors(sel.Table),
		paginate.WithMode(mode),
		paginate.WithPageTimeout(c.cfg.PageTimeout),
		paginate.WithMaxPages(c.maxPages(t)),
		paginate.WithPageDelay(c.pageDelay(t)),
		paginate.WithLogger(c.logger),
	}

	orch := pipeline.NewOrchestrator(factory,
		func() *pipeline.Pipeline {
			return pipeline.DefaultPipeline(
				[]pipeline.Option{pipeline.WithLogger(c.logger)},
				pipeline.WithPipelineResolver(resolver),
				pipeline.WithPipelineWalkerOptions(walkerOpts...),
				pipeline.WithPipelineSink(stream),
				pipeline.WithPipelineGate(c.gate),
			)
		},
		pipeline.WithOrchestratorLogger(c.logger),
		pipeline.WithWorkers(c.cfg.Workers),
		pipeline.WithPlanner(planner.New(
			planner.WithSelectors(sel.Planner),
			planner.WithSettleTimeout(c.cfg.SettleTimeout),
			planner.WithLogger(c.logger),
		)),
		pipeline.WithProgress(c.progress(t.name)),
	)

	fmt.Fprintf(c.stderr, "Crawling %s (%s)...\n", t.name, rclog.RedactURL(t.src.URL))
	result, runErr := orch.RunSource(ctx, pipeline.Source{
		Name:        t.name,
		URL:         t.src.URL,
		Categorized: layout == sink.LayoutCategorized,
		Filter:      model.NewFilterTarget(t.src.Filter),
	})

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if stream == nil {
		// The run context may be cancelled; the collected records are
		// still written.
		if err := csvOut.WriteAll(context.WithoutCancel(ctx), result.Records); err != nil {
			errs = append(errs, err)
		}
	}
	if err := csvOut.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to write %s: %w", t.src.Output, err))
	} else {
		fmt.Fprintf(c.stderr, "Wrote %d records to %s\n", csvOut.Count(), t.src.Output)
	}

	if db != nil && (len(result.Reports) > 0 || len(result.Abandoned) > 0) {
		id, err := db.SaveRun(context.WithoutCancel(ctx), result)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to save run: %w", err))
		} else {
			c.logger.Info("run saved", "source", t.name, "run_id", id)
		}
	}

	if _, err := w.Write(result); err != nil {
		errs = append(errs, fmt.Errorf("failed to write summary: %w", err))
	}

	if runErr == nil {
		if s := result.Summary(); s.Failed > 0 || s.Abandoned > 0 {
			errs = append(errs, fmt.Errorf("%w: %d of %d tasks failed", errIncompleteRun, s.Failed+s.Abandoned, s.Tasks))
		}
	}
	return errors.Join(errs...)
}

// progress returns the per-task progress callback printing to stderr.
func (c *crawler) progress(source string) func(*model.TaskReport, int, int) {
	return func(rep *model.TaskReport, done, total int) {
		c.mu.Lock()
		defer c.mu.Unlock()

		status := "ok"
		if rep.Failure != nil {
			status = rep.Failure.ReasonText
		}
		fmt.Fprintf(c.stderr, "[%d/%d] %s %s: %d records, %d pages (%s)\n",
			done, total, source, rep.Task.Tag(), len(rep.Records), rep.Pages, status)
	}
}

// pageDelay returns the effective delay between page transitions: the
// explicit flag, else the source setting, else the default, raised to the
// robots.txt crawl delay.
func (c *crawler) pageDelay(t target) time.Duration {
	d := c.cfg.PageDelay
	if !c.pageDelaySet && t.src.PageDelay > 0 {
		d = t.src.PageDelay
	}
	return max(d, t.crawlDelay)
}

func (c *crawler) maxPages(t target) int {
	if !c.maxPagesSet && t.src.MaxPages > 0 {
		return t.src.MaxPages
	}
	return c.cfg.MaxPages
}

// resolveTargets merges named sources, or the ad-hoc --url, with the
// command-line overrides.
func resolveTargets(cfg *config.Config, file *config.File) ([]target, error) {
	var targets []target

	if cfg.URL != "" {
		var src config.SourceConfig
		if file != nil {
			src = file.Defaults
		}
		src.URL = cfg.URL
		src.Layout = "flat"
		src.Output = config.DefaultOutput
		targets = append(targets, target{name: cfg.URL, src: src})
	}

	for _, name := range cfg.Sources {
		src, ok := file.GetSource(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q (see 'rankcrawl sources')", config.ErrUnknownSource, name)
		}
		if src.Output == "" {
			src.Output = defaultOutputFor(name)
		}
		targets = append(targets, target{name: name, src: src})
	}

	for i := range targets {
		src := &targets[i].src
		if cfg.Layout != "" {
			src.Layout = cfg.Layout
		}
		if cfg.Filter != "" {
			src.Filter = cfg.Filter
		}
		if cfg.Pagination != "" {
			src.Pagination = cfg.Pagination
		}
		if cfg.Output != "" {
			src.Output = cfg.Output
		}
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("source %q: %w", targets[i].name, err)
		}
	}
	return targets, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// defaultOutputFor derives a CSV file name from a source name.
func defaultOutputFor(name string) string {
	base := strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "_")
	if base == "" {
		base = "rankings"
	}
	return base + ".csv"
}

// openReportOutput opens the summary destination. Without a path the
// summary goes to stdout.
func openReportOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create summary directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create summary file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // nothing left to flush
}

// newReportWriter selects the summary format requested by cfg.
func newReportWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}
