package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/obentoo/lifter/internal/archive"
	"github.com/obentoo/lifter/internal/common/config"
	"github.com/obentoo/lifter/internal/common/logger"
	"github.com/obentoo/lifter/internal/common/output"
	"github.com/obentoo/lifter/internal/common/version"
	"github.com/obentoo/lifter/internal/history"
	"github.com/obentoo/lifter/internal/manifest"
	"github.com/obentoo/lifter/internal/pipeline"
	"github.com/obentoo/lifter/internal/source"
	"github.com/spf13/cobra"
)

// errItemsFailed makes the process exit with status 1 after the report
// has been printed
var errItemsFailed = errors.New("one or more items failed")

// runOptions are the per-command overrides of the settings file
type runOptions struct {
	outputDir string
	workers   int
	repair    bool
	noCache   bool
	dryRun    bool
}

// app holds everything a command needs for one run
type app struct {
	settings *config.Settings
	store    *manifest.Store
	fetcher  *source.Fetcher
	ledger   *history.Ledger
}

// loadSettings reads the settings file named by --settings, or the
// default one
func loadSettings() (*config.Settings, error) {
	if settingsPath != "" {
		return config.LoadFrom(settingsPath)
	}
	return config.Load()
}

// openManifest opens the manifest named by --config, or the one the
// settings point at
func openManifest(s *config.Settings) (*manifest.Store, error) {
	path, err := s.ManifestPath()
	if manifestPath != "" {
		path, err = config.ExpandHome(manifestPath)
	}
	if err != nil {
		return nil, err
	}
	return manifest.Open(path)
}

// newApp loads settings and the manifest and prepares the transport. The
// ledger is only opened when withHistory is set and history is enabled.
func newApp(opts runOptions, withHistory bool) (*app, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	store, err := openManifest(s)
	if err != nil {
		return nil, err
	}

	a := &app{settings: s, store: store}

	a.fetcher, err = newFetcher(s, opts.noCache)
	if err != nil {
		a.close()
		return nil, err
	}

	if withHistory && s.History {
		path, err := config.HistoryPath()
		if err != nil {
			a.close()
			return nil, err
		}
		if a.ledger, err = history.Open(path); err != nil {
			// The ledger is informational; a run proceeds without it.
			logger.Warn("install history disabled: %v", err)
			a.ledger = nil
		}
	}

	return a, nil
}

// newFetcher builds the HTTP transport from settings
func newFetcher(s *config.Settings, noCache bool) (*source.Fetcher, error) {
	timeout, err := s.HTTPTimeout()
	if err != nil {
		return nil, err
	}

	retry := source.DefaultRetryConfig()
	retry.MaxRetries = s.HTTP.Retries
	retry.Timeout = timeout

	// The default agent carries the build version
	ua := s.UserAgent
	if ua == "" || ua == config.DefaultUserAgent {
		ua = version.UserAgent()
	}

	client := source.NewClient(
		source.WithRetryConfig(retry),
		source.WithUserAgent(ua),
	)

	opts := []source.FetcherOption{
		source.WithClient(client),
		source.WithToken(s.Token()),
	}

	if s.Cache && !noCache {
		dir, err := config.CacheDir()
		if err != nil {
			return nil, err
		}
		cache, err := source.NewResponseCache(dir)
		if err != nil {
			logger.Warn("response cache disabled: %v", err)
		} else {
			opts = append(opts, source.WithCache(cache))
		}
	}

	return source.NewFetcher(opts...), nil
}

func (a *app) close() {
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// run processes the named items, or all items when names is empty
func (a *app) run(ctx context.Context, names []string, opts runOptions) ([]pipeline.Outcome, error) {
	items, err := a.store.Manifest().Select(names)
	if err != nil {
		return nil, err
	}

	outputDir, err := a.settings.OutputPath()
	if opts.outputDir != "" {
		outputDir, err = config.ExpandHome(opts.outputDir)
	}
	if err != nil {
		return nil, err
	}

	workers := opts.workers
	if workers <= 0 {
		workers = a.settings.Workers
	}

	itemTimeout, err := a.settings.ItemTimeoutDuration()
	if err != nil {
		return nil, err
	}

	procOpts := []pipeline.ProcessorOption{
		pipeline.WithOutputDir(outputDir),
		pipeline.WithDryRun(opts.dryRun),
		pipeline.WithRepairMissing(opts.repair || a.settings.RepairMissing),
		pipeline.WithExtractor(archive.NewExtractor()),
		pipeline.WithObserver(progressObserver(logger.Default())),
	}
	if a.ledger != nil && !opts.dryRun {
		procOpts = append(procOpts, pipeline.WithRecorder(a.ledger))
	}

	proc := pipeline.NewProcessor(a.store, a.fetcher, procOpts...)
	runner := pipeline.NewRunner(proc, a.store,
		pipeline.WithWorkers(workers),
		pipeline.WithItemTimeout(itemTimeout),
		pipeline.WithStopOnRateLimit(a.settings.StopOnRateLimit))

	logger.Debug("processing %d item(s) with %d worker(s) into %s", len(items), workers, outputDir)
	return runner.Run(ctx, items), nil
}

// progressObserver logs download progress at debug level each time an
// item crosses another quarter of a download of known length
func progressObserver(log *logger.Logger) pipeline.Observer {
	var (
		mu       sync.Mutex
		quarters = make(map[string]int64)
	)
	return func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventNeedsUpdate:
			log.For(e.Item).Debug("update found: %s -> %s", displayVersion(e.PreviousVersion), e.Version)
		case pipeline.EventDownloading:
			if e.Total <= 0 {
				return
			}
			q := e.Received * 4 / e.Total
			mu.Lock()
			crossed := q > quarters[e.Item]
			if crossed {
				quarters[e.Item] = q
			}
			mu.Unlock()
			if crossed {
				log.For(e.Item).Debug("downloaded %s of %s", output.FormatBytes(e.Received), output.FormatBytes(e.Total))
			}
		case pipeline.EventInstalled, pipeline.EventFailed:
			mu.Lock()
			delete(quarters, e.Item)
			mu.Unlock()
		}
	}
}

// printOutcomes writes one line per outcome plus a summary and returns the
// number of failures
func printOutcomes(w io.Writer, outcomes []pipeline.Outcome) int {
	for _, o := range outcomes {
		switch o.Status {
		case pipeline.StatusInstalled:
			output.ResultLine(w, output.StatusInstalled, o.Item,
				fmt.Sprintf("%s -> %s  %s", displayVersion(o.PreviousVersion), o.Version, o.Path))
		case pipeline.StatusSkipped:
			output.ResultLine(w, output.StatusSkipped, o.Item, o.Version)
		case pipeline.StatusUpdateAvailable:
			output.ResultLine(w, output.StatusUpdateAvailable, o.Item,
				fmt.Sprintf("%s -> %s", displayVersion(o.PreviousVersion), o.Version))
		case pipeline.StatusFailed:
			status := output.StatusFailed
			if errors.Is(o.Err, pipeline.ErrRateLimited) {
				status = output.StatusRateLimited
			}
			output.ResultLine(w, status, o.Item, fmt.Sprintf("%s: %v", o.Reason(), o.Err))
		}
	}

	s := pipeline.Summarize(outcomes)
	output.Summary(w, s.Installed, s.Skipped, s.Failed, s.UpdateAvailable)
	return s.Failed
}

// executeRun is the shared body of sync and check
func executeRun(cmd *cobra.Command, names []string, opts runOptions) error {
	a, err := newApp(opts, !opts.dryRun)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	outcomes, err := a.run(ctx, names, opts)
	if err != nil {
		return err
	}

	if printOutcomes(cmd.OutOrStdout(), outcomes) > 0 {
		return errItemsFailed
	}
	return nil
}

// completeItemNames offers manifest item names for shell completion
func completeItemNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	s, err := loadSettings()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	store, err := openManifest(s)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer store.Close()

	var names []string
	for _, item := range store.Manifest().Items {
		if strings.HasPrefix(item.Name, toComplete) {
			names = append(names, item.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func displayVersion(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
