// Package pipeline runs manifest items through the release pipeline:
// resolve, fetch, match, compare, download, extract, install and commit.
//
// Each item ends in exactly one Outcome. An item's recorded version is
// committed only after its file is installed, so a failure before the
// install leaves both the installed file and the manifest as they were, and
// a failed commit leaves the old version recorded for the next run.
package pipeline

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/obentoo/lifter/internal/archive"
	"github.com/obentoo/lifter/internal/common/logger"
	"github.com/obentoo/lifter/internal/history"
	"github.com/obentoo/lifter/internal/manifest"
	"github.com/obentoo/lifter/internal/source"
)

// Store is the manifest state a processor reads templates and recorded
// versions from and commits new versions to. *manifest.Store implements it.
type Store interface {
	manifest.TemplateSource
	RecordedVersion(name string) string
	CommitVersion(name, version string) error
}

// Recorder receives a ledger entry for every install attempt.
// *history.Ledger implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Processor takes one item through the pipeline.
type Processor struct {
	store         Store
	fetcher       *source.Fetcher
	extractor     *archive.Extractor
	outputDir     string
	dryRun        bool
	repairMissing bool
	observer      Observer
	recorder      Recorder
	log           *logger.Logger
	nowFunc       func() time.Time
}

// ProcessorOption is a functional option for configuring Processor
type ProcessorOption func(*Processor)

// WithOutputDir sets the directory files are installed into
func WithOutputDir(dir string) ProcessorOption {
	return func(p *Processor) {
		p.outputDir = dir
	}
}

// WithDryRun stops items after the version comparison; changed items are
// reported as StatusUpdateAvailable and nothing is downloaded
func WithDryRun(dryRun bool) ProcessorOption {
	return func(p *Processor) {
		p.dryRun = dryRun
	}
}

// WithRepairMissing reinstalls up-to-date items whose file is absent
func WithRepairMissing(repair bool) ProcessorOption {
	return func(p *Processor) {
		p.repairMissing = repair
	}
}

// WithObserver sets the progress event receiver
func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) {
		p.observer = o
	}
}

// WithRecorder sets the install ledger
func WithRecorder(r Recorder) ProcessorOption {
	return func(p *Processor) {
		p.recorder = r
	}
}

// WithExtractor sets the archive extractor
func WithExtractor(e *archive.Extractor) ProcessorOption {
	return func(p *Processor) {
		p.extractor = e
	}
}

// WithLogger sets the logger item messages go to
func WithLogger(l *logger.Logger) ProcessorOption {
	return func(p *Processor) {
		p.log = l
	}
}

// NewProcessor creates a processor. Files are installed into the current
// directory unless WithOutputDir is given.
func NewProcessor(store Store, fetcher *source.Fetcher, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:     store,
		fetcher:   fetcher,
		extractor: archive.NewExtractor(),
		outputDir: ".",
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Default()
	}
	return p
}

// Process runs one item to its outcome. It never panics on item data and
// never returns without a terminal status.
func (p *Processor) Process(ctx context.Context, item manifest.Item) Outcome {
	start := p.nowFunc()
	log := p.log.For(item.Name)

	out := p.process(ctx, item, log)
	out.Item = item.Name
	out.Duration = p.nowFunc().Sub(start)

	switch out.Status {
	case StatusFailed:
		log.Error("%s: %v", out.Reason(), out.Err)
		p.emit(Event{Kind: EventFailed, Item: item.Name, Version: out.Version, PreviousVersion: out.PreviousVersion, Err: out.Err})
		p.record(ctx, out, log)
	case StatusInstalled:
		log.Info("installed %s to %s", out.Version, out.Path)
		p.emit(Event{Kind: EventInstalled, Item: item.Name, Version: out.Version, PreviousVersion: out.PreviousVersion, Path: out.Path})
		p.record(ctx, out, log)
	}
	return out
}

func (p *Processor) process(ctx context.Context, item manifest.Item, log *logger.ItemLogger) Outcome {
	recorded := p.store.RecordedVersion(item.Name)
	out := Outcome{PreviousVersion: recorded}

	fail := func(err error) Outcome {
		out.Status = StatusFailed
		out.Err = classify(err)
		return out
	}

	resolved, err := manifest.Resolve(item, p.store)
	if err != nil {
		return fail(err)
	}

	p.emit(Event{Kind: EventCheckStart, Item: item.Name, PreviousVersion: recorded})
	log.Debug("fetching %s (%s)", resolved.PageURL, resolved.Method)

	src, err := source.ForMethod(resolved.Method, p.fetcher)
	if err != nil {
		return fail(err)
	}
	doc, err := src.Fetch(ctx, resolved.PageURL)
	if err != nil {
		return fail(err)
	}

	asset, err := source.SelectAsset(doc, resolved.QuerySelector, resolved.AnchorPattern)
	if err != nil {
		return fail(err)
	}
	out.AssetURL = asset.URL

	remote, err := source.SelectVersion(doc, resolved.VersionLocator, resolved.VersionRegex)
	if err != nil {
		return fail(err)
	}
	remote = NormalizeVersion(remote)
	out.Version = remote

	dest := filepath.Join(p.outputDir, resolved.DesiredFilename)
	if !VersionChanged(recorded, remote) {
		if !p.repairMissing || fileExists(dest) {
			log.Debug("up to date at %s", remote)
			p.emit(Event{Kind: EventUpToDate, Item: item.Name, Version: remote, PreviousVersion: recorded})
			out.Status = StatusSkipped
			return out
		}
		log.Warn("%s is missing, reinstalling %s", dest, remote)
	} else if IsDowngrade(recorded, remote) {
		log.Warn("remote version %s sorts before recorded %s", remote, recorded)
	}

	format, err := assetFormat(asset.URL)
	if err != nil {
		return fail(err)
	}

	p.emit(Event{Kind: EventNeedsUpdate, Item: item.Name, Version: remote, PreviousVersion: recorded})
	if p.dryRun {
		log.Info("update available: %s -> %s", displayVersion(recorded), remote)
		out.Status = StatusUpdateAvailable
		return out
	}

	log.Debug("downloading %s (%s)", asset.URL, format)
	data, err := p.fetcher.Download(ctx, asset.URL, func(received, total int64) {
		p.emit(Event{Kind: EventDownloading, Item: item.Name, Version: remote, Received: received, Total: total})
	})
	if err != nil {
		return fail(err)
	}

	content, err := p.extractor.Extract(format, data, resolved.TargetEntryName)
	if err != nil {
		return fail(err)
	}

	path, err := archive.Install(p.outputDir, resolved.DesiredFilename, content)
	if err != nil {
		return fail(err)
	}
	out.Path = path

	if err := p.store.CommitVersion(item.Name, remote); err != nil {
		return fail(err)
	}

	out.Status = StatusInstalled
	return out
}

func (p *Processor) emit(e Event) {
	if p.observer != nil {
		p.observer(e)
	}
}

// record writes the outcome to the ledger. Ledger failures never change
// the outcome.
func (p *Processor) record(ctx context.Context, out Outcome, log *logger.ItemLogger) {
	if p.recorder == nil {
		return
	}
	// The item context may already be done when the item timed out.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := p.recorder.Record(ctx, out.historyEntry(p.nowFunc())); err != nil {
		log.Warn("failed to record history: %v", err)
	}
}

// assetFormat detects the format from the last path element of link. When
// that names a bare executable and the URL has a query, a known suffix at
// the very end of the URL wins, as for "/download?file=tool.tar.gz".
func assetFormat(link string) (archive.Format, error) {
	format, err := archive.DetectFormat(source.LinkBase(link))
	if err != nil || format != archive.FormatRaw {
		return format, err
	}
	if u, perr := url.Parse(link); perr == nil && u.RawQuery != "" {
		if f, qerr := archive.DetectFormat(link); qerr == nil {
			return f, nil
		}
	}
	return format, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func displayVersion(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
