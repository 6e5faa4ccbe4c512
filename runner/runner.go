package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dhcgn/chatlog-reconstruct/attachment"
	"github.com/dhcgn/chatlog-reconstruct/config"
	"github.com/dhcgn/chatlog-reconstruct/fetch"
	"github.com/dhcgn/chatlog-reconstruct/filter"
	"github.com/dhcgn/chatlog-reconstruct/manifest"
	"github.com/dhcgn/chatlog-reconstruct/mbox"
	"github.com/dhcgn/chatlog-reconstruct/model"
	"github.com/dhcgn/chatlog-reconstruct/parser"
	"github.com/dhcgn/chatlog-reconstruct/reconcile"
	"github.com/dhcgn/chatlog-reconstruct/stats"
)

// Fetcher downloads a single attachment reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string, counter int, folder string) fetch.Result
}

type subscriber struct {
	name string
	fn   func(stats.Event)
}

// Report is what a run produced.
type Report struct {
	RunID        string
	OutputFolder string
	CombinedPath string
	DownloadDir  string
	Records      []model.Record
	References   []string
	Duration     time.Duration
}

type Runner struct {
	cfg    config.Config
	logger *slog.Logger
	runID  string

	fetcher  Fetcher
	filter   *filter.Filter
	pacer    *Pacer
	manifest *manifest.Writer

	subscribers []subscriber
}

func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runID := uuid.NewString()
	logger = logger.With("run", runID)

	refFilter, err := filter.New(filter.Options{Include: cfg.IncludeRefs, Exclude: cfg.ExcludeRefs})
	if err != nil {
		return nil, fmt.Errorf("reference filter: %w", err)
	}

	writer, err := manifest.NewWriter(cfg.ManifestFile, cfg.ManifestFile != "" && !cfg.DryRun)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		runID:    runID,
		filter:   refFilter,
		manifest: writer,
		fetcher: fetch.New(fetch.Options{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
		}, logger),
	}
	r.pacer = NewPacer(PacerOptions{
		Threshold: cfg.RateThreshold,
		Window:    cfg.RateWindow,
		Cooldown:  cfg.RateCooldown,
		MaxRPS:    cfg.MaxRPS,
		OnPause:   r.paused,
	})
	return r, nil
}

func (r *Runner) RunID() string {
	return r.runID
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

// Subscribe registers fn for every event of the run. Events are delivered
// synchronously, in order, on the goroutine calling Run.
func (r *Runner) Subscribe(name string, fn func(stats.Event)) {
	r.subscribers = append(r.subscribers, subscriber{name: name, fn: fn})
}

func (r *Runner) emit(evt stats.Event) {
	for _, sub := range r.subscribers {
		sub.fn(evt)
	}
}

// Run reconstructs the conversation and downloads its attachments. Only a
// cancelled context or an unusable output folder end it with an error;
// everything else is logged and the run carries on.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	defer r.closeManifest()

	outDir, err := PrepareOutputFolder(r.cfg.OutputFolder)
	if err != nil {
		return nil, err
	}
	report := &Report{
		RunID:        r.runID,
		OutputFolder: outDir,
		CombinedPath: filepath.Join(outDir, r.cfg.CombinedName),
		DownloadDir:  filepath.Join(outDir, r.cfg.DownloadDir),
	}
	r.logger.Info("reconstructing conversation", "input1", r.cfg.InputFile1, "input2", r.cfg.InputFile2, "output", outDir)

	first := r.parse(r.cfg.InputFile1)
	second := r.parse(r.cfg.InputFile2)

	combined := reconcile.Reconcile(first, second, r.logger)
	r.emit(stats.Event{Stage: stats.StageReconcile, Type: stats.EventTypeCombined, Count: len(combined)})
	r.logger.Info("combined messages", "unique", len(combined))

	report.Records = r.persist(report.CombinedPath, combined)
	r.exportMbox(report.Records)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	refs := attachment.ExtractUnique(report.Records)
	r.emit(stats.Event{Stage: stats.StageFetch, Type: stats.EventTypeReferences, Count: len(refs)})
	r.logger.Info("extracted attachment references", "unique", len(refs))

	refs, dropped := r.filter.Apply(refs)
	for _, ref := range dropped {
		r.emit(stats.Event{Stage: stats.StageFetch, Type: stats.EventTypeFiltered, Reference: ref})
	}
	if len(dropped) > 0 {
		r.logger.Info("filtered attachment references", "dropped", len(dropped), "remaining", len(refs))
	}
	report.References = refs

	if r.cfg.SkipDownload {
		r.logger.Info("skipping downloads")
		report.Duration = time.Since(started)
		return report, nil
	}

	err = r.download(ctx, refs, report.DownloadDir)
	report.Duration = time.Since(started)
	if err != nil {
		return report, err
	}

	r.logger.Info("reconstruction completed", "duration", report.Duration)
	return report, nil
}

func (r *Runner) parse(path string) []model.Record {
	records := parser.ParseFile(path, r.logger)
	r.emit(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeParsed, Source: path, Count: len(records)})
	r.logger.Info("read message log", "path", path, "messages", len(records))
	return records
}

// persist saves the combined log and reads it back, so that downloads work
// from exactly what was written. The in-memory result is used whenever the
// file cannot be written or read.
func (r *Runner) persist(path string, combined []model.Record) []model.Record {
	if err := reconcile.Save(path, combined); err != nil {
		r.logger.Error("save combined messages", "path", path, "err", err)
		r.emit(stats.Event{Stage: stats.StageReconcile, Type: stats.EventTypeError, Path: path, Err: err})
		return combined
	}
	r.emit(stats.Event{Stage: stats.StageReconcile, Type: stats.EventTypeSaved, Path: path, Count: len(combined)})
	r.logger.Info("combined messages saved", "path", path)

	reread := parser.ParseFile(path, r.logger)
	if len(reread) == 0 && len(combined) > 0 {
		r.logger.Warn("combined file unreadable, using in-memory messages", "path", path)
		return combined
	}
	return reread
}

func (r *Runner) exportMbox(records []model.Record) {
	if r.cfg.MboxExport == "" {
		return
	}
	if _, err := mbox.Export(r.cfg.MboxExport, records, r.logger); err != nil {
		r.logger.Error("export mbox", "path", r.cfg.MboxExport, "err", err)
		r.emit(stats.Event{Stage: stats.StageReconcile, Type: stats.EventTypeError, Path: r.cfg.MboxExport, Err: err})
	}
}

func (r *Runner) download(ctx context.Context, refs []string, folder string) error {
	if !r.cfg.DryRun {
		if err := os.MkdirAll(folder, 0o755); err != nil {
			err = fmt.Errorf("create download folder: %w", err)
			r.logger.Error("downloads skipped", "path", folder, "err", err)
			r.emit(stats.Event{Stage: stats.StageFetch, Type: stats.EventTypeError, Path: folder, Err: err})
			return nil
		}
	}

	for i, ref := range refs {
		counter := i + 1
		if r.cfg.DryRun {
			r.logger.Debug("dry run: would download", "counter", counter, "reference", ref)
			r.emit(stats.Event{Stage: stats.StageFetch, Type: stats.EventTypeDryRun, Reference: ref, Counter: counter})
			continue
		}

		if err := r.pacer.Wait(ctx); err != nil {
			return err
		}

		res := r.fetcher.Fetch(ctx, ref, counter, folder)
		r.pacer.Done()
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.manifest.Record(manifest.NewEntry(r.runID, counter, res)); err != nil {
			r.logger.Warn("write manifest entry", "err", err)
		}
		r.emit(stats.Event{
			Stage:     stats.StageFetch,
			Type:      eventType(res.Outcome),
			Reference: ref,
			Path:      res.Path,
			Counter:   counter,
			Bytes:     res.Bytes,
			Duration:  res.Duration,
			Err:       res.Err,
		})
	}
	return nil
}

func (r *Runner) paused(d time.Duration) {
	r.logger.Warn("download limit reached, pausing", "pause", d)
	r.emit(stats.Event{Stage: stats.StageFetch, Type: stats.EventTypePaused, Duration: d})
}

func (r *Runner) closeManifest() {
	if err := r.manifest.Close(); err != nil {
		r.logger.Warn("close manifest", "path", r.manifest.Path(), "err", err)
	}
}

func eventType(outcome fetch.Outcome) stats.EventType {
	switch outcome {
	case fetch.OutcomeDownloaded:
		return stats.EventTypeDownloaded
	case fetch.OutcomeSkipped:
		return stats.EventTypeSkipped
	case fetch.OutcomeRejected:
		return stats.EventTypeRejected
	default:
		return stats.EventTypeFailed
	}
}

// PrepareOutputFolder creates folder when it does not exist. When folder
// names an existing file, its parent directory is used instead.
func PrepareOutputFolder(folder string) (string, error) {
	if folder == "" {
		folder = "."
	}
	info, err := os.Stat(folder)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return "", fmt.Errorf("create output folder: %w", err)
		}
		return folder, nil
	case err != nil:
		return "", fmt.Errorf("output folder: %w", err)
	case !info.IsDir():
		return filepath.Dir(folder), nil
	}
	return folder, nil
}
