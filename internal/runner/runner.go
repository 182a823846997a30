// Package runner executes one snapshot run against a single source.
//
// A run connects to the source, extracts every selected dataset in order,
// uploads each result and prints one JSON object on its output:
//
//	{"users":{"url":"s3://...","registros":10},"compras":{"error":"..."}}
//
// Dataset failures are recorded and the run continues; the exit code is 0
// once every dataset has been attempted. Failures before the first dataset
// (configuration, connection, storage client) print a single
// {"error":"Error general en script <Source>: ..."} object and exit 1.
package runner

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
	"github.com/ajitpratap0/sqlsnap/pkg/extract"
	"github.com/ajitpratap0/sqlsnap/pkg/json"
	"github.com/ajitpratap0/sqlsnap/pkg/logger"
	"github.com/ajitpratap0/sqlsnap/pkg/metrics"
	"github.com/ajitpratap0/sqlsnap/pkg/notify"
	"github.com/ajitpratap0/sqlsnap/pkg/observability"
	"github.com/ajitpratap0/sqlsnap/pkg/source"
	"github.com/ajitpratap0/sqlsnap/pkg/storage"
	"github.com/ajitpratap0/sqlsnap/pkg/uploader"
)

const (
	// ExitOK is returned once every dataset has been attempted.
	ExitOK = 0
	// ExitFailure is returned when the run could not start.
	ExitFailure = 1
)

// Dependencies are the factories a run uses to reach the outside world.
type Dependencies struct {
	OpenSource  func(ctx context.Context, cfg config.SourceConfig, log *zap.Logger) (source.Source, error)
	NewStore    func(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.Store, error)
	NewNotifier func(cfg config.NotifyConfig, log *zap.Logger) (notify.Notifier, error)
	Datasets    func(kind config.SourceKind) []extract.Dataset
	Now         func() time.Time
}

// DefaultDependencies wires the real database, storage and Kafka clients.
func DefaultDependencies() Dependencies {
	return Dependencies{
		OpenSource:  source.Open,
		NewStore:    storage.New,
		NewNotifier: notify.New,
		Datasets:    extract.ForSource,
		Now:         time.Now,
	}
}

// Runner runs the datasets of one source.
type Runner struct {
	cfg    *config.Config
	deps   Dependencies
	out    io.Writer
	logger *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithDependencies replaces the default factories.
func WithDependencies(d Dependencies) Option {
	return func(r *Runner) { r.deps = d }
}

// WithLogger sets the logger; the global logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a runner that prints its result to out.
func New(cfg *config.Config, out io.Writer, opts ...Option) *Runner {
	r := &Runner{
		cfg:  cfg,
		deps: DefaultDependencies(),
		out:  out,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	if r.deps.Now == nil {
		r.deps.Now = time.Now
	}
	if r.deps.Datasets == nil {
		r.deps.Datasets = extract.ForSource
	}
	if r.deps.NewNotifier == nil {
		r.deps.NewNotifier = notify.New
	}
	return r
}

// Fail prints the setup failure object for kind and returns ExitFailure.
// The CLI uses it for errors raised before a Runner exists.
func Fail(out io.Writer, kind config.SourceKind, err error) int {
	if werr := json.MarshalToWriter(out, SetupFailure(kind, err)); werr != nil {
		logger.Get().Error("Failed to write failure", zap.Error(werr))
	}
	return ExitFailure
}

// Run executes the run and returns the process exit code.
func (r *Runner) Run(ctx context.Context) int {
	kind := r.cfg.Source.Kind
	runID := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Run.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx = context.WithValue(ctx, logger.SourceKey, string(kind))

	log := logger.WithContext(ctx, r.logger)
	ctx, span := observability.StartRun(ctx, string(kind), runID)

	summary, err := r.run(ctx, log)
	if err != nil {
		span.End(err)
		log.Error("Run failed", zap.Error(err))
		return Fail(r.out, kind, err)
	}
	span.SetAttribute("sqlsnap.failures", summary.Failures())
	span.End(nil)

	if err := json.MarshalToWriter(r.out, summary); err != nil {
		log.Error("Failed to write summary", zap.Error(err))
		return ExitFailure
	}
	log.Info("Run completed",
		zap.Int("datasets", summary.Len()),
		zap.Int("failed", summary.Failures()))
	return ExitOK
}

// run returns an error only for setup failures.
func (r *Runner) run(ctx context.Context, log *zap.Logger) (*Summary, error) {
	kind := r.cfg.Source.Kind

	datasets, err := extract.Select(r.deps.Datasets(kind), r.cfg.Run.Datasets)
	if err != nil {
		return nil, err
	}

	log.Info("Connecting", zap.Stringer("source", r.cfg.Source))
	src, err := r.deps.OpenSource(ctx, r.cfg.Source, log)
	if err != nil {
		return nil, err
	}
	closeSource := closeOnce(src, log)
	defer closeSource()

	store, err := r.deps.NewStore(ctx, r.cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Failed to close storage client", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector(string(kind))
	up, err := uploader.New(store, r.cfg.Storage, log,
		uploader.WithClock(r.deps.Now),
		uploader.WithObserver(func(_ context.Context, s uploader.Snapshot) {
			collector.ObserveSnapshot(s.Dataset, string(s.Format), s.Bytes)
		}),
	)
	if err != nil {
		return nil, err
	}

	notifier, err := r.deps.NewNotifier(r.cfg.Notify, log)
	if err != nil {
		log.Warn("Notifications disabled", zap.Error(err))
		notifier = notify.Nop{}
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			log.Warn("Failed to close notifier", zap.Error(err))
		}
	}()

	summary := NewSummary()
	for _, ds := range datasets {
		res := r.runDataset(ctx, src, up, ds, collector)
		summary.Set(ds.Name, res)

		ev := notify.Event{
			RunID:     runIDFrom(ctx),
			Source:    string(kind),
			Dataset:   ds.UploadName,
			Location:  res.URL,
			Rows:      res.Rows,
			Error:     res.Error,
			Timestamp: r.deps.Now().UTC(),
		}
		notifier.Notify(ctx, ev)
	}

	closeSource()
	collector.Push(context.WithoutCancel(ctx), r.cfg.Observability.PushgatewayURL, r.cfg.Observability.MetricsJob, log)
	return summary, nil
}

// runDataset extracts and uploads one dataset. It never panics.
func (r *Runner) runDataset(ctx context.Context, src source.Source, up uploader.Uploader, ds extract.Dataset, collector *metrics.Collector) (res Result) {
	kind := string(r.cfg.Source.Kind)
	ctx = context.WithValue(ctx, logger.DatasetKey, ds.Name)
	log := logger.WithContext(ctx, r.logger)
	ctx, span := observability.StartDataset(ctx, kind, ds.Name)
	timer := metrics.NewTimer()

	var err error
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf(errors.ErrorTypeInternal, "panic: %v", p)
			log.Error("Dataset panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			res = Result{Error: errors.Message(err)}
		}
		collector.ObserveDataset(ds.UploadName, res.Rows, timer.Stop(), err)
		span.SetAttribute("sqlsnap.rows", res.Rows)
		span.End(err)
	}()

	f, err := ds.Extract(ctx, src, log)
	if err != nil {
		log.Warn("Extraction failed", zap.Error(err))
		return Result{Error: errors.Message(err)}
	}

	location, err := up.Upload(ctx, f, kind, ds.UploadName)
	if err != nil {
		log.Warn("Upload failed", zap.Error(err))
		return Result{Error: errors.Message(err)}
	}

	log.Info("Snapshot uploaded", zap.String("location", location), zap.Int("rows", f.NumRows()))
	return Result{URL: location, Rows: f.NumRows()}
}

// closeOnce returns a function that closes src the first time it is called.
func closeOnce(src source.Source, log *zap.Logger) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := src.Close(); err != nil {
				log.Warn("Failed to close source", zap.Error(err))
			}
		})
	}
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(logger.RunIDKey).(string)
	return id
}

// String renders a result for logs.
func (r Result) String() string {
	if r.Failed() {
		return fmt.Sprintf("error: %s", r.Error)
	}
	return fmt.Sprintf("%s (%d rows)", r.URL, r.Rows)
}
