package ditaa

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/ditaadoc/pkg/cache"
	"github.com/matzehuels/ditaadoc/pkg/errors"
	"github.com/matzehuels/ditaadoc/pkg/observability"
)

// Defaults applied to zero-valued configuration and request fields.
const (
	DefaultPath      = "ditaa"
	DefaultPrefix    = "ditaa"
	DefaultImagePath = "_images"

	// ImageDir is the directory under the build output that holds images.
	ImageDir = "_images"
)

// Status is the outcome of a successful Render call.
type Status int

const (
	// StatusRendered means the tool ran and produced the image.
	StatusRendered Status = iota
	// StatusCached means the image already existed and was reused.
	StatusCached
	// StatusSkipped means no image is available: the tool could not be run
	// during this run. Callers fall back to showing the diagram text.
	StatusSkipped
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusRendered:
		return "rendered"
	case StatusCached:
		return "cached"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Config configures a Builder.
type Config struct {
	// Path is the tool executable, looked up in PATH when it has no separator.
	Path string

	// Args are extra arguments passed before the per-call options.
	Args []string

	// OutDir is the build output directory. Images go to OutDir/_images.
	OutDir string

	// Timeout bounds a single tool run. Zero disables the limit.
	Timeout time.Duration
}

// Request describes one diagram to render.
type Request struct {
	// Code is the diagram text.
	Code string

	// Options are per-call tool options, such as "--no-shadows".
	Options []string

	// ImagePath is the public directory prefix of the returned RelPath,
	// usually the page-relative path to the image directory.
	ImagePath string

	// Prefix starts the image file name.
	Prefix string
}

// Result locates a rendered image.
type Result struct {
	Status Status

	// Name is the image file name.
	Name string

	// RelPath is ImagePath joined with Name, for links from documents.
	RelPath string

	// AbsPath is the absolute path of the image file.
	AbsPath string

	// Notice is set on the skipped result of the render that found the tool
	// missing. Callers surface it once per run.
	Notice error
}

// Builder renders diagrams into one output directory.
//
// A Builder is safe for concurrent use. Concurrent renders of the same
// diagram may both run the tool; the image is written by whichever finishes
// last, and both results point at it.
type Builder struct {
	cfg    Config
	store  *cache.ImageStore
	remote cache.Cache
	keyer  cache.Keyer
	logger *log.Logger

	failed atomic.Bool

	mu    sync.Mutex
	runID string
}

// Option configures optional Builder behavior.
type Option func(*Builder)

// WithLogger sets the logger used for warnings and debug output.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRemote mirrors rendered images to c. A nil keyer uses the default.
func WithRemote(c cache.Cache, keyer cache.Keyer) Option {
	return func(b *Builder) {
		if c == nil {
			c = cache.NullCache{}
		}
		if keyer == nil {
			keyer = cache.NewDefaultKeyer()
		}
		b.remote = c
		b.keyer = keyer
	}
}

// New creates a builder. An empty Path defaults to "ditaa" and an empty OutDir
// to the current directory.
func New(cfg Config, opts ...Option) (*Builder, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}
	if cfg.Timeout < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "negative timeout %s", cfg.Timeout)
	}
	outDir, err := filepath.Abs(cfg.OutDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "resolve output directory %q", cfg.OutDir)
	}
	cfg.OutDir = outDir
	cfg.Args = append([]string(nil), cfg.Args...)

	b := &Builder{
		cfg:    cfg,
		store:  cache.NewImageStore(filepath.Join(outDir, ImageDir)),
		remote: cache.NullCache{},
		keyer:  cache.NewDefaultKeyer(),
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.runID = uuid.NewString()
	return b, nil
}

// Config returns the effective configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// Store returns the local image directory.
func (b *Builder) Store() *cache.ImageStore {
	return b.store
}

// Reset starts a new run: it clears the sticky failure flag and assigns a
// fresh run ID, which it returns.
func (b *Builder) Reset() string {
	id := uuid.NewString()
	b.mu.Lock()
	b.runID = id
	b.mu.Unlock()
	b.failed.Store(false)
	return id
}

// Fork returns a builder sharing b's configuration, image directory and
// remote mirror, with its own sticky flag and run ID. A failure seen by the
// fork does not skip renders of b.
func (b *Builder) Fork() *Builder {
	return &Builder{
		cfg:    b.cfg,
		store:  b.store,
		remote: b.remote,
		keyer:  b.keyer,
		logger: b.logger,
		runID:  uuid.NewString(),
	}
}

// RunID identifies the current run in logs.
func (b *Builder) RunID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runID
}

// Failed reports whether the sticky failure flag is set.
func (b *Builder) Failed() bool {
	return b.failed.Load()
}

// Render returns the image for req, running the tool if no image exists yet.
//
// A *RenderError is returned when the tool exits with a nonzero status. Other
// errors are internal failures that should abort the build.
func (b *Builder) Render(ctx context.Context, req Request) (Result, error) {
	if req.Prefix == "" {
		req.Prefix = DefaultPrefix
	}
	if req.ImagePath == "" {
		req.ImagePath = DefaultImagePath
	}
	if err := errors.ValidateToolOptions(req.Options); err != nil {
		return Result{}, err
	}

	digest := cache.ImageKey(req.Code, req.Options, b.cfg.Path, b.cfg.Args)
	name := cache.ImageName(req.Prefix, digest)
	res := Result{
		Name:    name,
		RelPath: path.Join(filepath.ToSlash(req.ImagePath), name),
		AbsPath: b.store.Path(name),
	}

	hooks := observability.Cache()
	if b.store.Exists(name) {
		hooks.OnCacheHit(ctx, "local")
		res.Status = StatusCached
		return res, nil
	}
	hooks.OnCacheMiss(ctx, "local")

	if b.fetchRemote(ctx, name) {
		res.Status = StatusCached
		return res, nil
	}

	if b.failed.Load() {
		res.Status = StatusSkipped
		return res, nil
	}

	start := time.Now()
	observability.Render().OnRenderStart(ctx, name)
	out, err := b.invoke(ctx, req.Code, req.Options, res.AbsPath)
	duration := time.Since(start)

	if err != nil {
		observability.Render().OnRenderComplete(ctx, name, "failed", duration, err)
		return Result{}, err
	}
	observability.Render().OnRenderComplete(ctx, name, out.status.String(), duration, nil)

	res.Status = out.status
	res.Notice = out.notice
	if out.status == StatusRendered {
		b.logger.Debug("rendered diagram", "name", name, "duration", duration, "run", b.RunID())
		b.pushRemote(ctx, name)
	}
	return res, nil
}

// fetchRemote copies name from the remote mirror into the image directory.
// Remote errors are logged and treated as a miss.
func (b *Builder) fetchRemote(ctx context.Context, name string) bool {
	if cache.IsNull(b.remote) {
		return false
	}
	hooks := observability.Cache()
	key := b.keyer.ImageKey(name)

	data, hit, err := b.remote.Get(ctx, key)
	if err != nil {
		b.logger.Warn("remote image cache lookup failed", "key", key, "err", err)
		return false
	}
	if !hit {
		hooks.OnCacheMiss(ctx, "remote")
		return false
	}
	if err := b.store.Write(name, data); err != nil {
		b.logger.Warn("cannot store mirrored image", "name", name, "err", err)
		return false
	}
	hooks.OnCacheHit(ctx, "remote")
	b.logger.Debug("image fetched from remote cache", "name", name, "size", len(data))
	return true
}

// pushRemote mirrors a freshly rendered image. Failures are logged only.
func (b *Builder) pushRemote(ctx context.Context, name string) {
	if cache.IsNull(b.remote) {
		return
	}
	data, err := b.store.Read(name)
	if err != nil {
		b.logger.Debug("rendered image not readable, not mirrored", "name", name, "err", err)
		return
	}
	key := b.keyer.ImageKey(name)
	err = cache.RetryWithBackoff(ctx, func() error {
		return b.remote.Set(ctx, key, data, cache.TTLImage)
	})
	if err != nil {
		b.logger.Warn("remote image cache write failed", "key", key, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "remote", len(data))
}
