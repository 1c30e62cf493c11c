package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/audio"
	"github.com/dgnsrekt/ttsproxy/internal/output"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/dgnsrekt/ttsproxy/internal/tts/engines"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
	"github.com/gofrs/flock"
)

const reloadDebounce = 250 * time.Millisecond

// Options configures a Daemon.
type Options struct {
	// ConfigPath is watched for changes when Load is also set.
	ConfigPath string

	// Load re-reads the configuration on change.
	Load func() (tts.Config, error)

	// CacheDir holds the synthesized audio cache unless the config names one.
	CacheDir string

	Logger *log.Logger

	// Output replaces the configured backends.
	Output ttypes.Output

	// SchedulerOptions are passed to every scheduler.
	SchedulerOptions []tts.Option
}

// Daemon runs the schedulers and the control API for one configuration.
type Daemon struct {
	opts     Options
	logger   *log.Logger
	registry *Registry

	mu      sync.Mutex
	cfg     tts.Config
	ctx     context.Context
	cancel  context.CancelFunc
	out     ttypes.Output
	closers []io.Closer
	lock    *flock.Flock
	api     *apiServer
	watcher *configWatcher

	running atomic.Bool
}

// New creates a daemon for cfg. Nothing is started until Start.
func New(cfg tts.Config, opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Daemon{
		opts:     opts,
		logger:   logger,
		registry: NewRegistry(),
		cfg:      cfg,
		out:      opts.Output,
	}
}

// Registry returns the running instances.
func (d *Daemon) Registry() *Registry {
	return d.registry
}

// Addr returns the address the control API listens on.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.api == nil {
		return d.cfg.Listen
	}
	return d.api.boundAddr()
}

// Start takes the instance lock, builds the outputs, starts one scheduler
// per instance and begins serving the control API.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}

	if err := d.start(ctx); err != nil {
		d.shutdown()
		d.running.Store(false)
		return err
	}
	return nil
}

func (d *Daemon) start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cfg.Validate(); err != nil {
		return err
	}
	if err := d.acquireLock(); err != nil {
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if d.out == nil {
		out, closers, err := buildOutput(d.ctx, d.cfg, d.opts.CacheDir, d.logger)
		if err != nil {
			return err
		}
		d.out, d.closers = out, closers
	}

	started := make([]*tts.Scheduler, 0, len(d.cfg.Instances))
	for _, inst := range d.cfg.Instances {
		s, err := d.startInstance(inst)
		if err != nil {
			d.logger.Error("instance failed to start", "instance", inst.Name, "err", err)
			continue
		}
		started = append(started, s)
	}
	if len(started) == 0 && len(d.cfg.Instances) > 0 {
		return errors.New("no instance could be started")
	}
	d.registry.Replace(started)

	d.api = newAPIServer(d.cfg.Listen, d.registry, d.logger.WithPrefix("api"))
	if err := d.api.start(d.ctx); err != nil {
		d.api = nil
		return err
	}

	if d.opts.ConfigPath != "" && d.opts.Load != nil {
		w, err := watchConfig(d.opts.ConfigPath, reloadDebounce, d.logger, d.reloadFromDisk)
		if err != nil {
			d.logger.Warn("config hot-reload disabled", "err", err)
		} else {
			d.watcher = w
		}
	}

	d.logger.Info("daemon started", "instances", d.registry.Len(), "listen", d.api.boundAddr())
	return nil
}

func (d *Daemon) acquireLock() error {
	path := d.cfg.LockFile
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another ttsproxy daemon is already running (lock %s)", path)
	}
	d.lock = lock
	return nil
}

func (d *Daemon) startInstance(inst tts.InstanceConfig) (*tts.Scheduler, error) {
	if r, ok := d.out.(*output.Router); ok && !r.Serves(inst.Target) {
		d.logger.Warn("no output serves the instance target", "instance", inst.Name, "target", inst.Target)
	}

	opts := append([]tts.Option{tts.WithLogger(d.logger.WithPrefix(inst.Name))}, d.opts.SchedulerOptions...)
	s, err := tts.NewScheduler(inst, d.out, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Start(d.ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Stop shuts the API down, stops every scheduler (restoring ducked
// outputs), closes the local output and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.shutdown()
	d.logger.Info("daemon stopped")
}

func (d *Daemon) shutdown() {
	d.mu.Lock()
	watcher := d.watcher
	d.watcher = nil
	d.mu.Unlock()

	// Outside d.mu: a debounced reload may be waiting for it.
	if watcher != nil {
		_ = watcher.Close()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.api != nil {
		d.api.stop()
		d.api = nil
	}

	var wg sync.WaitGroup
	for _, s := range d.registry.All() {
		wg.Add(1)
		go func(s *tts.Scheduler) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
	d.registry.Replace(nil)

	if d.cancel != nil {
		d.cancel()
	}

	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			d.logger.Warn("close output", "err", err)
		}
	}
	d.closers = nil
	if d.opts.Output == nil {
		d.out = nil
	}

	if d.lock != nil {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("release daemon lock", "err", err)
		}
		d.lock = nil
	}
}

// Run starts the daemon and blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

func (d *Daemon) reloadFromDisk() {
	cfg, err := d.opts.Load()
	if err != nil {
		d.logger.Error("config reload failed, keeping current instances", "err", err)
		return
	}
	if err := d.Reload(cfg); err != nil {
		d.logger.Error("config reload failed", "err", err)
	}
}

// Reload applies a new configuration to the running daemon. Unchanged
// instances keep running with their queues. A changed instance's old
// scheduler is stopped, dropping its pending announcements and restoring
// its ducked outputs, before the new one starts. Output and listen
// settings only take effect on restart.
func (d *Daemon) Reload(cfg tts.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return errors.New("daemon not running")
	}

	if cfg.Listen != d.cfg.Listen || cfg.LockFile != d.cfg.LockFile ||
		!reflect.DeepEqual(cfg.HomeAssistant, d.cfg.HomeAssistant) || !reflect.DeepEqual(cfg.Local, d.cfg.Local) {
		d.logger.Warn("listen, lock and output settings changed; restart to apply them")
	}

	wanted := make(map[string]tts.InstanceConfig, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		wanted[inst.Name] = inst
	}

	for _, s := range d.registry.All() {
		inst, ok := wanted[s.Name()]
		if ok && reflect.DeepEqual(inst, s.Config()) {
			continue
		}
		dropped := s.Size()
		s.Stop()
		d.logger.Info("instance stopped for reload", "instance", s.Name(), "dropped", dropped, "removed", !ok)
	}

	next := make([]*tts.Scheduler, 0, len(cfg.Instances))
	var errs []error
	for _, inst := range cfg.Instances {
		if s, ok := d.registry.Get(inst.Name); ok && reflect.DeepEqual(inst, s.Config()) {
			next = append(next, s)
			continue
		}
		s, err := d.startInstance(inst)
		if err != nil {
			errs = append(errs, fmt.Errorf("instance %q: %w", inst.Name, err))
			continue
		}
		next = append(next, s)
	}
	d.registry.Replace(next)

	d.cfg.Instances = cfg.Instances
	d.logger.Info("config reloaded", "instances", len(next))
	return errors.Join(errs...)
}

// buildOutput assembles the router from the configured backends.
func buildOutput(ctx context.Context, cfg tts.Config, cacheDir string, logger *log.Logger) (ttypes.Output, []io.Closer, error) {
	var remote ttypes.Output
	if cfg.HomeAssistant.Enabled() {
		ha := output.NewHomeAssistant(cfg.HomeAssistant, logger.WithPrefix("homeassistant"))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := ha.Ping(pingCtx); err != nil {
			logger.Warn("home assistant not reachable", "url", cfg.HomeAssistant.URL, "err", err)
		}
		cancel()
		remote = ha
	}

	router := output.NewRouter(remote)
	var closers []io.Closer

	if cfg.Local.Enabled {
		check := tts.CheckLocalEngine(cfg.Local)
		if !check.Available {
			logger.Warn("local output disabled", "engine", check.Engine, "err", check.Err)
			if check.Guidance != "" {
				logger.Info(check.Guidance)
			}
			return router, closers, nil
		}

		local, err := newLocalOutput(cfg.Local, cacheDir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("local output: %w", err)
		}
		router.Register(cfg.Local.Name, local)
		closers = append(closers, local)
	}

	return router, closers, nil
}

func newLocalOutput(cfg tts.LocalConfig, cacheDir string, logger *log.Logger) (*output.Local, error) {
	engine, err := engines.New(cfg, cacheDir, logger.WithPrefix("engine"))
	if err != nil {
		return nil, err
	}

	pc := audio.DefaultPlayerConfig()
	pc.SampleRate = cfg.SampleRate
	player, err := audio.NewPlayer(pc)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	return output.NewLocal(cfg.Name, engine, player, logger.WithPrefix(cfg.Name)), nil
}
