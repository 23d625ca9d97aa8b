package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/evan-idocoding/lifekit/component"
	"github.com/evan-idocoding/lifekit/internal/config"
	"github.com/evan-idocoding/lifekit/internal/logger"
	"github.com/evan-idocoding/lifekit/internal/products"
	"github.com/evan-idocoding/lifekit/rt/safego"
	"github.com/evan-idocoding/lifekit/rt/scope"
	"github.com/evan-idocoding/lifekit/rt/scopemetrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

var (
	// ErrAlreadyStarted is returned by Start and Run when the app was already started.
	ErrAlreadyStarted = errors.New("app: already started")
)

const (
	pageName          = "product-page"
	toggleTaskName    = "toggle-visible"
	increaseTaskName  = "increase-price"
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
)

// App is the demo process.
type App struct {
	cfg     *config.Config
	log     *logger.Logger
	opts    options
	reg     *prometheus.Registry
	metrics *scopemetrics.Metrics
	page    *component.Host

	mu       sync.Mutex
	started  bool
	srv      *http.Server
	ln       net.Listener
	serveErr chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App. cfg and log must not be nil.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *App {
	if cfg == nil {
		panic("app: nil config")
	}
	if log == nil {
		panic("app: nil logger")
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.clock == nil {
		o.clock = clock.RealClock{}
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if len(o.signals) == 0 {
		o.signals = defaultSignals()
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		opts:     o,
		reg:      o.registry,
		metrics:  scopemetrics.New(o.registry),
		serveErr: make(chan error, 1),
	}
	scopeOpts := append(a.metrics.Options(),
		scope.WithClock(o.clock),
		scope.WithLogger(log.Logger),
	)
	a.page = component.NewHost(pageName, products.NewPageFactory(products.PageConfig{
		PricePeriod:  cfg.Demo.TickPeriod,
		OnPriceTick:  o.onPriceTick,
		Logger:       log.Logger,
		ScopeOptions: scopeOpts,
	}), component.WithLogger(log.Logger), component.WithScopeOptions(scopeOpts...))
	return a
}

// Page returns the mounted product page, or nil.
func (a *App) Page() *products.ProductPage {
	p, _ := a.page.Instance().(*products.ProductPage)
	return p
}

// Scopes returns the live scopes: the page's and, while visible, the price's.
func (a *App) Scopes() []*scope.Manager {
	var out []*scope.Manager
	if m := a.page.Scope(); m != nil {
		out = append(out, m)
	}
	if p := a.Page(); p != nil {
		if m := p.Child().Scope(); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Addr returns the bound address of the ops listener, or "" when it is not running.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}

// Start mounts the product page, schedules the demo actions on the page scope and starts
// the ops listener when enabled.
func (a *App) Start(ctx context.Context) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	if err := a.page.Mount(nil); err != nil {
		return err
	}
	if err := a.schedule(); err != nil {
		_ = a.page.Unmount()
		return err
	}
	if a.cfg.Metrics.Enabled {
		if err := a.listen(); err != nil {
			_ = a.page.Unmount()
			return err
		}
	}
	a.log.Info("demo started",
		zap.Duration("tick_period", a.cfg.Demo.TickPeriod),
		zap.Duration("toggle_every", a.cfg.Demo.ToggleEvery),
		zap.Duration("increase_every", a.cfg.Demo.IncreaseEvery))
	return nil
}

// schedule creates the periodic demo actions. They stop with the page.
func (a *App) schedule() error {
	m := a.page.Scope()
	page := a.Page()
	every := func(name string, d time.Duration, action func() error) error {
		if d <= 0 {
			return nil
		}
		_, err := m.CreatePeriodic(d, func(context.Context, uint64) {
			if err := action(); err != nil && !errors.Is(err, products.ErrPageDeactivated) {
				a.log.Warn("demo action failed", zap.String("action", name), zap.Error(err))
			}
		}, scope.WithName(name))
		return err
	}
	if err := every(toggleTaskName, a.cfg.Demo.ToggleEvery, page.ToggleVisible); err != nil {
		return err
	}
	return every(increaseTaskName, a.cfg.Demo.IncreaseEvery, page.IncreasePrice)
}

func (a *App) listen() error {
	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Metrics.Addr, err)
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	a.mu.Lock()
	a.srv, a.ln = srv, ln
	a.mu.Unlock()

	safego.GoErr(context.Background(), func(context.Context) error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	},
		safego.WithName("ops-listener"),
		safego.WithLogger(a.log.Logger),
		safego.WithErrorHandler(func(_ context.Context, info safego.ErrorInfo) { a.serveErr <- info.Err }),
	)
	a.log.Info("ops listener started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Run starts the app and shuts it down on the first exit condition.
func (a *App) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	var sigCh chan os.Signal
	if !a.opts.noSignals {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, a.opts.signals...)
		defer signal.Stop(sigCh)
	}
	var timeout <-chan time.Time
	if d := a.cfg.Demo.Duration; d > 0 {
		timeout = a.opts.clock.After(d)
	}

	var cause error
	select {
	case <-ctx.Done():
		a.log.Info("context done", zap.Error(ctx.Err()))
	case sig := <-sigCh:
		a.log.Info("signal received", zap.Stringer("signal", sig))
	case <-timeout:
		a.log.Info("demo duration elapsed", zap.Duration("duration", a.cfg.Demo.Duration))
	case cause = <-a.serveErr:
		a.log.Error("ops listener failed", zap.Error(cause))
	}

	sctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(cause, a.Shutdown(sctx))
}

// Shutdown unmounts the page, waits for its tick goroutines and stops the listener.
// It is idempotent; later calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		page := a.Page()
		var errs []error
		if err := a.page.Unmount(); err != nil && !errors.Is(err, component.ErrNotMounted) {
			errs = append(errs, err)
		}
		// The page is deactivated now, so its child cannot be mounted again.
		hosts := []*component.Host{a.page}
		if page != nil {
			hosts = append(hosts, page.Child())
		}
		for _, h := range hosts {
			if err := h.Wait(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		a.mu.Lock()
		srv := a.srv
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				_ = srv.Close()
				errs = append(errs, fmt.Errorf("ops listener shutdown: %w", err))
			}
		}
		a.shutdownErr = errors.Join(errs...)
		a.log.Info("demo stopped", zap.Error(a.shutdownErr))
	})
	return a.shutdownErr
}
