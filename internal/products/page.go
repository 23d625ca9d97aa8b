package products

import (
	"errors"
	"sync"
	"time"

	"github.com/evan-idocoding/lifekit/component"
	"github.com/evan-idocoding/lifekit/rt/scope"
	"go.uber.org/zap"
)

// DefaultPrice is the price a fresh ProductPage starts with.
const DefaultPrice = 10.0

// ErrPageDeactivated is returned by page actions after the page was deactivated.
var ErrPageDeactivated = errors.New("products: page deactivated")

// PageConfig configures product pages.
type PageConfig struct {
	// PricePeriod is the tick period of the child price component.
	PricePeriod time.Duration
	// OnPriceTick observes the child's ticks. Optional.
	OnPriceTick func(tick uint64)
	// Logger is used by the child host. Default is zap.NewNop.
	Logger *zap.Logger
	// ScopeOptions apply to the child's scopes (clock, metrics hooks).
	ScopeOptions []scope.ManagerOption
}

// ProductPage owns a price that survives re-mounts of its child Price component.
type ProductPage struct {
	child *component.Host

	mu      sync.Mutex
	done    bool
	visible bool
	price   float64
}

// NewPageFactory returns a factory of ProductPage components.
func NewPageFactory(cfg PageConfig) component.Factory {
	priceFactory := NewPriceFactory(cfg.PricePeriod, cfg.OnPriceTick)
	return func() any {
		return &ProductPage{
			price: DefaultPrice,
			child: component.NewHost("price", priceFactory,
				component.WithLogger(cfg.Logger),
				component.WithScopeOptions(cfg.ScopeOptions...)),
		}
	}
}

// Child returns the host of the price component.
func (p *ProductPage) Child() *component.Host { return p.child }

// Visible reports whether the price component is mounted.
func (p *ProductPage) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// CurrentPrice returns the page's price.
func (p *ProductPage) CurrentPrice() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.price
}

// ToggleVisible mounts the price component with the current price, or unmounts it.
func (p *ProductPage) ToggleVisible() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return ErrPageDeactivated
	}
	if p.visible {
		if err := p.child.Unmount(); err != nil {
			return err
		}
		p.visible = false
		return nil
	}
	if err := p.child.Mount(component.Inputs{InputPrice: p.price}); err != nil {
		return err
	}
	p.visible = true
	return nil
}

// IncreasePrice increments the price and pushes it to the mounted child.
func (p *ProductPage) IncreasePrice() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return ErrPageDeactivated
	}
	p.price++
	if !p.visible {
		return nil
	}
	return p.child.SetInput(InputPrice, p.price)
}

func (p *ProductPage) OnChanges(c *component.Context, changes component.Changes) {
	c.Logger.Info("changes", zap.Int("inputs", len(changes)))
}

func (p *ProductPage) OnActivate(c *component.Context) error {
	c.Logger.Info("activate", zap.Float64("price", p.CurrentPrice()))
	return nil
}

func (p *ProductPage) OnCheck(c *component.Context) { c.Logger.Debug("check") }

func (p *ProductPage) AfterContentInit(c *component.Context) { c.Logger.Debug("content init") }

func (p *ProductPage) AfterContentChecked(c *component.Context) { c.Logger.Debug("content checked") }

func (p *ProductPage) AfterViewInit(c *component.Context) { c.Logger.Debug("view init") }

func (p *ProductPage) AfterViewChecked(c *component.Context) { c.Logger.Debug("view checked") }

// OnDeactivate unmounts the child first; children never outlive their parent.
// Later page actions fail with ErrPageDeactivated.
func (p *ProductPage) OnDeactivate(c *component.Context) {
	c.Logger.Info("deactivate")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	if p.visible {
		_ = p.child.Unmount()
		p.visible = false
	}
}
