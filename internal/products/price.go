package products

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evan-idocoding/lifekit/component"
	"github.com/evan-idocoding/lifekit/rt/scope"
	"go.uber.org/zap"
)

// InputPrice is the input name carrying the price (float64).
const InputPrice = "price"

// PriceTicker is the task name of the price ticker.
const PriceTicker = "price-ticker"

// Price displays a price and ticks while mounted.
//
// Its state lives only as long as one mount; the price is re-delivered as input on every mount.
type Price struct {
	period time.Duration
	onTick func(tick uint64)

	mu     sync.Mutex
	price  float64
	ticker scope.Handle
}

// NewPriceFactory returns a factory of Price components ticking every period.
// onTick, if non-nil, observes every tick after it is logged.
func NewPriceFactory(period time.Duration, onTick func(tick uint64)) component.Factory {
	if period <= 0 {
		panic(fmt.Sprintf("products: price period=%s is invalid (must be > 0)", period))
	}
	return func() any {
		return &Price{period: period, onTick: onTick}
	}
}

// Price returns the current price.
func (p *Price) Price() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.price
}

func (p *Price) OnChanges(c *component.Context, changes component.Changes) {
	ch, ok := changes[InputPrice]
	if !ok {
		return
	}
	v, ok := ch.Current.(float64)
	if !ok {
		c.Logger.Warn("ignoring price input", zap.Any("value", ch.Current))
		return
	}
	p.mu.Lock()
	p.price = v
	p.mu.Unlock()
	c.Logger.Info("price changed",
		zap.Any("previous", ch.Previous),
		zap.Float64("current", v),
		zap.Bool("first", ch.First))
}

func (p *Price) OnActivate(c *component.Context) error {
	c.Logger.Info("activate")
	log := c.Logger
	h, err := c.Scope.CreatePeriodic(p.period, func(_ context.Context, tick uint64) {
		log.Info("tick", zap.Uint64("tick", tick))
		if p.onTick != nil {
			p.onTick(tick)
		}
	}, scope.WithName(PriceTicker))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.ticker = h
	p.mu.Unlock()
	return nil
}

// OnDeactivate releases the ticker. The host teardown would cancel it anyway.
func (p *Price) OnDeactivate(c *component.Context) {
	c.Logger.Info("deactivate")
	p.mu.Lock()
	h := p.ticker
	p.ticker = nil
	p.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}
