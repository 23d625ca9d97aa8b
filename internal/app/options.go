package app

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

type options struct {
	clock       clock.WithTicker
	registry    *prometheus.Registry
	signals     []os.Signal
	noSignals   bool
	onPriceTick func(tick uint64)
}

// Option configures an App.
type Option func(*options)

// WithClock sets the time source of every scope and of the demo timer.
func WithClock(clk clock.WithTicker) Option {
	return func(o *options) { o.clock = clk }
}

// WithRegistry sets the Prometheus registry. Default is a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithSignals sets the signals that trigger shutdown in Run. Default is SIGINT and SIGTERM.
func WithSignals(sigs ...os.Signal) Option {
	return func(o *options) { o.signals = sigs }
}

// WithoutSignals disables signal handling in Run.
func WithoutSignals() Option {
	return func(o *options) { o.noSignals = true }
}

// WithPriceTickObserver observes every tick of the price component.
func WithPriceTickObserver(fn func(tick uint64)) Option {
	return func(o *options) { o.onPriceTick = fn }
}
