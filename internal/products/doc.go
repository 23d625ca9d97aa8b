// Package products holds the sample components of the demo: a product page that toggles a
// child price component, which ticks while it is mounted.
package products
