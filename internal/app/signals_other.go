//go:build !unix

package app

import "os"

func defaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
