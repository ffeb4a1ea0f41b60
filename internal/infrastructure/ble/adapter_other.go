//go:build !linux

package ble

import (
	"context"
	"fmt"
	"runtime"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

var _ eqiva.Radio = (*Adapter)(nil)

// Adapter is unavailable off Linux: the other tinygo bluetooth backends lack
// either acknowledged writes or characteristic reads.
type Adapter struct{}

// Open always fails with ErrAdapterUnavailable.
func Open(Logger) (*Adapter, error) {
	return nil, fmt.Errorf("%w: unsupported platform %s", ErrAdapterUnavailable, runtime.GOOS)
}

func (a *Adapter) Scan(context.Context, func(eqiva.Advertisement)) error {
	return ErrAdapterUnavailable
}

func (a *Adapter) Dial(context.Context, string) (eqiva.Link, error) {
	return nil, ErrAdapterUnavailable
}
