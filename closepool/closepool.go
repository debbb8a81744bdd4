// SPDX-License-Identifier: GPL-3.0-or-later

// Package closepool allows pooling [io.Closer] instances, such as
// applications bound to simulated chains, and closing them in a
// single operation.
package closepool

import (
	"io"
	"slices"
	"sync"

	"go.uber.org/multierr"
)

// Func adapts a function to [io.Closer].
type Func func() error

var _ io.Closer = Func(nil)

// Close implements [io.Closer].
func (fx Func) Close() error {
	return fx()
}

// Pool allows pooling a set of [io.Closer].
//
// The zero value is ready to use.
type Pool struct {
	// handles contains the [io.Closer] to close.
	handles []io.Closer

	// mu provides mutual exclusion.
	mu sync.Mutex
}

// Add adds a given [io.Closer] to the pool.
func (p *Pool) Add(handle io.Closer) {
	p.mu.Lock()
	p.handles = append(p.handles, handle)
	p.mu.Unlock()
}

// AddFunc is like [*Pool.Add] but takes a function.
func (p *Pool) AddFunc(fx func() error) {
	p.Add(Func(fx))
}

// Len returns the number of [io.Closer] awaiting close.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close closes all the [io.Closer] inside the pool iterating in
// backward order, so that what was added last is closed first. The
// pool is empty afterwards, hence calling Close again is a no-op.
// The returned error combines all the errors that occurred.
func (p *Pool) Close() error {
	p.mu.Lock()
	handles := p.handles
	p.handles = nil
	p.mu.Unlock()

	var err error
	for _, handle := range slices.Backward(handles) {
		err = multierr.Append(err, handle.Close())
	}
	return err
}
