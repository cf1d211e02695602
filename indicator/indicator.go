// Package indicator drives a status output that lights up briefly whenever
// the device rejects a line.
package indicator

import (
	"errors"
	"sync"
	"time"
)

var ErrUnsupported = errors.New("indicator: GPIO not supported on this platform")

// Output is a single digital line
type Output interface {
	SetValue(value int) error
	Close() error
}

// Indicator holds an Output high for a fixed time after each Flash. A nil
// *Indicator is valid and does nothing
type Indicator struct {
	out  Output
	hold time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	err    error
}

// New wraps out. The line is driven low immediately
func New(out Output, hold time.Duration) *Indicator {
	ind := &Indicator{out: out, hold: hold}
	ind.record(out.SetValue(0))
	return ind
}

// Flash drives the line high and schedules it low after the hold time.
// Flashing while lit extends the hold
func (i *Indicator) Flash() {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}

	i.record(i.out.SetValue(1))
	if i.timer != nil {
		i.timer.Stop()
	}
	i.timer = time.AfterFunc(i.hold, i.off)
}

func (i *Indicator) off() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.record(i.out.SetValue(0))
}

func (i *Indicator) record(err error) {
	if err != nil && i.err == nil {
		i.err = err
	}
}

// Err returns the first error reported by the output
func (i *Indicator) Err() error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Close turns the line off and releases it
func (i *Indicator) Close() error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	if i.timer != nil {
		i.timer.Stop()
	}
	i.record(i.out.SetValue(0))
	if err := i.out.Close(); err != nil {
		return err
	}
	return i.err
}
