//go:build linux

package indicator

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Open requests offset on chip (e.g. "gpiochip0") as an output
func Open(chip string, offset int, activeLow bool, hold time.Duration) (*Indicator, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("matrixlink")}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("indicator: request %s line %d: %w", chip, offset, err)
	}
	return New(line, hold), nil
}
