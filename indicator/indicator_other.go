//go:build !linux

package indicator

import "time"

func Open(chip string, offset int, activeLow bool, hold time.Duration) (*Indicator, error) {
	return nil, ErrUnsupported
}
