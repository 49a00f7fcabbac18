package auth

import (
	"crypto/rand"
	"math/big"
	"time"
)

// TimingConfig holds configuration for the uniform failure delay
type TimingConfig struct {
	BaseDelay      time.Duration
	Jitter         time.Duration
	DelayOnSuccess bool
}

// TimingDelay pads authentication responses so that an unknown email, a
// wrong password and a locked account take about the same time
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

// NewTimingDelay creates a new TimingDelay
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config, sleep: time.Sleep}
}

// NoDelay returns a TimingDelay that never sleeps
func NoDelay() *TimingDelay {
	return NewTimingDelay(TimingConfig{})
}

// target returns base plus a random jitter in [0, Jitter)
func (td *TimingDelay) target() time.Duration {
	d := td.config.BaseDelay
	if td.config.Jitter > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(td.config.Jitter)))
		if err == nil {
			d += time.Duration(n.Int64())
		}
	}
	return d
}

// WaitFrom sleeps until at least the target delay has elapsed since start
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return
	}
	if remaining := td.target() - time.Since(start); remaining > 0 {
		td.sleep(remaining)
	}
}
