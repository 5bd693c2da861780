package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for login response padding
type TimingConfig struct {
	BaseDelayMs    int  // Base delay in milliseconds
	RandomDelayMs  int  // Random jitter range in milliseconds
	DelayOnSuccess bool // If true, delay successful logins as well
}

// TimingDelay pads authentication responses so failures take roughly the same time
// regardless of which check rejected them. A nil *TimingDelay never sleeps.
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config, sleep: time.Sleep}
}

// cryptoRandIntn returns a uniform-enough value in [0, max) from crypto/rand
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint64(b[:]) % uint64(max)), nil
}

func (td *TimingDelay) target(success bool) (time.Duration, bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return 0, false
	}

	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if jitter, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			delay += time.Duration(jitter) * time.Millisecond
		}
	}
	return delay, delay > 0
}

// WaitFrom sleeps only for whatever remains of the target after startTime
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	d, ok := td.target(success)
	if !ok {
		return
	}
	if elapsed := time.Since(startTime); elapsed < d {
		td.sleep(d - elapsed)
	}
}
