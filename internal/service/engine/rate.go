package engine

import "time"

const (
	rateKeepWeight   = 0.7
	rateSampleWeight = 0.3
)

// rateSampler turns a stream of byte counts into instantaneous rates, at most one
// per interval.
type rateSampler struct {
	interval time.Duration
	last     time.Time
	bytes    int64
}

func newRateSampler(interval time.Duration, start time.Time) *rateSampler {
	return &rateSampler{
		interval: interval,
		last:     start,
	}
}

// Add records n bytes received at now and returns the instantaneous rate in bytes
// per second when a sample is due.
func (s *rateSampler) Add(n int64, now time.Time) (float64, bool) {
	s.bytes += n

	elapsed := now.Sub(s.last)
	if elapsed <= 0 || elapsed < s.interval {
		return 0, false
	}

	rate := float64(s.bytes) / elapsed.Seconds()
	s.last = now
	s.bytes = 0

	return rate, true
}

// smoothRate folds an instantaneous sample into the exponential moving average.
func smoothRate(prev *float64, sample float64) *float64 {
	v := sample
	if prev != nil {
		v = *prev*rateKeepWeight + sample*rateSampleWeight
	}

	return &v
}
