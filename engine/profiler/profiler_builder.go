package profiler

import "time"

// ProfilerOption configures a Profiler during NewProfiler.
type ProfilerOption func(*Profiler)

// WithInterval sets how often reports are produced. Values <= 0 keep the 1 second default.
//
// Parameters:
//   - d: the report interval
//
// Returns:
//   - ProfilerOption: a function that sets the interval
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}
