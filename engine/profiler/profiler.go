package profiler

import (
	"runtime"
	"sort"
	"time"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
)

// Report is the summary of one profiler interval.
type Report struct {
	FPS float64

	// Memory, in megabytes
	HeapMB      float64
	AllocRateMB float64
	SysMB       float64

	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64

	// Per-frame averages of the renderer work over the interval
	Dispatches float64
	Draws      float64

	// Instances is the instance total of the last frame's resolved draws. Draws whose
	// arguments never reached the host are not counted.
	Instances uint64

	// Counts holds the latest LOD stream counts recorded per object label.
	Counts map[string][2]uint32
}

// Profiler tracks frame rate, memory and renderer statistics and logs them at a fixed
// interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	dispatches int
	draws      int
	instances  uint64
	counts     map[string][2]uint32

	now func() time.Time
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: a variadic list of ProfilerOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		counts:         make(map[string][2]uint32),
		now:            time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// RecordCounts stores the most recent high and low LOD instance counts of an object. The
// next report carries them.
//
// Parameters:
//   - label: the object label
//   - high: the high LOD instance count
//   - low: the low LOD instance count
func (p *Profiler) RecordCounts(label string, high, low uint32) {
	p.counts[label] = [2]uint32{high, low}
}

// Tick should be called once per frame with that frame's renderer statistics. When the
// update interval has elapsed it logs a report and starts a new interval.
//
// Parameters:
//   - stats: the renderer statistics of the frame just finished
//
// Returns:
//   - Report: the interval report, valid only when the bool is true
//   - bool: true if a report was produced this tick
func (p *Profiler) Tick(stats renderer.FrameStats) (Report, bool) {
	p.frameCount++
	p.dispatches += stats.Dispatches
	p.draws += len(stats.Draws)
	p.instances = 0
	for _, d := range stats.Draws {
		if d.Resolved {
			p.instances += uint64(d.InstanceCount)
		}
	}

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return Report{}, false
	}

	frames := float64(p.frameCount)
	r := Report{
		FPS:        frames / elapsed.Seconds(),
		Dispatches: float64(p.dispatches) / frames,
		Draws:      float64(p.draws) / frames,
		Instances:  p.instances,
		Counts:     make(map[string][2]uint32, len(p.counts)),
	}
	for k, v := range p.counts {
		r.Counts[k] = v
	}
	p.readMemory(&r, elapsed)
	p.log(r)

	p.frameCount = 0
	p.dispatches = 0
	p.draws = 0
	p.lastTime = currentTime
	return r, true
}

// readMemory fills the memory and GC fields of r.
func (p *Profiler) readMemory(r *Report, elapsed time.Duration) {
	runtime.ReadMemStats(&p.memStats)
	r.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	r.SysMB = float64(p.memStats.Sys) / 1024 / 1024
	r.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	r.GCCount = gcCount
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses
		r.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > r.MaxPauseUs {
				r.MaxPauseUs = pause
			}
		}
	}
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
}

func (p *Profiler) log(r Report) {
	l := common.Logger()
	l.Info("profiler",
		"fps", r.FPS,
		"heap_mb", r.HeapMB,
		"alloc_rate_mb", r.AllocRateMB,
		"gc", r.GCCount,
		"gc_last_us", r.LastPauseUs,
		"gc_max_us", r.MaxPauseUs,
		"sys_mb", r.SysMB,
		"dispatches", r.Dispatches,
		"draws", r.Draws,
		"instances", r.Instances)

	labels := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	for _, k := range labels {
		c := r.Counts[k]
		l.Info("profiler counts", "label", k, "high", c[0], "low", c[1])
	}
}
