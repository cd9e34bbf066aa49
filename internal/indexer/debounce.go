package indexer

import (
	"sort"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period used when none is configured
const DefaultDebounce = time.Second

// Debouncer coalesces repeated events per path. fire runs once per path
// after delay has passed without a new Schedule for that path.
type Debouncer struct {
	delay time.Duration
	fire  func(path string)

	mu      sync.Mutex
	gen     uint64
	pending map[string]*pendingEntry
	firing  inflight
}

type pendingEntry struct {
	gen   uint64
	timer *time.Timer
}

func NewDebouncer(delay time.Duration, fire func(path string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, fire: fire, pending: make(map[string]*pendingEntry)}
}

// Schedule (re)starts the timer for path
func (d *Debouncer) Schedule(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.pending[path]; ok {
		e.timer.Stop()
	}
	d.gen++
	gen := d.gen
	e := &pendingEntry{gen: gen}
	e.timer = time.AfterFunc(d.delay, func() { d.expire(path, gen) })
	d.pending[path] = e
}

// expire fires path unless a later Schedule or Cancel replaced this timer.
// Stop cannot recall a timer whose func has already started.
func (d *Debouncer) expire(path string, gen uint64) {
	d.mu.Lock()
	e, ok := d.pending[path]
	if !ok || e.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.firing.Add()
	d.mu.Unlock()

	defer d.firing.Done()
	d.fire(path)
}

// Cancel drops the pending timer for path. It reports whether one existed.
func (d *Debouncer) Cancel(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.pending[path]
	if ok {
		e.timer.Stop()
		delete(d.pending, path)
	}
	return ok
}

// Flush stops every timer and returns the paths that were pending, sorted.
// The caller is responsible for processing them.
func (d *Debouncer) Flush() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths := make([]string, 0, len(d.pending))
	for path, e := range d.pending {
		e.timer.Stop()
		paths = append(paths, path)
	}
	d.pending = make(map[string]*pendingEntry)
	sort.Strings(paths)
	return paths
}

// Idle returns a channel closed once no fire call is running. A timer that
// left the pending set before Flush is counted until its fire returns.
func (d *Debouncer) Idle() <-chan struct{} {
	return d.firing.Idle()
}

// Pending returns the number of paths waiting for their timer
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
