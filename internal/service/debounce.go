package service

import (
	"sync"
	"time"
)

// Debouncer 把密集触发折叠成一次延迟执行，并保证两次执行之间
// 至少间隔 minInterval。话题聚类重算开销大，用它吸收消息风暴。
type Debouncer struct {
	mu          sync.Mutex
	delay       time.Duration
	minInterval time.Duration
	fn          func()

	timer   *time.Timer
	lastRun time.Time
	stopped bool
}

func NewDebouncer(delay, minInterval time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		delay:       delay,
		minInterval: minInterval,
		fn:          fn,
	}
}

// Trigger 请求一次执行。批次窗口已打开时新的触发被吸收。
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.timer != nil {
		return
	}

	wait := d.delay
	if !d.lastRun.IsZero() {
		if earliest := d.lastRun.Add(d.minInterval); time.Now().Add(wait).Before(earliest) {
			wait = time.Until(earliest)
		}
	}

	d.timer = time.AfterFunc(wait, d.run)
}

func (d *Debouncer) run() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.lastRun = time.Now()
	fn := d.fn
	d.mu.Unlock()

	fn()
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
