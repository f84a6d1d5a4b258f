// Package logger collapses bursts of identical log lines into a single line with a repeat count.
package logger

import (
	"fmt"
	"log"
	"sync"
	"time"
)

var std = New(2*time.Second, func(msg string) { log.Print(msg) })

type Deduplicator struct {
	mu      sync.Mutex
	lastMsg string
	count   int
	delay   time.Duration
	timer   *time.Timer
	output  func(string)
}

// New returns a Deduplicator that writes a pending line once delay passes without a different one.
func New(delay time.Duration, output func(string)) *Deduplicator {
	return &Deduplicator{delay: delay, output: output}
}

func (d *Deduplicator) flushLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	switch {
	case d.count == 0:
		return
	case d.count == 1:
		d.output(d.lastMsg)
	default:
		d.output(fmt.Sprintf("%s (%d)", d.lastMsg, d.count))
	}
	d.count = 0
	d.lastMsg = ""
}

func (d *Deduplicator) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	d.mu.Lock()
	defer d.mu.Unlock()

	if msg != d.lastMsg {
		d.flushLocked()
		d.lastMsg = msg
	}
	d.count++

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.Flush)
}

// Flush writes the pending line now.
func (d *Deduplicator) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushLocked()
}

func Dedup(format string, args ...any) {
	std.Printf(format, args...)
}

// Flush writes the pending line of the package logger, e.g. before shutdown.
func Flush() {
	std.Flush()
}
