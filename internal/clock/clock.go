// Package clock provides the wall-clock collaborator used to stamp evidence.
package clock

import (
	"errors"
	"sync"
	"time"
)

// TimestampFormat is the ISO 8601 form used when timestamps are rendered.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Clock returns the current UTC time at millisecond precision. A failed
// read must abort whatever operation asked for it.
type Clock interface {
	Now() (time.Time, error)
}

// System reads the host clock.
type System struct{}

func (System) Now() (time.Time, error) {
	return Normalize(time.Now()), nil
}

// Normalize converts t to UTC and truncates it to milliseconds.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Format renders t in TimestampFormat.
func Format(t time.Time) string {
	return Normalize(t).Format(TimestampFormat)
}

// ErrUnavailable is returned by Broken.
var ErrUnavailable = errors.New("clock unavailable")

// Fixed always returns the same instant. Advance moves it forward.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: Normalize(t)}
}

func (f *Fixed) Now() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t, nil
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = Normalize(t)
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = Normalize(f.t.Add(d))
}

// Broken fails every read.
type Broken struct{}

func (Broken) Now() (time.Time, error) {
	return time.Time{}, ErrUnavailable
}
