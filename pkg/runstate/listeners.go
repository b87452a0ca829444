package runstate

import (
	"slices"
	"sync"

	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/sirupsen/logrus"
)

// listeners holds per-format callbacks in registration order.
type listeners[E any] struct {
	mu     sync.Mutex
	next   int
	byKind map[record.Format]map[int]func(E)
}

func (l *listeners[E]) add(format record.Format, fn func(E)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byKind == nil {
		l.byKind = make(map[record.Format]map[int]func(E), len(record.Formats()))
	}

	if l.byKind[format] == nil {
		l.byKind[format] = make(map[int]func(E), 1)
	}

	id := l.next
	l.next++
	l.byKind[format][id] = fn

	var once sync.Once

	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()

			delete(l.byKind[format], id)
		})
	}
}

// snapshot returns the callbacks for format ordered by registration.
func (l *listeners[E]) snapshot(format record.Format) []func(E) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fns := l.byKind[format]

	ids := make([]int, 0, len(fns))
	for id := range fns {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	out := make([]func(E), 0, len(ids))
	for _, id := range ids {
		out = append(out, fns[id])
	}

	return out
}

// formats returns every format with at least one callback.
func (l *listeners[E]) formats() []record.Format {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]record.Format, 0, len(l.byKind))

	for f, fns := range l.byKind {
		if len(fns) > 0 {
			out = append(out, f)
		}
	}

	slices.Sort(out)

	return out
}

// dispatch calls every fn with ev. A panicking callback is logged and does
// not stop the others.
func dispatch[E any](log logrus.FieldLogger, kind string, fns []func(E), ev E) {
	for _, fn := range fns {
		safeCall(log, kind, fn, ev)
	}
}

func safeCall[E any](log logrus.FieldLogger, kind string, fn func(E), ev E) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("listener", kind).
				WithField("panic", r).
				Error("Listener panicked")
		}
	}()

	fn(ev)
}
