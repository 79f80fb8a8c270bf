package usecase

import (
	"sync"

	"cardchat/internal/domain"
)

// LiveFragment is a concurrency-safe fragment handle. The caller holds it
// as the display value for a transcript entry; the turn runner and any
// background continuation push updates through it. Subscribers (the
// gateway) observe every update in order.
type LiveFragment struct {
	mu      sync.Mutex
	current domain.Fragment
	done    bool
	subs    map[uint64]func(domain.Fragment, bool)
	nextSub uint64
}

// NewLiveFragment creates a handle with an initial value.
func NewLiveFragment(initial domain.Fragment) *LiveFragment {
	return &LiveFragment{
		current: initial,
		subs:    make(map[uint64]func(domain.Fragment, bool)),
	}
}

// Update replaces the current value. Ignored once finalized.
func (l *LiveFragment) Update(f domain.Fragment) {
	l.publish(f, false)
}

// Done finalizes the fragment. Subsequent Update and Done calls are ignored.
func (l *LiveFragment) Done(f domain.Fragment) {
	l.publish(f, true)
}

func (l *LiveFragment) publish(f domain.Fragment, final bool) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.current = f
	l.done = final
	subs := make([]func(domain.Fragment, bool), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	// Invoke outside the lock so a subscriber may call Current.
	for _, fn := range subs {
		fn(f, final)
	}
}

// Current returns the latest value and whether the handle is finalized.
func (l *LiveFragment) Current() (domain.Fragment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current, l.done
}

// Subscribe registers fn for every subsequent update and immediately
// replays the current value. Returns an unsubscribe function.
func (l *LiveFragment) Subscribe(fn func(f domain.Fragment, done bool)) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	current, done := l.current, l.done
	l.mu.Unlock()

	fn(current, done)

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Compile-time interface check.
var _ domain.FragmentHandle = (*LiveFragment)(nil)
