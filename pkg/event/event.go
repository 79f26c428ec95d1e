// Package event provides observer lists for stream readers.
//
// All lists created from one Group share a single terminal transition: once the
// group terminates, every list is cleared, later registrations are refused and
// later emissions are dropped. Observers are always invoked outside the
// group's lock, so an observer may register further observers or terminate the
// group without deadlocking.
package event

import "sync"

// Group owns the terminal state shared by a set of lists.
type Group struct {
	mu         sync.Mutex
	terminated bool
	clearers   []func()
}

// Terminate detaches every observer in the group. It reports whether this
// call performed the transition.
func (g *Group) Terminate() bool {
	g.mu.Lock()
	if g.terminated {
		g.mu.Unlock()
		return false
	}
	g.terminated = true
	clearers := g.clearers
	g.clearers = nil
	g.mu.Unlock()

	for _, clear := range clearers {
		clear()
	}
	return true
}

// Terminated reports whether the group has terminated.
func (g *Group) Terminated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminated
}

// List is an ordered set of observers for events of type T.
type List[T any] struct {
	group     *Group
	observers []func(T)
}

// NewList creates a list bound to g.
func NewList[T any](g *Group) *List[T] {
	l := &List[T]{group: g}
	g.mu.Lock()
	g.clearers = append(g.clearers, l.clear)
	g.mu.Unlock()
	return l
}

// Add registers fn. It returns false, and fn is never called, once the group
// has terminated.
func (l *List[T]) Add(fn func(T)) bool {
	if fn == nil {
		return false
	}

	l.group.mu.Lock()
	defer l.group.mu.Unlock()
	if l.group.terminated {
		return false
	}
	l.observers = append(l.observers, fn)
	return true
}

// Emit delivers v to a snapshot of the registered observers and reports how
// many were called.
func (l *List[T]) Emit(v T) int {
	l.group.mu.Lock()
	if l.group.terminated {
		l.group.mu.Unlock()
		return 0
	}
	snapshot := make([]func(T), len(l.observers))
	copy(snapshot, l.observers)
	l.group.mu.Unlock()

	for _, fn := range snapshot {
		fn(v)
	}
	return len(snapshot)
}

// EmitFinal delivers v and then terminates the group. Nothing is delivered if
// the group had already terminated.
func (l *List[T]) EmitFinal(v T) int {
	n := l.Emit(v)
	l.group.Terminate()
	return n
}

// Len returns the number of registered observers.
func (l *List[T]) Len() int {
	l.group.mu.Lock()
	defer l.group.mu.Unlock()
	return len(l.observers)
}

// clear runs without the group lock held.
func (l *List[T]) clear() {
	l.group.mu.Lock()
	l.observers = nil
	l.group.mu.Unlock()
}
