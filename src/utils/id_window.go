package utils

// -----------------------------------------------------------------------------
// IDWindow is a fixed-size window of recently seen identifiers.
// True ring buffer - the oldest entry is evicted when capacity is reached,
// so memory stays bounded no matter how long the feed runs.
// -----------------------------------------------------------------------------

type IDWindow struct {
	seen     map[string]struct{}
	order    []string
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewIDWindow creates a new window with fixed capacity
func NewIDWindow(capacity int) *IDWindow {
	if capacity <= 0 {
		capacity = 100 // Default reasonable size
	}

	return &IDWindow{
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Seen reports whether id is currently in the window.
func (w *IDWindow) Seen(id string) bool {
	_, ok := w.seen[id]
	return ok
}

// -----------------------------------------------------------------------------

// Add records id, evicting the oldest entry when the window is full.
// Adding an id already present is a no-op.
func (w *IDWindow) Add(id string) {
	if w.Seen(id) {
		return
	}

	if w.size == w.capacity {
		evicted := w.order[w.index]
		delete(w.seen, evicted)
	} else {
		w.size++
	}

	w.order[w.index] = id
	w.seen[id] = struct{}{}
	w.index = (w.index + 1) % w.capacity
}

// -----------------------------------------------------------------------------

// Size returns the current number of tracked identifiers.
func (w *IDWindow) Size() int {
	return w.size
}
