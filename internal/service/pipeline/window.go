package pipeline

import "facecapture/internal/model"

// Window keeps the most recent labels, oldest first, evicting FIFO once
// full. It is not safe for concurrent use; the Controller serializes access.
type Window struct {
	capacity int
	labels   []model.Label
}

// NewWindow creates a window. Capacities below 1 are raised to 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		labels:   make([]model.Label, 0, capacity),
	}
}

// Push appends label, evicting the oldest entry when over capacity, and
// returns a copy of the new contents.
func (w *Window) Push(label model.Label) []model.Label {
	if len(w.labels) == w.capacity {
		copy(w.labels, w.labels[1:])
		w.labels = w.labels[:len(w.labels)-1]
	}
	w.labels = append(w.labels, label)
	return w.Snapshot()
}

// Snapshot returns a copy of the current contents.
func (w *Window) Snapshot() []model.Label {
	out := make([]model.Label, len(w.labels))
	copy(out, w.labels)
	return out
}

func (w *Window) Len() int { return len(w.labels) }

func (w *Window) Cap() int { return w.capacity }
