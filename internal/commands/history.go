package commands

import "container/ring"

// HistorySize is the number of command names kept by the registry.
const HistorySize = 10

// History is a fixed-size ring of command names. Adding to a full ring
// overwrites the oldest entry.
type History struct {
	ring *ring.Ring
	size int
	len  int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = HistorySize
	}
	return &History{
		ring: ring.New(size),
		size: size,
	}
}

func (h *History) Add(name string) {
	h.ring.Value = name
	h.ring = h.ring.Next()
	if h.len < h.size {
		h.len++
	}
}

// Last returns up to n names, newest first. n <= 0 returns everything.
func (h *History) Last(n int) []string {
	if n <= 0 || n > h.len {
		n = h.len
	}
	names := make([]string, 0, n)
	for r := h.ring.Prev(); len(names) < n; r = r.Prev() {
		names = append(names, r.Value.(string))
	}
	return names
}

func (h *History) Len() int {
	return h.len
}
