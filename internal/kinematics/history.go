package kinematics

// DefaultHistoryCapacity is the number of samples retained per joint when no
// capacity is configured.
const DefaultHistoryCapacity = 1800

// History keeps the most recent samples of one joint in a ring buffer,
// overwriting the oldest sample once full.
type History struct {
	samples  []Sample
	capacity int
	head     int // next write position
	size     int
}

// NewHistory creates a History holding at most capacity samples.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}
}

// Add appends a sample.
func (h *History) Add(s Sample) {
	h.samples[h.head] = s
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// Previous returns the sample n steps back; Previous(1) is the newest.
func (h *History) Previous(n int) (Sample, bool) {
	if n < 1 || n > h.size {
		return Sample{}, false
	}
	return h.samples[(h.head-n+h.capacity)%h.capacity], true
}

// Latest returns the newest sample.
func (h *History) Latest() (Sample, bool) {
	return h.Previous(1)
}

// All returns the retained samples from oldest to newest.
func (h *History) All() []Sample {
	out := make([]Sample, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.samples[(h.head-h.size+i+h.capacity)%h.capacity]
	}
	return out
}

// Len returns the number of retained samples.
func (h *History) Len() int {
	return h.size
}

// Capacity returns the maximum number of retained samples.
func (h *History) Capacity() int {
	return h.capacity
}

// Clear drops every sample.
func (h *History) Clear() {
	for i := range h.samples {
		h.samples[i] = Sample{}
	}
	h.head = 0
	h.size = 0
}
