package env

// actionRing is a fixed-capacity buffer of recent action indices. Once full,
// each push evicts the oldest entry.
type actionRing struct {
	buf  []int
	next int
	size int
}

func newActionRing(capacity int) *actionRing {
	if capacity < 1 {
		capacity = 1
	}
	return &actionRing{buf: make([]int, capacity)}
}

// Push records an action, evicting the oldest one when the ring is full.
func (r *actionRing) Push(action int) {
	r.buf[r.next] = action
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Len returns the number of recorded actions, at most the ring's capacity.
func (r *actionRing) Len() int {
	return r.size
}

// Items returns the recorded actions oldest first.
func (r *actionRing) Items() []int {
	out := make([]int, 0, r.size)
	start := (r.next - r.size + len(r.buf)) % len(r.buf)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Tokens encodes the history as a fixed-length vector of the ring's capacity.
// Actions are stored shifted by one so that zero always means an empty slot,
// and the most recent action sits in the final position.
func (r *actionRing) Tokens() []int32 {
	out := make([]int32, len(r.buf))
	items := r.Items()
	offset := len(out) - len(items)
	for i, a := range items {
		out[offset+i] = int32(a) + 1
	}
	return out
}
