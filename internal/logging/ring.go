package logging

type eventRing struct {
	buf   []Event
	start int
	size  int
}

func newEventRing(capacity int) eventRing {
	if capacity <= 0 {
		capacity = 1
	}
	return eventRing{buf: make([]Event, capacity)}
}

func (r *eventRing) push(event Event) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = event
		r.size++
		return
	}
	r.buf[r.start] = event
	r.start = (r.start + 1) % len(r.buf)
}

func (r *eventRing) last(n int) []Event {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]Event, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
