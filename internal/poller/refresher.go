package poller

// Refresher coalesces refresh requests into one in-flight fetch plus at most one queued
// follow-up. Callbacks registered while a fetch runs are released by the next fetch, which
// starts after their request. Not safe for concurrent use; the session loop owns it.
type Refresher struct {
	inFlight bool
	queued   bool
	current  []func()
	waiting  []func()
}

// Request registers done (may be nil) and reports whether the caller must start a fetch now.
func (r *Refresher) Request(done func()) bool {
	if !r.inFlight {
		r.inFlight = true
		if done != nil {
			r.current = append(r.current, done)
		}
		return true
	}
	r.queued = true
	if done != nil {
		r.waiting = append(r.waiting, done)
	}
	return false
}

// Finish closes the running fetch. It returns the callbacks to release and whether a
// queued follow-up fetch must start immediately.
func (r *Refresher) Finish() (done []func(), again bool) {
	done, r.current = r.current, nil
	if r.queued {
		r.queued = false
		r.current, r.waiting = r.waiting, nil
		return done, true
	}
	r.inFlight = false
	return done, false
}

func (r *Refresher) InFlight() bool { return r.inFlight }

// Drain releases every pending callback; used at teardown.
func (r *Refresher) Drain() []func() {
	out := append(r.current, r.waiting...)
	r.current, r.waiting = nil, nil
	r.inFlight, r.queued = false, false
	return out
}
