package glyph

// retired is a GPU object whose destruction waits for a submission.
type retired struct {
	index   uint64
	label   string
	destroy func()
}

// retireQueue defers destruction of staging buffers, superseded bind
// groups and replaced caches until the GPU has finished the submission
// that last used them.
//
// Objects retired since the last submit have no index yet; submitted
// stamps them, triage destroys everything at or below the completed
// index. Not safe for concurrent use.
type retireQueue struct {
	unsubmitted []retired
	pending     []retired
}

func (q *retireQueue) add(label string, fn func()) {
	q.unsubmitted = append(q.unsubmitted, retired{label: label, destroy: fn})
}

func (q *retireQueue) submitted(index uint64) {
	for _, r := range q.unsubmitted {
		r.index = index
		q.pending = append(q.pending, r)
	}
	clear(q.unsubmitted)
	q.unsubmitted = q.unsubmitted[:0]
}

func (q *retireQueue) triage(completed uint64) int {
	n, freed := 0, 0
	for i := range q.pending {
		if q.pending[i].index <= completed {
			q.pending[i].destroy()
			freed++
		} else {
			q.pending[n] = q.pending[i]
			n++
		}
	}
	clear(q.pending[n:])
	q.pending = q.pending[:n]
	return freed
}

// flush destroys everything regardless of submission state.
func (q *retireQueue) flush() {
	for _, r := range q.pending {
		r.destroy()
	}
	for _, r := range q.unsubmitted {
		r.destroy()
	}
	q.pending = nil
	q.unsubmitted = nil
}

func (q *retireQueue) len() int {
	return len(q.pending) + len(q.unsubmitted)
}
