package crawler

// Frontier is the FIFO queue of prefixes awaiting a fetch.
// A prefix is accepted at most once for the lifetime of the frontier,
// whether or not it is still queued.
//
// Frontier is not safe for concurrent use; only the crawl loop touches it,
// between batches.
type Frontier struct {
	queue []string
	seen  map[string]bool
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{seen: make(map[string]bool)}
}

// Push appends prefix to the queue. It returns false if the prefix was
// already pushed before.
func (f *Frontier) Push(prefix string) bool {
	if f.seen[prefix] {
		return false
	}
	f.seen[prefix] = true
	f.queue = append(f.queue, prefix)
	return true
}

// PopBatch removes and returns up to n prefixes from the front of the queue.
func (f *Frontier) PopBatch(n int) []string {
	if n > len(f.queue) {
		n = len(f.queue)
	}
	batch := make([]string, n)
	copy(batch, f.queue[:n])

	// Shift in place so dequeued prefixes are not kept reachable.
	f.queue = append(f.queue[:0], f.queue[n:]...)
	return batch
}

// Len returns the number of queued prefixes.
func (f *Frontier) Len() int {
	return len(f.queue)
}
