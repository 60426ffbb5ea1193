package crawler

// Aggregator accumulates the distinct words observed across a crawl.
// It only grows; there is no removal.
type Aggregator struct {
	words []string
	index map[string]struct{}
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{index: make(map[string]struct{})}
}

// Merge adds every word not seen before and returns how many were new.
func (a *Aggregator) Merge(words []string) int {
	added := 0
	for _, w := range words {
		if _, ok := a.index[w]; ok {
			continue
		}
		a.index[w] = struct{}{}
		a.words = append(a.words, w)
		added++
	}
	return added
}

// Snapshot returns the word count and a copy of the words in the order
// they were first seen.
func (a *Aggregator) Snapshot() (int, []string) {
	words := make([]string, len(a.words))
	copy(words, a.words)
	return len(words), words
}

// Len returns the number of distinct words.
func (a *Aggregator) Len() int {
	return len(a.words)
}
