package ingester

// Budget bounds the work one source may cause in one run. It is never persisted and never shared between sources.
type Budget struct {
	// MaxNew caps how many unseen postings are written.
	MaxNew int
	// ChunkSize is the number of writes flushed to the store at once.
	ChunkSize  int
	newFetched int
}

func NewBudget(maxNew int, chunkSize int) *Budget {
	return &Budget{MaxNew: maxNew, ChunkSize: chunkSize}
}

// TryTakeNew reserves room for one new posting. Once the cap is reached it keeps returning false.
func (b *Budget) TryTakeNew() bool {
	if b.newFetched >= b.MaxNew {
		return false
	}
	b.newFetched++
	return true
}

func (b *Budget) NewFetched() int {
	return b.newFetched
}

func (b *Budget) Exhausted() bool {
	return b.newFetched >= b.MaxNew
}
