package model

type WriteKind int

const (
	// WriteInsert creates a posting seen for the first time.
	WriteInsert WriteKind = iota
	// WriteRefresh replaces the mutable fields of a known posting and advances last_seen_at.
	WriteRefresh
	// WriteTouch only advances last_seen_at.
	WriteTouch
)

func (k WriteKind) String() string {
	switch k {
	case WriteInsert:
		return "insert"
	case WriteRefresh:
		return "refresh"
	case WriteTouch:
		return "touch"
	}
	return "unknown"
}

// PostingWrite is one item of a batch upsert.
type PostingWrite struct {
	Kind        WriteKind
	Posting     *JobPosting
	Fingerprint Fingerprint
}

func (w *PostingWrite) Key() Key {
	return w.Posting.Key()
}
