package ingester

import (
	"github.com/jobfeed/jobfeed/internal/model"
)

type Classification int

const (
	// ClassNew is a posting whose key is not in the store.
	ClassNew Classification = iota
	// ClassSeenUnchanged is a known posting whose mutable fields match the stored fingerprint.
	ClassSeenUnchanged
	// ClassSeenChanged is a known posting with at least one mutable field changed.
	ClassSeenChanged
)

func (c Classification) String() string {
	switch c {
	case ClassNew:
		return "new"
	case ClassSeenUnchanged:
		return "seen-unchanged"
	case ClassSeenChanged:
		return "seen-changed"
	}
	return "unknown"
}

// classify decides what happens to a normalised posting, given the url to fingerprint projection of what the store
// already holds for its company. Whether a new posting is actually written is left to the budget.
func classify(posting *model.JobPosting, known map[string]model.Fingerprint, policy model.EqualityPolicy) (Classification, *model.PostingWrite) {
	fingerprint := policy.Fingerprint(posting)
	stored, ok := known[posting.URL]
	switch {
	case !ok:
		return ClassNew, &model.PostingWrite{Kind: model.WriteInsert, Posting: posting, Fingerprint: fingerprint}
	case policy.Changed(stored, fingerprint):
		return ClassSeenChanged, &model.PostingWrite{Kind: model.WriteRefresh, Posting: posting, Fingerprint: fingerprint}
	default:
		return ClassSeenUnchanged, &model.PostingWrite{Kind: model.WriteTouch, Posting: posting, Fingerprint: stored}
	}
}
