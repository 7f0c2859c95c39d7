package store

import (
	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/model"
)

// Merge returns the row that results from applying w on top of existing, which is nil when no row is stored.
// posted_at of an existing row is never rewritten and last_seen_at never moves backwards.
func Merge(existing *model.JobPosting, existingFingerprint model.Fingerprint, w *model.PostingWrite) (*model.JobPosting, model.Fingerprint, error) {
	var merged model.JobPosting
	fingerprint := w.Fingerprint
	switch w.Kind {
	case model.WriteInsert, model.WriteRefresh:
		merged = *w.Posting
		if existing != nil {
			merged.PostedAt = existing.PostedAt
			merged.LastSeenAt = max(existing.LastSeenAt, w.Posting.LastSeenAt)
		}
	case model.WriteTouch:
		if existing == nil {
			return nil, "", &feederrors.ErrNotFound{Type: "posting", Value: w.Key().String()}
		}
		merged = *existing
		merged.LastSeenAt = max(existing.LastSeenAt, w.Posting.LastSeenAt)
		fingerprint = existingFingerprint
	default:
		return nil, "", &feederrors.ErrInvalidArgument{Name: "kind", Value: w.Kind.String()}
	}
	if err := model.Validate(&merged); err != nil {
		return nil, "", err
	}
	return &merged, fingerprint, nil
}
