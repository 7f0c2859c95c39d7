package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
)

// Fingerprint is a digest of the mutable fields of a posting selected by an EqualityPolicy.
type Fingerprint string

type EqualityMode string

const (
	// EqualityHash compares a digest of the policy's fields.
	EqualityHash EqualityMode = "hash"
	// EqualityNone disables change detection: re-observed postings only have last_seen_at advanced.
	EqualityNone EqualityMode = "none"
)

func (m *EqualityMode) UnmarshalText(text []byte) error {
	switch mode := EqualityMode(strings.ToLower(strings.TrimSpace(string(text)))); mode {
	case EqualityHash, EqualityNone:
		*m = mode
		return nil
	case "":
		*m = EqualityHash
		return nil
	default:
		return &feederrors.ErrInvalidArgument{Name: "equality.mode", Value: string(text), Message: "expected hash or none"}
	}
}

type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldCategory    Field = "category"
	FieldLocation    Field = "location"
	FieldRemote      Field = "remote"
)

var DefaultEqualityFields = []Field{FieldTitle, FieldDescription, FieldCategory, FieldLocation, FieldRemote}

// EqualityPolicy decides whether a re-observed posting differs from the stored one.
type EqualityPolicy struct {
	Mode   EqualityMode
	Fields []Field
}

func DefaultEqualityPolicy() EqualityPolicy {
	return EqualityPolicy{Mode: EqualityHash, Fields: DefaultEqualityFields}
}

func (p EqualityPolicy) fields() []Field {
	if len(p.Fields) == 0 {
		return DefaultEqualityFields
	}
	return p.Fields
}

// Fingerprint digests the policy's fields of posting. It is empty when change detection is disabled.
func (p EqualityPolicy) Fingerprint(posting *JobPosting) Fingerprint {
	if p.Mode == EqualityNone {
		return ""
	}
	h := sha256.New()
	for _, f := range p.fields() {
		h.Write([]byte(f))
		h.Write([]byte{0x1f})
		switch f {
		case FieldTitle:
			h.Write([]byte(posting.Title))
		case FieldDescription:
			h.Write([]byte(posting.Description))
		case FieldCategory:
			h.Write([]byte(posting.Category))
		case FieldLocation:
			h.Write([]byte(posting.Location.Country + "\x1f" + posting.Location.Admin1 + "\x1f" + posting.Location.City))
		case FieldRemote:
			h.Write([]byte(strconv.FormatBool(posting.Remote)))
		}
		h.Write([]byte{0x1e})
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Changed reports whether a posting with fingerprint current differs from what was stored.
// A stored posting without a fingerprint is treated as changed so that it gets one.
func (p EqualityPolicy) Changed(stored Fingerprint, current Fingerprint) bool {
	if p.Mode == EqualityNone {
		return false
	}
	return stored != current
}

func (p EqualityPolicy) Validate() error {
	for _, f := range p.fields() {
		switch f {
		case FieldTitle, FieldDescription, FieldCategory, FieldLocation, FieldRemote:
		default:
			return &feederrors.ErrInvalidArgument{Name: "equality.fields", Value: string(f)}
		}
	}
	return nil
}
