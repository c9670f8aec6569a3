// Package access computes the privacy scope a caller is entitled to.
//
// The scope is sent to the internal search service as a path segment, which
// filters profile fields by it, and gates the orgchart endpoints.
package access

import "slices"

type Level string

// Levels from least to most access. GetPrivacy never returns Private; the
// orgchart gate still accepts it.
const (
	Public        Level = "public"
	Authenticated Level = "authenticated"
	Vouched       Level = "vouched"
	NDA           Level = "nda"
	Staff         Level = "staff"
	Private       Level = "private"
)

// Subject is what GetPrivacy needs to know about the caller.
type Subject interface {
	Staff() bool
	NDAMember() bool
	Vouched() bool
}

// GetPrivacy returns the scope of caller. A nil caller is anonymous.
func GetPrivacy(caller Subject) Level {
	if caller == nil {
		return Public
	}
	switch {
	case caller.Staff():
		return Staff
	case caller.NDAMember():
		return NDA
	case caller.Vouched():
		return Vouched
	default:
		return Authenticated
	}
}

// In reports whether l is one of allowed.
func (l Level) In(allowed ...Level) bool {
	return slices.Contains(allowed, l)
}

func (l Level) String() string { return string(l) }
