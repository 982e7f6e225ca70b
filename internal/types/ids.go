package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// ConflictIDFor derives a stable UUIDv5 identifier for an unordered rule pair.
// Recomputing conflicts yields the same id, so the resolved flag survives.
func ConflictIDFor(a, b RuleID) ConflictID {
	a, b = NormalizePair(a, b)
	name := "claimscrub:conflict:" + string(a) + "|" + string(b)
	return ConflictID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String())
}

// NormalizePair orders two rule ids so (a,b) and (b,a) compare equal.
func NormalizePair(a, b RuleID) (RuleID, RuleID) {
	if b < a {
		return b, a
	}
	return a, b
}

// NewScrubID generates a UUIDv7 scrub report identifier.
// Time-ordered IDs keep report inserts clustered and carry the scrub time.
func NewScrubID() ScrubID {
	return ScrubID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleID validates a caller-supplied rule id. Any non-blank token
// without whitespace is accepted so imported ids ("NCCI-001") round-trip.
func ParseRuleID(s string) (RuleID, error) {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return "", ErrInvalidRuleID
	}
	return RuleID(s), nil
}

// ScrubIDTime extracts the timestamp embedded in a UUIDv7 scrub ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func ScrubIDTime(id ScrubID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
