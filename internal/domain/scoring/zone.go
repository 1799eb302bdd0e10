package scoring

// Zone is the classification of a scored candidate.
type Zone string

const (
	// ZoneMember is auto-included in the family and expanded further.
	ZoneMember Zone = "member"
	// ZoneExpansion is a bridge node: expanded further, not in the family.
	ZoneExpansion Zone = "expansion"
	// ZoneRejected is excluded from all future expansion.
	ZoneRejected Zone = "rejected"
)

// ZoneFor classifies a composite score. Both bounds are inclusive.
func ZoneFor(score float64, t Thresholds) Zone {
	switch {
	case score >= t.Membership:
		return ZoneMember
	case score >= t.Expansion:
		return ZoneExpansion
	}
	return ZoneRejected
}
