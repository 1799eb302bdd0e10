package citation

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// SectorRef places a patent in the three-level sector taxonomy. Any level may
// be empty when unknown.
type SectorRef struct {
	SuperSector string `json:"super_sector,omitempty"`
	Sector      string `json:"sector,omitempty"`
	SubSector   string `json:"sub_sector,omitempty"`
}

// IsZero reports whether no taxonomy level is known.
func (s SectorRef) IsZero() bool {
	return s.SuperSector == "" && s.Sector == "" && s.SubSector == ""
}

// PatentDetail is the core metadata of a patent as returned by the gateway.
// It is immutable once fetched and cached by id.
type PatentDetail struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Assignee   string     `json:"assignee"`
	CPCCodes   []string   `json:"cpc_codes,omitempty"`
	FilingDate *time.Time `json:"filing_date,omitempty"`
	// Sector is nil for non-portfolio patents with no curated taxonomy.
	Sector *SectorRef `json:"sector,omitempty"`
}

// CitationEdge is a directed citation: Citing cites Cited.
type CitationEdge struct {
	Citing string `json:"citing"`
	Cited  string `json:"cited"`
}

// Affiliate is an entity related to the portfolio owner.
type Affiliate struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// Group is the corporate group the affiliate files under: its parent when
// known, otherwise its own name.
func (a *Affiliate) Group() string {
	if a == nil {
		return ""
	}
	if a.Parent != "" {
		return a.Parent
	}
	return a.Name
}

// Competitor is a tracked competitor with the aliases it files under.
type Competitor struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// NormalizeEntity canonicalizes an assignee or company name for comparison:
// lower case, punctuation dropped, whitespace collapsed and common corporate
// suffixes removed.
func NormalizeEntity(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		default:
			sb.WriteRune(' ')
		}
	}
	fields := strings.Fields(sb.String())
	for len(fields) > 1 && corporateSuffixes[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

var corporateSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true,
	"co": true, "company": true, "ltd": true, "limited": true, "llc": true,
	"plc": true, "gmbh": true, "ag": true, "sa": true, "bv": true, "kk": true,
}

// NormalizeIDs trims, drops blanks, deduplicates and sorts patent ids.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

//Personal.AI order the ending
