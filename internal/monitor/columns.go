package monitor

import "strings"

// Default candidate lists, in priority order. Matching is
// case/whitespace-insensitive and substring-tolerant, so "IO ID",
// "insertion_order_id" and "Insertion Order ID " all resolve.
var (
	JoinKeyCandidates     = []string{"insertion order id", "insertion_order_id", "io id", "io number", "insertion order", "io"}
	DateCandidates        = []string{"report date", "reportdate", "date", "day"}
	ImpressionsCandidates = []string{"delivered impressions", "impressions", "imps"}
	CostCandidates        = []string{"media cost", "net cost", "cost", "spend"}
	CPMCeltraCandidates   = []string{"cpm celtra", "celtra cpm", "cpm_celtra"}
	CPMCandidates         = []string{"cpm rate", "cpm"}
)

// ColumnDetector resolves which of a row's field names holds a given
// concern, by scanning a prioritized candidate list. It is a
// replaceable strategy so the matching rules stay testable apart from
// the aggregation math.
type ColumnDetector struct{}

// NewColumnDetector returns the default detector.
func NewColumnDetector() *ColumnDetector {
	return &ColumnDetector{}
}

// Detect returns the first field name matching any candidate, walking
// candidates in priority order. Exact normalized matches are
// preferred over substring hits within each candidate.
func (d *ColumnDetector) Detect(names []string, candidates []string) (string, bool) {
	for _, cand := range candidates {
		nc := normalizeColumn(cand)
		for _, name := range names {
			if normalizeColumn(name) == nc {
				return name, true
			}
		}
		for _, name := range names {
			if strings.Contains(normalizeColumn(name), nc) {
				return name, true
			}
		}
	}
	return "", false
}

// DetectExcluding behaves like Detect but skips names already claimed
// by another concern (e.g. the CPM-Celtra column must not also win
// the plain CPM lookup).
func (d *ColumnDetector) DetectExcluding(names []string, candidates []string, exclude ...string) (string, bool) {
	filtered := make([]string, 0, len(names))
outer:
	for _, n := range names {
		for _, ex := range exclude {
			if n == ex {
				continue outer
			}
		}
		filtered = append(filtered, n)
	}
	return d.Detect(filtered, candidates)
}

func normalizeColumn(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ', '\t', '_', '-', '.':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
