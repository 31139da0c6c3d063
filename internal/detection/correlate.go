package detection

import "strings"

// CorrelationCandidate is one automation fed into the correlator, carrying
// just the signals correlation cares about.
type CorrelationCandidate struct {
	AutomationID  string
	Platform      string
	OwnerEmail    string
	OAuthClientID string
	FirstTrigger  int64 // unix seconds, zero if unknown
	URLPattern    string
}

// CorrelationClass is one equivalence class the correlator produced:
// automations it believes represent the same logical workflow across
// platforms, annotated (not merged) with a confidence score.
type CorrelationClass struct {
	AutomationIDs []string
	Confidence    float64
	Signals       []string
}

// temporalProximityWindow bounds how close two automations' first
// trigger times must be to count as a temporal-proximity signal.
const temporalProximityWindow = 300 // seconds

// requiredSignals is spec resolution: two automations correlate only
// when at least this many independent signals agree, never on one weak
// signal alone (see DESIGN.md Open Question #3).
const requiredSignals = 2

// disjointSet is a standard union-find over candidate indices.
type disjointSet struct {
	parent []int
	rank   []int
}

func newDisjointSet(n int) *disjointSet {
	d := &disjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range d.parent {
		d.parent[i] = i
	}
	return d
}

func (d *disjointSet) find(x int) int {
	if d.parent[x] != x {
		d.parent[x] = d.find(d.parent[x])
	}
	return d.parent[x]
}

func (d *disjointSet) union(x, y int) {
	rx, ry := d.find(x), d.find(y)
	if rx == ry {
		return
	}
	if d.rank[rx] < d.rank[ry] {
		rx, ry = ry, rx
	}
	d.parent[ry] = rx
	if d.rank[rx] == d.rank[ry] {
		d.rank[rx]++
	}
}

// Correlate groups candidates into equivalence classes sharing at least
// requiredSignals independent signals (owner email, OAuth client id,
// temporal proximity of first trigger, shared URL pattern). Does not
// merge records -- callers annotate each DiscoveredAutomation with its
// class id and confidence, per spec.md §4.4.
func Correlate(candidates []CorrelationCandidate) []CorrelationClass {
	n := len(candidates)
	if n < 2 {
		return nil
	}
	ds := newDisjointSet(n)
	pairSignals := make(map[[2]int][]string)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			signals := sharedSignals(candidates[i], candidates[j])
			if len(signals) >= requiredSignals {
				ds.union(i, j)
				pairSignals[[2]int{i, j}] = signals
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := ds.find(i)
		groups[root] = append(groups[root], i)
	}

	var classes []CorrelationClass
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		var ids []string
		signalSet := make(map[string]struct{})
		for _, idx := range members {
			ids = append(ids, candidates[idx].AutomationID)
		}
		for pair, signals := range pairSignals {
			if !contains(members, pair[0]) || !contains(members, pair[1]) {
				continue
			}
			for _, s := range signals {
				signalSet[s] = struct{}{}
			}
		}
		var signals []string
		for s := range signalSet {
			signals = append(signals, s)
		}
		classes = append(classes, CorrelationClass{
			AutomationIDs: ids,
			Confidence:    confidenceFromSignalCount(len(signals)),
			Signals:       signals,
		})
	}
	return classes
}

func sharedSignals(a, b CorrelationCandidate) []string {
	var signals []string
	if a.OwnerEmail != "" && a.OwnerEmail == b.OwnerEmail {
		signals = append(signals, "shared_owner_email")
	}
	if a.OAuthClientID != "" && a.OAuthClientID == b.OAuthClientID {
		signals = append(signals, "oauth_client_id_collision")
	}
	if a.FirstTrigger != 0 && b.FirstTrigger != 0 {
		delta := a.FirstTrigger - b.FirstTrigger
		if delta < 0 {
			delta = -delta
		}
		if delta <= temporalProximityWindow {
			signals = append(signals, "temporal_proximity")
		}
	}
	if a.URLPattern != "" && b.URLPattern != "" && strings.EqualFold(a.URLPattern, b.URLPattern) {
		signals = append(signals, "shared_url_pattern")
	}
	return signals
}

func confidenceFromSignalCount(count int) float64 {
	switch {
	case count >= 4:
		return 0.95
	case count == 3:
		return 0.85
	default:
		return 0.7
	}
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
