package rules

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/model"
)

// GlobalScope is the source-type key for rules without a source type.
const GlobalScope = "GLOBAL"

type scope struct {
	sourceType string
	sourceName string
	column     string
}

func scopeOf(def model.CleaningRule) scope {
	s := scope{
		sourceType: model.Deref(def.SourceType),
		sourceName: model.Deref(def.SourceName),
		column:     model.Deref(def.ColumnName),
	}
	if s.sourceType == "" {
		s.sourceType = GlobalScope
	}
	return s
}

// Index is an immutable set of compiled rules bucketed by scope.
type Index struct {
	all     []Rule
	buckets map[scope][]Rule
	invalid int

	// resolved memoizes Resolve per cell scope; safe because the index
	// never changes after Build.
	resolved sync.Map
}

// Build compiles active rules into an Index. Input order is ignored: rules
// are ordered by priority, then id. Rules that fail to compile are kept as
// Inert and logged once.
func Build(defs []model.CleaningRule) *Index {
	sorted := make([]model.CleaningRule, 0, len(defs))
	for _, d := range defs {
		if d.IsActive {
			sorted = append(sorted, d)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	idx := &Index{
		all:     make([]Rule, 0, len(sorted)),
		buckets: make(map[scope][]Rule),
	}
	for _, d := range sorted {
		r, err := Compile(d)
		if err != nil {
			idx.invalid++
			zap.L().Warn("rules: rule is inert",
				zap.Int64("rule_id", d.ID),
				zap.String("rule_name", d.Name),
				zap.Error(err),
			)
		}
		idx.all = append(idx.all, r)
		key := scopeOf(d)
		idx.buckets[key] = append(idx.buckets[key], r)
	}
	return idx
}

// Len returns the number of active rules, inert ones included.
func (idx *Index) Len() int { return len(idx.all) }

// Invalid returns the number of rules that failed to compile.
func (idx *Index) Invalid() int { return idx.invalid }

// Rules returns every rule in (priority, id) order.
func (idx *Index) Rules() []Rule {
	return append([]Rule(nil), idx.all...)
}

// Resolve returns the rules eligible for a cell, ordered by priority.
// A rule is eligible when each of its scoping fields is either unset or
// equal to the cell's value. Ties in priority keep the more specific
// scope first. The returned slice is shared and must not be modified.
func (idx *Index) Resolve(column, sourceType, sourceName string) []Rule {
	key := scope{sourceType: sourceType, sourceName: sourceName, column: column}
	if cached, ok := idx.resolved.Load(key); ok {
		return cached.([]Rule)
	}

	var out []Rule
	seen := make(map[scope]struct{}, 8)
	for _, st := range []string{sourceType, GlobalScope} {
		if st == "" {
			continue
		}
		for _, sn := range []string{sourceName, ""} {
			for _, col := range []string{column, ""} {
				k := scope{sourceType: st, sourceName: sn, column: col}
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				out = append(out, idx.buckets[k]...)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Definition().Priority < out[j].Definition().Priority
	})

	actual, _ := idx.resolved.LoadOrStore(key, out)
	return actual.([]Rule)
}
