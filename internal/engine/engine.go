// Package engine runs the cleaning rule chain over individual cells.
package engine

import (
	"strings"

	"github.com/oceanid/ingest-worker/internal/confidence"
	"github.com/oceanid/ingest-worker/internal/model"
	"github.com/oceanid/ingest-worker/internal/rules"
)

// DefaultMaxPasses bounds the fixed-point iteration over a cell.
const DefaultMaxPasses = 3

// Resolver returns the rules eligible for a cell in priority order.
type Resolver interface {
	Resolve(column, sourceType, sourceName string) []rules.Rule
}

// Cell is one raw value with its location and source.
type Cell struct {
	DocumentID int64
	RowIndex   int
	Column     string
	Raw        string
	SourceType string
	SourceName string
}

// Engine cleans cells. It holds no per-cell state and is safe for
// concurrent use.
type Engine struct {
	resolver  Resolver
	model     *confidence.Model
	maxPasses int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxPasses overrides DefaultMaxPasses. Values below 1 are ignored.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxPasses = n
		}
	}
}

// New creates an Engine.
func New(resolver Resolver, m *confidence.Model, opts ...Option) *Engine {
	e := &Engine{resolver: resolver, model: m, maxPasses: DefaultMaxPasses}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Model returns the confidence model used for thresholds.
func (e *Engine) Model() *confidence.Model { return e.model }

// Process runs the rule chain over one cell.
func (e *Engine) Process(c Cell) model.CellExtraction {
	raw := strings.ToValidUTF8(c.Raw, "")

	ext := model.CellExtraction{
		DocumentID:   c.DocumentID,
		RowIndex:     c.RowIndex,
		ColumnName:   c.Column,
		RawValue:     raw,
		CleanedValue: raw,
		RuleChain:    []int64{},
		SourceType:   c.SourceType,
		SourceName:   c.SourceName,
	}

	// Absent values, placeholders included, are valid and skip the chain.
	if NormalizeValue(raw) == "" {
		ext.CleanedValue = ""
		ext.Confidence = 1.0
		ext.Similarity = Similarity(raw, "")
		return ext
	}

	threshold := e.model.ThresholdFor(c.Column, c.SourceType)
	chain := e.resolver.Resolve(c.Column, c.SourceType, c.SourceName)

	value := raw
	score := confidence.Initial

passes:
	for pass := 0; pass < e.maxPasses && len(chain) > 0; pass++ {
		before := value
		for _, r := range chain {
			out, fired := r.Apply(value)
			if !fired {
				continue
			}
			def := r.Definition()
			value = out
			ext.RuleChain = append(ext.RuleChain, def.ID)
			score = confidence.Update(score, def.Confidence, pass)
			if score >= threshold {
				break passes
			}
		}
		if value == before {
			break
		}
	}

	ext.Similarity = Similarity(raw, value)
	ext.Confidence = confidence.AdjustForSimilarity(score, ext.Similarity)
	ext.CleanedValue = NormalizeValue(value)
	ext.NeedsReview = ext.Confidence < threshold
	return ext
}
