package model

// Confidence bands used by processing summaries.
const (
	HighConfidence   = 0.95
	MediumConfidence = 0.85
)

// ExtractionStats are aggregate statistics computed by the store over the
// extractions it holds for one document.
type ExtractionStats struct {
	Cells           int     `json:"cells"`
	NeedsReview     int     `json:"needs_review"`
	AvgConfidence   float64 `json:"avg_confidence"`
	MinConfidence   float64 `json:"min_confidence"`
	MaxConfidence   float64 `json:"max_confidence"`
	HighCount       int     `json:"high_confidence"`
	MediumCount     int     `json:"medium_confidence"`
	LowCount        int     `json:"low_confidence"`
	UniqueRulesUsed int     `json:"unique_rules_used"`
}

// ProcessingSummary describes one document's ingestion run.
type ProcessingSummary struct {
	DocumentID       int64   `json:"document_id"`
	RowsProcessed    int     `json:"rows_processed"`
	CellsProcessed   int     `json:"cells_processed"`
	CellsNeedReview  int     `json:"cells_need_review"`
	AvgConfidence    float64 `json:"avg_confidence"`
	MinConfidence    float64 `json:"min_confidence"`
	MaxConfidence    float64 `json:"max_confidence"`
	HighConfidence   int     `json:"high_confidence"`
	MediumConfidence int     `json:"medium_confidence"`
	LowConfidence    int     `json:"low_confidence"`
	UniqueRulesUsed  int     `json:"unique_rules_used"`
	ReviewPercentage float64 `json:"review_percentage"`
}

// NewProcessingSummary builds a summary from stored-extraction statistics.
func NewProcessingSummary(documentID int64, rows int, stats ExtractionStats) *ProcessingSummary {
	s := &ProcessingSummary{
		DocumentID:       documentID,
		RowsProcessed:    rows,
		CellsProcessed:   stats.Cells,
		CellsNeedReview:  stats.NeedsReview,
		AvgConfidence:    stats.AvgConfidence,
		MinConfidence:    stats.MinConfidence,
		MaxConfidence:    stats.MaxConfidence,
		HighConfidence:   stats.HighCount,
		MediumConfidence: stats.MediumCount,
		LowConfidence:    stats.LowCount,
		UniqueRulesUsed:  stats.UniqueRulesUsed,
	}
	if stats.Cells > 0 {
		s.ReviewPercentage = float64(stats.NeedsReview) / float64(stats.Cells) * 100
	}
	return s
}

// ComputeStats aggregates in-memory extractions the same way the stores do.
// Used by stores without server-side aggregation and by dry runs.
func ComputeStats(extractions []CellExtraction) ExtractionStats {
	var st ExtractionStats
	if len(extractions) == 0 {
		return st
	}
	rules := make(map[int64]struct{})
	var sum float64
	st.MinConfidence = extractions[0].Confidence
	st.MaxConfidence = extractions[0].Confidence
	for _, e := range extractions {
		st.Cells++
		if e.NeedsReview {
			st.NeedsReview++
		}
		sum += e.Confidence
		st.MinConfidence = min(st.MinConfidence, e.Confidence)
		st.MaxConfidence = max(st.MaxConfidence, e.Confidence)
		switch {
		case e.Confidence >= HighConfidence:
			st.HighCount++
		case e.Confidence >= MediumConfidence:
			st.MediumCount++
		default:
			st.LowCount++
		}
		for _, id := range e.RuleChain {
			rules[id] = struct{}{}
		}
	}
	st.AvgConfidence = sum / float64(st.Cells)
	st.UniqueRulesUsed = len(rules)
	return st
}
