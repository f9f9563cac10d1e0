package model

import "time"

// Document is one ingested file.
type Document struct {
	ID         int64          `json:"id"`
	TaskID     int64          `json:"task_id"`
	FileName   string         `json:"file_name"`
	SourceType string         `json:"source_type"`
	SourceName string         `json:"source_name"`
	OrgID      string         `json:"org_id,omitempty"`
	DocType    string         `json:"doc_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CellExtraction is one processed cell together with its rule provenance.
type CellExtraction struct {
	DocumentID   int64   `json:"document_id"`
	RowIndex     int     `json:"row_index"`
	ColumnName   string  `json:"column_name"`
	RawValue     string  `json:"raw_value"`
	CleanedValue string  `json:"cleaned_value"`
	Confidence   float64 `json:"confidence"`
	RuleChain    []int64 `json:"rule_chain"`
	NeedsReview  bool    `json:"needs_review"`
	Similarity   float64 `json:"similarity"`
	SourceType   string  `json:"source_type"`
	SourceName   string  `json:"source_name"`
}
