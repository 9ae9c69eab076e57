package domain

type Intent string

const (
	IntentQA     Intent = "QA"
	IntentReport Intent = "Report"
)

type QueryRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	SessionID string   `json:"session_id,omitempty"`
}

type QARequest struct {
	Query     string
	Documents []string
	SessionID string
}

type ReportRequest struct {
	Query     string
	Documents []string
	Sections  []string
}

type QueryStats struct {
	IndexedDocuments int
	SkippedDocuments int
	// SkipReasons counts skipped documents by reason (missing, unsupported, parse_failure, empty).
	SkipReasons      map[string]int
	Chunks           int
	RetrievedChunks  int
	ClassifierRaw    string
	FallbackApplied  bool
}

// QueryResult is the outcome of one orchestrated query. Exactly one of
// Answer (Kind == IntentQA) or Report (Kind == IntentReport) is meaningful.
type QueryResult struct {
	Kind   Intent
	Answer string
	Report *Report
	Stats  QueryStats
}
