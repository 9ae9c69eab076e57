package domain

type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// IndexReport summarizes one ingestion batch.
type IndexReport struct {
	Documents int            `json:"documents"`
	Chunks    int            `json:"chunks"`
	Created   bool           `json:"created"`
	Skipped   map[string]int `json:"skipped,omitempty"`
}

func (r IndexReport) SkippedTotal() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

type GenerateOptions struct {
	Temperature float64
	JSON        bool
}
