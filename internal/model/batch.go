package model

import "time"

// BatchStatus is the lifecycle state of a batch.
// Transitions run PENDING -> PROCESSING -> COMPLETED or FAILED and never reverse.
type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
)

// AnalysisBatch groups the results of one bulk run.
type AnalysisBatch struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Identifiers      []string          `json:"asins"`
	Status           BatchStatus       `json:"status"`
	TotalCount       int               `json:"total_asins"`
	ProcessedCount   int               `json:"processed_asins"`
	SuccessCount     int               `json:"successful_analyses"`
	FailureCount     int               `json:"failed_analyses"`
	UnavailableCount int               `json:"unavailable_in_usa_count"`
	ResultIDs        []string          `json:"result_ids"`
	ErrorLog         map[string]string `json:"error_log"`
	StartedAt        *time.Time        `json:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Finish moves the batch into a terminal status and stamps the completion time.
// It is a no-op on a batch that already finished.
func (b *AnalysisBatch) Finish(status BatchStatus, at time.Time) {
	if b.Status == BatchCompleted || b.Status == BatchFailed {
		return
	}
	b.Status = status
	b.CompletedAt = &at
}
