package domain

import "time"

// UploadJobStatus enumerates the lifecycle of a bulk import job.
type UploadJobStatus string

const (
	JobQueued     UploadJobStatus = "queued"
	JobProcessing UploadJobStatus = "processing"
	JobCompleted  UploadJobStatus = "completed"
	JobFailed     UploadJobStatus = "failed"
)

// MaxJobSamples caps the error/duplicate sample lists kept on a job record.
const MaxJobSamples = 10

// RowIssue is one sampled per-row problem from an import run.
type RowIssue struct {
	Row     int    `json:"row"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message"`
}

// UploadJob is the work-order for one CSV contact import. It is created at
// upload time, mutated only by the job runner, and read-only to clients via
// polling. Terminal at completed/failed; the core never deletes it.
type UploadJob struct {
	ID                 string          `json:"id"`
	Status             UploadJobStatus `json:"status"`
	FileName           string          `json:"file_name"`
	TotalContacts      int             `json:"total_contacts"`
	ProcessedContacts  int             `json:"processed_contacts"`
	SuccessfulContacts int             `json:"successful_contacts"`
	FailedContacts     int             `json:"failed_contacts"`
	DuplicateContacts  int             `json:"duplicate_contacts"`
	ValidationErrors   int             `json:"validation_errors"`
	ProgressPercentage float64         `json:"progress_percentage"`
	ProcessingRate     float64         `json:"processing_rate"`
	StartedAt          *time.Time      `json:"started_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	Errors             []RowIssue      `json:"errors,omitempty"`
	Duplicates         []RowIssue      `json:"duplicates,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`

	// Version is the store's optimistic-concurrency token.
	Version int64 `json:"-"`
}

// Terminal reports whether the job has reached a final state.
func (j *UploadJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Remaining returns the number of rows not yet processed.
func (j *UploadJob) Remaining() int {
	r := j.TotalContacts - j.ProcessedContacts
	if r < 0 {
		return 0
	}
	return r
}
