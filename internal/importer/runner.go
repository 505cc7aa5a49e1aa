// Package importer runs background bulk CSV contact imports. A submitted
// file becomes an UploadJob record that the runner mutates as it works
// through the rows; clients observe progress by polling the job status.
// Row outcomes are independent: one bad row never aborts the batch.
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/service/contact"
	"github.com/ignite/campaigner/internal/store"
)

// DefaultProgressEvery is how many rows are processed between persisted
// progress updates.
const DefaultProgressEvery = 25

// casAttempts bounds job-record write retries on version conflicts.
const casAttempts = 3

// headerAliases maps common CSV column spellings to the system fields the
// import understands.
var headerAliases = map[string][]string{
	"email":          {"email", "email_address", "e-mail", "emailaddress", "mail"},
	"first_name":     {"first_name", "firstname", "first", "fname", "given_name"},
	"last_name":      {"last_name", "lastname", "last", "lname", "surname"},
	"status":         {"status", "subscriber_status"},
	"tags":           {"tags", "labels", "categories"},
	"subscribe_date": {"subscribe_date", "subscribed_at", "signup_date", "opt_in_date"},
	"notes":          {"notes", "comments", "remarks"},
}

// Repository is the slice of the record store gateway the runner needs.
type Repository interface {
	GetJob(ctx context.Context, id string) (*domain.UploadJob, error)
	PutJob(ctx context.Context, j *domain.UploadJob) error
	CreateContact(ctx context.Context, c *domain.Contact) error
	ArchiveUpload(ctx context.Context, key string, payload []byte) error
}

// Runner owns upload jobs from submission to completion.
type Runner struct {
	repo          Repository
	progressEvery int
	maxFileBytes  int64

	// now is swapped out by tests.
	now func() time.Time
}

// NewRunner creates a runner. maxFileBytes of zero disables the size
// check.
func NewRunner(repo Repository, progressEvery int, maxFileBytes int64) *Runner {
	if progressEvery < 1 {
		progressEvery = DefaultProgressEvery
	}
	return &Runner{
		repo:          repo,
		progressEvery: progressEvery,
		maxFileBytes:  maxFileBytes,
		now:           time.Now,
	}
}

// columnMap resolves header names to field positions.
type columnMap map[string]int

func mapHeader(header []string) columnMap {
	cols := make(columnMap)
	for idx, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		for field, aliases := range headerAliases {
			if _, taken := cols[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if name == alias {
					cols[field] = idx
					break
				}
			}
		}
	}
	return cols
}

func (c columnMap) get(record []string, field string) string {
	idx, ok := c[field]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// Submit validates the payload, creates the job record in queued state,
// archives the raw file, and starts the run in the background. The job id
// is available to the caller immediately.
func (r *Runner) Submit(ctx context.Context, fileName string, payload []byte) (*domain.UploadJob, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, ErrEmptyFile
	}
	if r.maxFileBytes > 0 && int64(len(payload)) > r.maxFileBytes {
		return nil, ErrFileTooLarge
	}

	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	cols := mapHeader(records[0])
	if _, ok := cols["email"]; !ok {
		return nil, ErrMissingColumns
	}
	if _, ok := cols["first_name"]; !ok {
		return nil, ErrMissingColumns
	}
	rows := records[1:]

	job := &domain.UploadJob{
		ID:            uuid.New().String(),
		Status:        domain.JobQueued,
		FileName:      fileName,
		TotalContacts: len(rows),
		CreatedAt:     r.now().UTC(),
	}
	if err := r.repo.PutJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating upload job: %w", err)
	}

	// The raw payload is kept for later inspection. Archive failures are
	// logged, never fatal to the import.
	key := fmt.Sprintf("uploads/%s/%s", job.ID, fileName)
	if err := r.repo.ArchiveUpload(ctx, key, payload); err != nil {
		log.Printf("[importer] Job %s: archiving upload failed: %v", job.ID, err)
	}

	// The run owns its own context; client disconnects must not stop it.
	go r.run(context.Background(), job.ID, cols, rows)

	return job, nil
}

// run processes the rows in file order, persisting progress every
// progressEvery rows and once at the end.
func (r *Runner) run(ctx context.Context, jobID string, cols columnMap, rows [][]string) {
	started := r.now().UTC()
	if err := r.mutateJob(ctx, jobID, func(j *domain.UploadJob) {
		j.Status = domain.JobProcessing
		j.StartedAt = &started
	}); err != nil {
		log.Printf("[importer] Job %s: could not mark processing: %v", jobID, err)
		r.failJob(ctx, jobID, err)
		return
	}

	var (
		processed, successful, failed, duplicates, validationFailures int
		errorSamples, duplicateSamples                                []domain.RowIssue
		rate                                                          float64
		windowStart                                                   = r.now()
		windowRows                                                    int
	)

	addError := func(row int, email, msg string) {
		if len(errorSamples) < domain.MaxJobSamples {
			errorSamples = append(errorSamples, domain.RowIssue{Row: row, Email: email, Message: msg})
		}
	}
	addDuplicate := func(row int, email string) {
		if len(duplicateSamples) < domain.MaxJobSamples {
			duplicateSamples = append(duplicateSamples, domain.RowIssue{Row: row, Email: email, Message: "email already exists"})
		}
	}

	for i, record := range rows {
		rowNum := i + 2 // 1-based, counting the header

		outcome, email, msg := r.importRow(ctx, cols, record)
		switch outcome {
		case rowSuccessful:
			successful++
		case rowDuplicate:
			duplicates++
			addDuplicate(rowNum, email)
		case rowInvalid:
			failed++
			validationFailures++
			addError(rowNum, email, msg)
		case rowFailed:
			failed++
			addError(rowNum, email, msg)
		}
		processed++
		windowRows++

		if processed%r.progressEvery == 0 {
			rate = smoothRate(rate, windowRows, r.now().Sub(windowStart))
			windowStart = r.now()
			windowRows = 0

			p, s, f, d, v := processed, successful, failed, duplicates, validationFailures
			currentRate := rate
			if err := r.mutateJob(ctx, jobID, func(j *domain.UploadJob) {
				j.ProcessedContacts = p
				j.SuccessfulContacts = s
				j.FailedContacts = f
				j.DuplicateContacts = d
				j.ValidationErrors = v
				j.ProgressPercentage = progress(p, j.TotalContacts)
				j.ProcessingRate = currentRate
				j.Errors = errorSamples
				j.Duplicates = duplicateSamples
			}); err != nil {
				log.Printf("[importer] Job %s: progress update failed: %v", jobID, err)
			}
		}
	}

	completed := r.now().UTC()
	rate = smoothRate(rate, windowRows, r.now().Sub(windowStart))
	if err := r.mutateJob(ctx, jobID, func(j *domain.UploadJob) {
		j.Status = domain.JobCompleted
		j.CompletedAt = &completed
		j.ProcessedContacts = processed
		j.SuccessfulContacts = successful
		j.FailedContacts = failed
		j.DuplicateContacts = duplicates
		j.ValidationErrors = validationFailures
		j.ProgressPercentage = 100
		j.ProcessingRate = rate
		j.Errors = errorSamples
		j.Duplicates = duplicateSamples
	}); err != nil {
		log.Printf("[importer] Job %s: final update failed: %v", jobID, err)
		return
	}

	log.Printf("[importer] Job %s: completed, %d ok, %d duplicate, %d failed of %d",
		jobID, successful, duplicates, failed, processed)
}

type rowOutcome int

const (
	rowSuccessful rowOutcome = iota
	rowDuplicate
	rowInvalid
	rowFailed
)

// importRow validates and stores one CSV row.
func (r *Runner) importRow(ctx context.Context, cols columnMap, record []string) (rowOutcome, string, string) {
	firstName := cols.get(record, "first_name")
	email := cols.get(record, "email")
	if firstName == "" || email == "" {
		return rowInvalid, email, "missing first_name or email"
	}
	if err := contact.ValidateEmail(email); err != nil {
		return rowInvalid, email, "email address is not valid"
	}

	status := domain.ContactActive
	if raw := cols.get(record, "status"); raw != "" {
		status = domain.ContactStatus(strings.ToLower(raw))
		if !status.Valid() {
			return rowInvalid, email, fmt.Sprintf("unknown status %q", raw)
		}
	}

	subscribed := r.now().UTC()
	if raw := cols.get(record, "subscribe_date"); raw != "" {
		if parsed, err := parseDate(raw); err == nil {
			subscribed = parsed
		}
	}

	now := r.now().UTC()
	c := &domain.Contact{
		ID:            uuid.New().String(),
		FirstName:     firstName,
		LastName:      cols.get(record, "last_name"),
		Email:         email,
		Status:        status,
		Tags:          splitTags(cols.get(record, "tags")),
		SubscribeDate: subscribed,
		Notes:         cols.get(record, "notes"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.repo.CreateContact(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return rowDuplicate, email, ""
		}
		return rowFailed, email, err.Error()
	}
	return rowSuccessful, email, ""
}

// splitTags splits a raw tag field on commas, semicolons, or pipes.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	var tags []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func progress(processed, total int) float64 {
	if total < 1 {
		return 100
	}
	return float64(processed) / float64(total) * 100
}

// smoothRate folds the latest window into an exponential moving average so
// the reported contacts/second does not jitter between batches.
func smoothRate(prev float64, rows int, elapsed time.Duration) float64 {
	if rows == 0 || elapsed <= 0 {
		return prev
	}
	instant := float64(rows) / elapsed.Seconds()
	if prev == 0 {
		return instant
	}
	return prev*0.7 + instant*0.3
}

// failJob marks the job failed, best effort.
func (r *Runner) failJob(ctx context.Context, jobID string, cause error) {
	completed := r.now().UTC()
	if err := r.mutateJob(ctx, jobID, func(j *domain.UploadJob) {
		j.Status = domain.JobFailed
		j.CompletedAt = &completed
		j.ErrorMessage = cause.Error()
	}); err != nil {
		log.Printf("[importer] Job %s: could not record failure: %v", jobID, err)
	}
}

// mutateJob runs a read-modify-write cycle on the job record with bounded
// retries on version conflicts.
func (r *Runner) mutateJob(ctx context.Context, jobID string, fn func(*domain.UploadJob)) error {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		j, err := r.repo.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		fn(j)
		if err := r.repo.PutJob(ctx, j); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

// Status is the polling view of a job: the record plus the derived
// completion estimate.
type Status struct {
	domain.UploadJob
	EstimatedCompletion string `json:"estimated_completion,omitempty"`
}

// GetStatus returns the job with its estimated completion. The estimate is
// "Unknown" while the rate is zero or unavailable, and omitted once the
// job is terminal.
func (r *Runner) GetStatus(ctx context.Context, jobID string) (*Status, error) {
	j, err := r.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	s := &Status{UploadJob: *j}
	if !j.Terminal() {
		s.EstimatedCompletion = estimateCompletion(j.Remaining(), j.ProcessingRate)
	}
	return s, nil
}

// estimateCompletion formats remaining/rate as seconds, minutes, or hours.
func estimateCompletion(remaining int, rate float64) string {
	if remaining <= 0 || rate <= 0 {
		return "Unknown"
	}
	secs := float64(remaining) / rate
	switch {
	case secs < 60:
		return fmt.Sprintf("%d seconds", int(math.Ceil(secs)))
	case secs < 3600:
		return fmt.Sprintf("%d minutes", int(math.Round(secs/60)))
	default:
		return fmt.Sprintf("%d hours", int(math.Round(secs/3600)))
	}
}
