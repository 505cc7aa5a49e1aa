package importer

import "errors"

// Sentinel errors for upload submission. All of them map to a 400 at the
// API boundary; failures inside a running job are reported through the job
// record instead.
var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrFileTooLarge   = errors.New("file exceeds the maximum upload size")
	ErrInvalidCSV     = errors.New("invalid CSV format")
	ErrMissingColumns = errors.New("CSV header must include first_name and email columns")
	ErrJobNotFound    = errors.New("upload job not found")
)
