// Package store implements the record store gateway: a remote object store
// accessed by (type, id) with read-modify-write semantics and no
// multi-document transactions.
//
// Every mutable record carries a version token. Writes are conditional on
// the token the caller read, so concurrent read-modify-write cycles against
// the same record fail with ErrVersionConflict instead of silently losing
// updates; callers retry the whole cycle.
//
// Two implementations exist: Dynamo (production, single-table DynamoDB) and
// Memory (tests and local development). Both satisfy the repository
// interfaces declared by the service packages.
package store

import "errors"

// Sentinel errors shared by all gateway implementations.
var (
	// ErrNotFound means no record exists for the given type and id.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict means the record changed since it was read.
	// The caller should re-read and retry the whole cycle.
	ErrVersionConflict = errors.New("record version conflict")

	// ErrDuplicateEmail means a contact with the same email (compared
	// case-insensitively) already exists.
	ErrDuplicateEmail = errors.New("contact email already exists")
)

// Partition keys for the single-table layout. SK is the record id, except
// for contact email guards where SK is the normalized email.
const (
	pkCampaign     = "CAMPAIGN"
	pkContact      = "CONTACT"
	pkContactEmail = "CONTACT_EMAIL"
	pkTemplate     = "TEMPLATE"
	pkJob          = "JOB"
)
