// Package contact implements subscriber record management: direct CRUD,
// lookup by email, and the validation shared with the bulk import runner.
package contact
