package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidSchedule   = errors.New("send date must be at least 5 minutes in the future")
	ErrNotEditable       = errors.New("campaign can no longer be edited")
	ErrNotDeletable      = errors.New("only draft campaigns can be deleted")
	ErrAlreadySending    = errors.New("campaign is already sending or sent")
	ErrNoContent         = errors.New("campaign has no content")
	ErrNoRecipients      = errors.New("campaign resolves to no active recipients")
	ErrTestNotDraft      = errors.New("test sends are only allowed from draft status")
)
