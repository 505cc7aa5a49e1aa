package contact

import "errors"

// Sentinel errors for the contact service layer.
var (
	ErrNotFound       = errors.New("contact not found")
	ErrDuplicateEmail = errors.New("a contact with this email already exists")
	ErrInvalidEmail   = errors.New("email address is not valid")
	ErrInvalidStatus  = errors.New("unknown contact status")
)
