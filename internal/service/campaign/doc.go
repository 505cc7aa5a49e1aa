// Package campaign implements campaign lifecycle management.
//
// The service layer contains all business logic for creating, scheduling,
// sending, cancelling, and duplicating campaigns, including the content
// snapshot captured at send time. It depends on the repository interface
// defined in this package and should never import from api/.
//
// Repository implementations live in internal/store.
package campaign
