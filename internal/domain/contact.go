package domain

import "time"

// ContactStatus enumerates the states a contact can be in.
type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
)

// Valid reports whether s is a known contact status.
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactActive, ContactUnsubscribed, ContactBounced:
		return true
	}
	return false
}

// Contact represents a single subscriber identity. Email is unique
// case-insensitively; uniqueness is enforced by the record store gateway,
// not at creation call sites.
type Contact struct {
	ID            string        `json:"id"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	Email         string        `json:"email"`
	Status        ContactStatus `json:"status"`
	Tags          []string      `json:"tags,omitempty"`
	ListIDs       []string      `json:"list_ids,omitempty"`
	SubscribeDate time.Time     `json:"subscribe_date"`
	Notes         string        `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// InList reports whether the contact belongs to the given list.
func (c *Contact) InList(listID string) bool {
	for _, id := range c.ListIDs {
		if id == listID {
			return true
		}
	}
	return false
}

// HasTag reports whether the contact carries the given tag.
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
