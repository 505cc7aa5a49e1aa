package domain

import "time"

// Template is a reusable subject/content pair, optionally referenced by a
// campaign's ContentSource.
type Template struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Subject      string    `json:"subject"`
	Content      string    `json:"content"`
	TemplateType string    `json:"template_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
