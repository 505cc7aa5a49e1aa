package domain

import "time"

// EmailMessage is the fully-resolved message ready for the mail transport.
// By the time a message reaches this struct, all merge-field substitution
// and tracking injection is complete.
type EmailMessage struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	ContactID  string `json:"contact_id"`
	Email      string `json:"email"`
	FromName   string `json:"from_name"`
	FromEmail  string `json:"from_email"`
	Subject    string `json:"subject"`
	HTMLBody   string `json:"html_body"`
	TextBody   string `json:"text_body,omitempty"`
}

// SendResult is returned by the mail transport after attempting delivery.
type SendResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
	Error     string    `json:"error,omitempty"`
}
