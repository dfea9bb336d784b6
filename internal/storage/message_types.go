package storage

// SuggestionTaskMessage asks the background consumer to generate and append
// suggestions for an already-scored match.
type SuggestionTaskMessage struct {
	MatchID  string `json:"match_id"`
	ResumeID string `json:"resume_id"`
	JobID    string `json:"job_id"`
	UserID   string `json:"user_id"`
	// Attempt counts redeliveries so the consumer can stop requeueing
	// poison messages.
	Attempt int `json:"attempt"`
}
