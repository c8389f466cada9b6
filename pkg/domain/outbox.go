package domain

import "time"

// OutboxEntry is a node patch whose remote persistence has not succeeded yet.
type OutboxEntry struct {
	NodeID      string    `json:"nodeId"`
	Patch       NodePatch `json:"patch"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"lastError,omitempty"`
	NextAttempt time.Time `json:"nextAttempt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// DeadLetter is set once the retry budget is exhausted; the entry is kept for inspection.
	DeadLetter bool `json:"deadLetter,omitempty"`
}
