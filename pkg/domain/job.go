package domain

// JobRequest is what a node execution sends to the remote job service.
type JobRequest struct {
	NodeID     string                `json:"nodeId"`
	NodeType   string                `json:"nodeType"`
	Parameters map[string]any        `json:"parameters,omitempty"`
	Inputs     map[string][]AssetRef `json:"inputs,omitempty"` // keyed by input port id
}

// JobHandle identifies an enqueued remote job.
type JobHandle struct {
	JobID string `json:"jobId"`
}

// JobState is the status reported by the job service.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatusReport is the payload of a status poll.
type JobStatusReport struct {
	Status           JobState   `json:"status"`
	Progress         *int       `json:"progress,omitempty"`
	CurrentStageName string     `json:"currentStageName,omitempty"`
	GeneratedAssets  []AssetRef `json:"generatedAssets,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
}
