package circleci

import "time"

// Page is one page of a CircleCI v2 list endpoint
type Page[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

// Pipeline represents a CircleCI pipeline
type Pipeline struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Workflow represents a workflow of a pipeline
type Workflow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Job represents a job of a workflow. Approval jobs have no job number.
type Job struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	JobNumber *int       `json:"job_number,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// TestMetadata is one test result uploaded with store_test_results
type TestMetadata struct {
	Name      string  `json:"name"`
	ClassName string  `json:"classname"`
	File      string  `json:"file"`
	Result    string  `json:"result"`
	Message   string  `json:"message"`
	RunTime   float64 `json:"run_time"` // seconds
	Source    string  `json:"source"`
}
