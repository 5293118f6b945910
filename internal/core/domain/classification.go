package domain

import "time"

type MatchKind string

const (
	MatchUnmatched MatchKind = "unmatched"
	MatchExisting  MatchKind = "existing"
	MatchNew       MatchKind = "new"
	MatchSticky    MatchKind = "sticky"
)

// MatchResult is a tagged union: Bucket is set for existing and sticky
// matches, NewBucket for new matches, neither for unmatched.
type MatchResult struct {
	Kind      MatchKind `json:"kind"`
	Bucket    BucketID  `json:"bucket_id,omitempty"`
	NewBucket *Subject  `json:"new_bucket,omitempty"`
}

func Existing(id BucketID) MatchResult { return MatchResult{Kind: MatchExisting, Bucket: id} }

func Sticky(id BucketID) MatchResult { return MatchResult{Kind: MatchSticky, Bucket: id} }

func NewBucket(code, displayName string) MatchResult {
	return MatchResult{Kind: MatchNew, NewBucket: &Subject{Code: code, Name: displayName}}
}

func Unmatched() MatchResult { return MatchResult{Kind: MatchUnmatched} }

type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunCancelled RunState = "cancelled"
)

// ScanInput is one image handed over by the acquisition side.
type ScanInput struct {
	ImageRef    string `json:"image_ref"`
	DisplayName string `json:"display_name"`
}

type OutcomeStatus string

const (
	OutcomeClassified OutcomeStatus = "classified"
	OutcomeUnmatched  OutcomeStatus = "unmatched"
	OutcomeError      OutcomeStatus = "error"
)

type DocumentOutcome struct {
	Index       int           `json:"index"`
	ImageRef    string        `json:"image_ref"`
	DisplayName string        `json:"display_name"`
	Status      OutcomeStatus `json:"status"`
	Match       MatchKind     `json:"match,omitempty"`
	BucketID    BucketID      `json:"bucket_id,omitempty"`
	BucketCode  string        `json:"bucket_code,omitempty"`
	Year        int           `json:"year,omitempty"`
	Error       string        `json:"error,omitempty"`
	ElapsedMS   float64       `json:"elapsed_ms"`
}

// ProgressEvent is emitted once per document for presentation layers.
type ProgressEvent struct {
	RunID       string          `json:"run_id"`
	Index       int             `json:"index"`
	TotalCount  int             `json:"total_count"`
	BucketCode  *string         `json:"bucket_code"`
	StatusLabel string          `json:"status_label"`
	Outcome     DocumentOutcome `json:"outcome"`
	EmittedAt   time.Time       `json:"emitted_at"`
}

type RunReport struct {
	RunID      string            `json:"run_id"`
	State      RunState          `json:"state"`
	Total      int               `json:"total"`
	Processed  int               `json:"processed"`
	Outcomes   []DocumentOutcome `json:"outcomes"`
	LastEvent  *ProgressEvent    `json:"last_event,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
}

func (r RunReport) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Batch is a queued classification request processed by the worker.
type Batch struct {
	RunID       string      `json:"run_id"`
	Images      []ScanInput `json:"images"`
	SubmittedAt time.Time   `json:"submitted_at,omitzero"`
}
