package jobs

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Type enumerates the kinds of work a Job may carry (spec.md §3).
type Type string

const (
	TypeScrape  Type = "scrape"
	TypeCrawl   Type = "crawl"
	TypeExtract Type = "extract"
	TypeReport  Type = "report"
)

// Status tracks a Job through its lifecycle: queued → running → terminal.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusCancelling Status = "cancelling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// JSON is a generic jsonb scanner shared across the ke schema.
type JSON map[string]interface{}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, j)
}

// Checkpoint is the subset of a job's payload that records which source ids
// have already been processed so a restart may resume from that point
// (spec.md §6 "Persisted job record includes checkpoint shape").
type Checkpoint struct {
	ProcessedSourceIDs []string  `json:"processed_source_ids"`
	TotalExtractions   int       `json:"total_extractions"`
	TotalEntities      int       `json:"total_entities"`
	LastCheckpointAt   time.Time `json:"last_checkpoint_at"`
}

// Job is a unit of pipeline work: a scrape, crawl, extraction, or report run
// (spec.md §3).
type Job struct {
	bun.BaseModel `bun:"table:ke.jobs,alias:job"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID *string   `bun:"project_id,type:uuid" json:"project_id,omitempty"`
	Type      Type      `bun:"type,notnull" json:"type"`
	Status    Status    `bun:"status,notnull,default:'queued'" json:"status"`
	Priority  int       `bun:"priority,notnull,default:0" json:"priority"`
	Payload   JSON      `bun:"payload,type:jsonb,default:'{}'" json:"payload"`
	Result    JSON      `bun:"result,type:jsonb" json:"result,omitempty"`
	Error     *string   `bun:"error" json:"error,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// Checkpoint decodes the job's payload.checkpoint sub-object, or a zero
// Checkpoint if none has been written yet.
func (j *Job) Checkpoint() Checkpoint {
	raw, ok := j.Payload["checkpoint"]
	if !ok {
		return Checkpoint{}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return Checkpoint{}
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return Checkpoint{}
	}
	return cp
}

// SetCheckpoint writes cp into payload.checkpoint.
func (j *Job) SetCheckpoint(cp Checkpoint) {
	if j.Payload == nil {
		j.Payload = JSON{}
	}
	j.Payload["checkpoint"] = cp
}

// IsTerminal reports whether the job has reached a final status.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
