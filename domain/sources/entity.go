package sources

import (
	"time"

	"github.com/uptrace/bun"
)

// Status tracks a Source through fetch and extraction (spec.md §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusExtracted Status = "extracted"
	StatusFailed    Status = "failed"
)

// Source is a fetched document — a web page or similar — grouped under a
// coarse source group (typically a company) within a project.
type Source struct {
	bun.BaseModel `bun:"table:ke.sources,alias:src"`

	ID          string         `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID   string         `bun:"project_id,notnull,type:uuid" json:"project_id"`
	URI         string         `bun:"uri,notnull" json:"uri"`
	SourceGroup string         `bun:"source_group,notnull,default:''" json:"source_group"`
	SourceType  string         `bun:"source_type,notnull,default:'web'" json:"source_type"`
	Status      Status         `bun:"status,notnull,default:'pending'" json:"status"`
	Content     string         `bun:"content,notnull,default:''" json:"content,omitempty"`
	RawContent  string         `bun:"raw_content,notnull,default:''" json:"raw_content,omitempty"`
	Title       string         `bun:"title,notnull,default:''" json:"title,omitempty"`
	Links       []string       `bun:"links,type:jsonb,default:'[]'" json:"links,omitempty"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,default:'{}'" json:"metadata,omitempty"`
	PageType    *string        `bun:"page_type" json:"page_type,omitempty"`
	ErrorMsg    *string        `bun:"error_message" json:"error_message,omitempty"`
	CreatedAt   time.Time      `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// IsReadyForExtraction reports whether the source has content to extract
// from (spec.md §3 invariant: extracted ⇒ content non-empty).
func (s *Source) IsReadyForExtraction() bool {
	return s.Status == StatusReady && s.Content != ""
}

// Summary is the list-view projection of a Source (spec.md §6: sources
// list/summary endpoints).
type Summary struct {
	ID          string    `json:"id"`
	URI         string    `json:"uri"`
	SourceGroup string    `json:"source_group"`
	Status      Status    `json:"status"`
	Title       string    `json:"title,omitempty"`
	PageType    *string   `json:"page_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToSummary projects a Source down to its list view.
func (s *Source) ToSummary() Summary {
	return Summary{
		ID:          s.ID,
		URI:         s.URI,
		SourceGroup: s.SourceGroup,
		Status:      s.Status,
		Title:       s.Title,
		PageType:    s.PageType,
		CreatedAt:   s.CreatedAt,
	}
}

// CreateSourceRequest is the request body for registering a new source
// ahead of a scrape/crawl job populating it.
type CreateSourceRequest struct {
	URI         string `json:"uri" validate:"required,url"`
	SourceGroup string `json:"source_group"`
	SourceType  string `json:"source_type"`
}

// ListParams filters a source listing.
type ListParams struct {
	ProjectID string
	Status    Status
	Limit     int
	Offset    int
}
