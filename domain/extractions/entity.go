package extractions

import (
	"time"

	"github.com/uptrace/bun"
)

// Extraction is one persisted JSON payload for one (source, field group)
// pair — or one fact, for the generic pipeline (spec.md §3).
type Extraction struct {
	bun.BaseModel `bun:"table:ke.extractions,alias:ext"`

	ID                string         `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID         string         `bun:"project_id,notnull,type:uuid" json:"project_id"`
	SourceID          string         `bun:"source_id,notnull,type:uuid" json:"source_id"`
	ExtractionType    string         `bun:"extraction_type,notnull" json:"extraction_type"`
	SourceGroup       string         `bun:"source_group,notnull,default:''" json:"source_group"`
	Payload           map[string]any `bun:"payload,type:jsonb,default:'{}'" json:"payload"`
	Confidence        *float64       `bun:"confidence" json:"confidence,omitempty"`
	Profile           string         `bun:"profile,notnull,default:''" json:"profile,omitempty"`
	ChunkIndex         *int          `bun:"chunk_index" json:"chunk_index,omitempty"`
	EmbeddingID        *string       `bun:"embedding_id" json:"embedding_id,omitempty"`
	EntitiesExtracted  bool          `bun:"entities_extracted,notnull,default:false" json:"entities_extracted"`
	CreatedAt          time.Time     `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// ListParams filters an extraction listing.
type ListParams struct {
	ProjectID      string
	SourceID       string
	ExtractionType string
	Limit          int
	Offset         int
}
