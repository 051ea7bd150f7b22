package entities

import (
	"time"

	"github.com/uptrace/bun"
)

// Entity is a normalised cross-document value (a plan name, a rate limit, a
// price) that many Extractions may reference (spec.md §3/§4.6).
// Uniqueness key: (project, source group, entity type, normalised value).
type Entity struct {
	bun.BaseModel `bun:"table:ke.entities,alias:ent"`

	ID               string         `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID        string         `bun:"project_id,notnull,type:uuid" json:"project_id"`
	SourceGroup      string         `bun:"source_group,notnull,default:''" json:"source_group"`
	EntityType       string         `bun:"entity_type,notnull" json:"entity_type"`
	RawValue         string         `bun:"raw_value,notnull" json:"raw_value"`
	NormalizedValue  string         `bun:"normalized_value,notnull" json:"normalized_value"`
	Attributes       map[string]any `bun:"attributes,type:jsonb,default:'{}'" json:"attributes,omitempty"`
	CreatedAt        time.Time      `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt        time.Time      `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// ExtractionEntity links an Entity to the Extraction it was derived from.
// Unique on (entity_id, extraction_id); many-to-many, get-or-create.
type ExtractionEntity struct {
	bun.BaseModel `bun:"table:ke.extraction_entities,alias:ee"`

	ID          string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	EntityID    string    `bun:"entity_id,notnull,type:uuid" json:"entity_id"`
	ExtractionID string   `bun:"extraction_id,notnull,type:uuid" json:"extraction_id"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// TypeSummary aggregates entity counts per type for a project, used by the
// entities type-summary endpoint (spec.md §6).
type TypeSummary struct {
	EntityType string `json:"entity_type" bun:"entity_type"`
	Count      int    `json:"count" bun:"count"`
}
