package projects

import (
	"time"

	"github.com/uptrace/bun"
)

// FieldDefinition describes one field inside a FieldGroup.
type FieldDefinition struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // boolean, integer, float, text, enum, list
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	EnumValues  []string `json:"enum_values,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Semantic field types recognised by FieldDefinition.Type.
const (
	FieldTypeBoolean = "boolean"
	FieldTypeInteger = "integer"
	FieldTypeFloat   = "float"
	FieldTypeText    = "text"
	FieldTypeEnum    = "enum"
	FieldTypeList    = "list"
)

// FieldGroup is a named, ordered set of FieldDefinitions extracted together
// from a single LLM call. IsEntityList marks a group whose payload is a list
// of entity records rather than a flat object.
type FieldGroup struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	PromptHint   string            `json:"prompt_hint,omitempty"`
	IsEntityList bool              `json:"is_entity_list"`
	Fields       []FieldDefinition `json:"fields"`
}

// FieldNames returns the group's field names, in declared order.
func (g FieldGroup) FieldNames() []string {
	names := make([]string, len(g.Fields))
	for i, f := range g.Fields {
		names[i] = f.Name
	}
	return names
}

// HasField reports whether name is one of the group's declared fields.
func (g FieldGroup) HasField(name string) bool {
	for _, f := range g.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ClassificationConfig tunes SmartClassifier's pre-extraction field-group
// selection for a project. SkipPatterns is tri-state: nil means "unset" (use
// UseDefaultSkipPatterns to decide), a non-nil empty slice explicitly
// disables rule-based skipping.
type ClassificationConfig struct {
	Enabled                bool     `json:"enabled"`
	SkipPatterns           []string `json:"skip_patterns"`
	UseDefaultSkipPatterns bool     `json:"use_default_skip_patterns"`
	HighThreshold          float64  `json:"high_threshold"`
	LowThreshold           float64  `json:"low_threshold"`
	RerankerThreshold      float64  `json:"reranker_threshold"`
	CacheTTLSeconds        int      `json:"cache_ttl_seconds"`
}

// Project is the top-level unit of configuration: its extraction schema
// (ordered field groups), declared entity types, and optional classification
// tuning apply to every Source ingested under it.
type Project struct {
	bun.BaseModel `bun:"table:ke.projects,alias:p"`

	ID                   string                 `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name                 string                 `bun:"name,notnull" json:"name"`
	Description          string                 `bun:"description,notnull,default:''" json:"description"`
	ExtractionSchema     []FieldGroup           `bun:"extraction_schema,type:jsonb,default:'[]'" json:"extraction_schema"`
	EntityTypes          []string               `bun:"entity_types,type:jsonb,default:'[]'" json:"entity_types"`
	ClassificationConfig *ClassificationConfig  `bun:"classification_config,type:jsonb" json:"classification_config,omitempty"`
	CreatedAt            time.Time              `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt            time.Time              `bun:"updated_at,notnull,default:now()" json:"updated_at"`

	// Stats is populated only when requested by the caller.
	Stats *ProjectStats `bun:"-" json:"stats,omitempty"`
}

// FindFieldGroup looks up a field group by name.
func (p *Project) FindFieldGroup(name string) (FieldGroup, bool) {
	for _, g := range p.ExtractionSchema {
		if g.Name == name {
			return g, true
		}
	}
	return FieldGroup{}, false
}

// HasEntityType reports whether entityType is one of the project's declared
// entity types.
func (p *Project) HasEntityType(entityType string) bool {
	for _, t := range p.EntityTypes {
		if t == entityType {
			return true
		}
	}
	return false
}

// ProjectStats reports aggregate counts for a project, populated on demand.
type ProjectStats struct {
	SourceCount     int `json:"source_count"`
	ExtractionCount int `json:"extraction_count"`
	EntityCount     int `json:"entity_count"`
	TotalJobs       int `json:"total_jobs"`
	RunningJobs     int `json:"running_jobs"`
	QueuedJobs      int `json:"queued_jobs"`
}
