package llmqueue

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// RequestType enumerates the kinds of work an LLMRequest may carry.
type RequestType string

const (
	RequestTypeExtractFacts      RequestType = "extract_facts"
	RequestTypeExtractFieldGroup RequestType = "extract_field_group"
	RequestTypeExtractEntities   RequestType = "extract_entities"
	RequestTypeComplete          RequestType = "complete"
)

// RequestStatus tracks an LLMRequest through the durable consumer-grouped log.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusAcked      RequestStatus = "acked"
)

// ResponseStatus is the outcome written to ke.llm_responses.
type ResponseStatus string

const (
	ResponseStatusSuccess ResponseStatus = "success"
	ResponseStatusError   ResponseStatus = "error"
	ResponseStatusTimeout ResponseStatus = "timeout"
)

// JSON is a generic jsonb scanner, shared with the rest of the ke schema.
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

// Request is the durable row backing one LLMRequest (spec §3/§4.1).
type Request struct {
	bun.BaseModel `bun:"table:ke.llm_requests,alias:lr"`

	ID             string        `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Type           RequestType   `bun:"type,notnull"`
	Model          string        `bun:"model,notnull"`
	SystemPrompt   string        `bun:"system_prompt,notnull,default:''"`
	UserPrompt     string        `bun:"user_prompt,notnull"`
	ResponseFormat string        `bun:"response_format,notnull,default:'json'"`
	AuxContext     JSON          `bun:"aux_context,type:jsonb,default:'{}'"`
	Priority       int           `bun:"priority,notnull,default:0"`
	RetryCount     int           `bun:"retry_count,notnull,default:0"`
	Status         RequestStatus `bun:"status,notnull,default:'pending'"`
	CreatedAt      time.Time     `bun:"created_at,notnull,default:now()"`
	TimeoutAt      time.Time     `bun:"timeout_at,notnull"`
	UpdatedAt      time.Time     `bun:"updated_at,notnull,default:now()"`
}

// IsExpired reports whether the request's timeout has already elapsed
// (spec §3: "now > timeout_at ⇒ request is expired and must not be dispatched").
func (r *Request) IsExpired() bool {
	return time.Now().After(r.TimeoutAt)
}

// Response is the at-most-once-delivered result of a Request, stored in a
// TTL'd key-value namespace keyed by request id.
type Response struct {
	bun.BaseModel `bun:"table:ke.llm_responses,alias:lresp"`

	RequestID        string         `bun:"request_id,pk,type:uuid"`
	Status           ResponseStatus `bun:"status,notnull"`
	Result           JSON           `bun:"result,type:jsonb"`
	ResultText       *string        `bun:"result_text"`
	ErrorMessage     *string        `bun:"error_message"`
	ProcessingTimeMs int            `bun:"processing_time_ms,notnull,default:0"`
	CompletedAt      time.Time      `bun:"completed_at,notnull,default:now()"`
	ExpiresAt        time.Time      `bun:"expires_at,notnull"`
}

// DLQItem holds a request or job that exhausted its retries (spec §3/§4.2).
type DLQItem struct {
	bun.BaseModel `bun:"table:ke.dlq_items,alias:dlq"`

	ID             string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	OwningType     string    `bun:"owning_type,notnull"` // scrape|extraction|llm
	SourceID       *string   `bun:"source_id,type:uuid"`
	RequestPayload JSON      `bun:"request_payload,type:jsonb"`
	Error          string    `bun:"error,notnull"`
	FailedAt       time.Time `bun:"failed_at,notnull,default:now()"`
	RetryCount     int       `bun:"retry_count,notnull,default:0"`
}
