// Package extraction implements the SchemaOrchestrator and ExtractionPipeline
// components (spec.md §4.4/§4.5): turning a source's rendered markdown into
// per-field-group payloads, then deduplicating, persisting, embedding, and
// entity-linking the survivors.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/TKontu/knowledge-extraction/domain/projects"
	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/internal/llmqueue"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
	"github.com/TKontu/knowledge-extraction/pkg/textsplitter"
)

// maxChunkAttempts bounds the exponential-backoff retry loop for a single
// chunk×group extraction; once exhausted the chunk contributes nothing to
// the group's merge (spec.md §4.4 step 3).
const maxChunkAttempts = 3

// defaultEntityNaturalKey is the field entity-list merging keys on
// (spec.md §4.4). Every entity-list group uses it; a FieldGroup has no
// setting for a different key. Items without a non-empty string value for
// it are keyed by their canonical JSON instead.
const defaultEntityNaturalKey = "product_name"

// FieldGroupResult is one FieldGroup's merged result across every chunk of
// a source (spec.md §4.4 step 4).
type FieldGroupResult struct {
	GroupName    string
	IsEntityList bool
	Payload      map[string]any   // flat field values, non-entity-list groups
	Items        []map[string]any // entity records, entity-list groups
	Confidence   float64
}

// Orchestrator is the SchemaOrchestrator component.
type Orchestrator struct {
	queue *llmqueue.Queue
	ke    config.KEConfig
	llm   config.LLMConfig
	log   *slog.Logger
}

// NewOrchestrator constructs a SchemaOrchestrator.
func NewOrchestrator(queue *llmqueue.Queue, cfg *config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		queue: queue,
		ke:    cfg.KE,
		llm:   cfg.LLM,
		log:   log.With(logger.Scope("orchestrator")),
	}
}

// ExtractAllGroups chunks markdown and runs every one of groups concurrently,
// each under its own continuous chunk semaphore (spec.md §4.4).
func (o *Orchestrator) ExtractAllGroups(ctx context.Context, sourceID, markdown string, groups []projects.FieldGroup) []FieldGroupResult {
	chunks := textsplitter.SplitMarkdown(markdown, textsplitter.Config{
		ChunkSize:    o.ke.ChunkSize,
		ChunkOverlap: o.ke.ChunkOverlap,
	})
	if len(chunks) == 0 {
		return nil
	}

	results := make([]FieldGroupResult, len(groups))
	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		go func(i int, group projects.FieldGroup) {
			defer wg.Done()
			results[i] = o.extractGroup(ctx, sourceID, group, chunks)
		}(i, group)
	}
	wg.Wait()

	return results
}

// chunkOutcome is one chunk's contribution to a group's merge.
type chunkOutcome struct {
	payload    map[string]any
	items      []map[string]any
	confidence float64
}

// extractGroup runs _extract_chunks_batched: a continuous semaphore of size
// extraction_max_concurrent_chunks admits the next chunk as soon as any
// completes (spec.md §4.4 step 3).
func (o *Orchestrator) extractGroup(ctx context.Context, sourceID string, group projects.FieldGroup, chunks []textsplitter.MarkdownChunk) FieldGroupResult {
	sem := make(chan struct{}, maxInt(1, o.ke.ExtractionMaxConcurrentChunks))
	outcomes := make([]*chunkOutcome, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, chunk textsplitter.MarkdownChunk) {
			defer wg.Done()
			defer func() { <-sem }()
			if outcome, ok := o.extractChunkWithRetry(ctx, sourceID, group, chunk); ok {
				outcomes[i] = &outcome
			}
		}(i, chunk)
	}
	wg.Wait()

	return mergeGroup(group, outcomes)
}

// extractChunkWithRetry retries a chunk×group extraction with exponential
// backoff bounded by llm_retry_backoff_{min,max}; after maxChunkAttempts the
// chunk contributes nothing (spec.md §4.4 step 3).
func (o *Orchestrator) extractChunkWithRetry(ctx context.Context, sourceID string, group projects.FieldGroup, chunk textsplitter.MarkdownChunk) (chunkOutcome, bool) {
	backoff := o.ke.LLMRetryBackoffMin
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < maxChunkAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return chunkOutcome{}, false
			case <-time.After(backoff):
			}
			backoff *= 2
			if o.ke.LLMRetryBackoffMax > 0 && backoff > o.ke.LLMRetryBackoffMax {
				backoff = o.ke.LLMRetryBackoffMax
			}
		}

		outcome, err := o.extractChunkOnce(ctx, sourceID, group, chunk)
		if err == nil {
			return outcome, true
		}
		lastErr = err
	}

	o.log.Warn("chunk extraction exhausted retries, contributing nothing",
		slog.String("sourceID", sourceID), slog.String("group", group.Name), logger.Error(lastErr))
	return chunkOutcome{}, false
}

func (o *Orchestrator) extractChunkOnce(ctx context.Context, sourceID string, group projects.FieldGroup, chunk textsplitter.MarkdownChunk) (chunkOutcome, error) {
	timeout := o.llm.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	req := &llmqueue.Request{
		Type:           llmqueue.RequestTypeExtractFieldGroup,
		Model:          o.llm.Model,
		SystemPrompt:   fieldGroupSystemPrompt(group),
		UserPrompt:     fieldGroupUserPrompt(group, chunk),
		ResponseFormat: "json",
		AuxContext: llmqueue.JSON{
			"is_entity_list": group.IsEntityList,
			"source_id":      sourceID,
			"group":          group.Name,
		},
		TimeoutAt: time.Now().Add(timeout),
	}

	reqID, err := o.queue.Submit(ctx, req)
	if err != nil {
		return chunkOutcome{}, fmt.Errorf("submit chunk request: %w", err)
	}

	resp, err := o.queue.WaitForResult(ctx, reqID, timeout)
	if err != nil {
		return chunkOutcome{}, fmt.Errorf("await chunk result: %w", err)
	}
	if resp.Status != llmqueue.ResponseStatusSuccess {
		msg := "llm request did not succeed"
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return chunkOutcome{}, fmt.Errorf("%s", msg)
	}

	return parseChunkResult(group, resp.Result), nil
}

// parseChunkResult reads either an entity-list shape (`{"entities": [...],
// "confidence": n}`) or a flat field-value object, per group.IsEntityList.
func parseChunkResult(group projects.FieldGroup, result llmqueue.JSON) chunkOutcome {
	confidence := readConfidence(result)

	if group.IsEntityList {
		items, _ := result["entities"].([]any)
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return chunkOutcome{items: out, confidence: confidence}
	}

	payload := make(map[string]any, len(group.Fields))
	for _, f := range group.Fields {
		if v, ok := result[f.Name]; ok {
			payload[f.Name] = v
		}
	}
	return chunkOutcome{payload: payload, confidence: confidence}
}

func readConfidence(result llmqueue.JSON) float64 {
	switch v := result["confidence"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 1.0
	}
}

// mergeGroup applies the per-field-type merge rules (spec.md §4.4) across
// every chunk outcome for group.
func mergeGroup(group projects.FieldGroup, outcomes []*chunkOutcome) FieldGroupResult {
	if group.IsEntityList {
		return mergeEntityListGroup(group, outcomes)
	}
	return mergeFieldGroup(group, outcomes)
}

func mergeFieldGroup(group projects.FieldGroup, outcomes []*chunkOutcome) FieldGroupResult {
	payload := make(map[string]any, len(group.Fields))
	var confidences []float64

	for _, f := range group.Fields {
		values := make([]any, 0, len(outcomes))
		for _, o := range outcomes {
			if o == nil {
				continue
			}
			if v, ok := o.payload[f.Name]; ok && v != nil {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		payload[f.Name] = mergeFieldValues(f.Type, values)
	}

	for _, o := range outcomes {
		if o != nil {
			confidences = append(confidences, o.confidence)
		}
	}

	return FieldGroupResult{
		GroupName:  group.Name,
		Payload:    payload,
		Confidence: mean(confidences),
	}
}

func mergeEntityListGroup(group projects.FieldGroup, outcomes []*chunkOutcome) FieldGroupResult {
	naturalKey := defaultEntityNaturalKey

	var merged []map[string]any
	seen := make(map[string]int)
	var confidences []float64

	for _, o := range outcomes {
		if o == nil || len(o.items) == 0 {
			continue
		}
		confidences = append(confidences, o.confidence)

		for _, item := range o.items {
			key := naturalKeyOf(item, naturalKey)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = len(merged)
			merged = append(merged, item)
		}
	}

	return FieldGroupResult{
		GroupName:    group.Name,
		IsEntityList: true,
		Items:        merged,
		Confidence:   mean(confidences),
	}
}

func naturalKeyOf(item map[string]any, naturalKey string) string {
	if v, ok := item[naturalKey]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	b, _ := json.Marshal(item)
	return string(b)
}

// mergeFieldValues reduces values (one per chunk that produced a non-nil
// value for this field) according to field type (spec.md §4.4).
func mergeFieldValues(fieldType string, values []any) any {
	switch fieldType {
	case projects.FieldTypeBoolean:
		for _, v := range values {
			if b, ok := v.(bool); ok && b {
				return true
			}
		}
		return false

	case projects.FieldTypeInteger, projects.FieldTypeFloat:
		best := 0.0
		found := false
		for _, v := range values {
			if f, ok := toFloat(v); ok {
				if !found || f > best {
					best = f
					found = true
				}
			}
		}
		if fieldType == projects.FieldTypeInteger {
			return int(best)
		}
		return best

	case projects.FieldTypeText, projects.FieldTypeEnum:
		longest := ""
		for _, v := range values {
			if s, ok := v.(string); ok && len(s) > len(longest) {
				longest = s
			}
		}
		return longest

	case projects.FieldTypeList:
		return mergeListValues(values)

	default:
		// Last-chunk-wins for unrecognised field types: no ordering
		// guarantee is lost since the type isn't covered by a merge rule.
		return values[len(values)-1]
	}
}

// mergeListValues unions list-typed values across chunks: scalar elements
// preserve first-seen order, object elements dedup by canonical JSON.
func mergeListValues(values []any) []any {
	var out []any
	seenScalar := make(map[string]bool)
	seenObject := make(map[string]bool)

	for _, v := range values {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				b, _ := json.Marshal(m)
				key := string(b)
				if seenObject[key] {
					continue
				}
				seenObject[key] = true
				out = append(out, m)
				continue
			}

			key := fmt.Sprintf("%v", item)
			if seenScalar[key] {
				continue
			}
			seenScalar[key] = true
			out = append(out, item)
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fieldGroupSystemPrompt instructs the model to extract one FieldGroup's
// declared fields (or entity list) and return nothing else.
func fieldGroupSystemPrompt(group projects.FieldGroup) string {
	var b strings.Builder
	if group.IsEntityList {
		fmt.Fprintf(&b, "You extract a list of %q entities from the supplied page excerpt. ", group.Name)
		b.WriteString("Return a JSON object: {\"entities\": [...], \"confidence\": <0-1>}. ")
		b.WriteString("Each entity is an object with the fields described below. If no entities are present, return an empty list.\n\n")
	} else {
		fmt.Fprintf(&b, "You extract the %q field group from the supplied page excerpt. ", group.Name)
		b.WriteString("Return a flat JSON object keyed by field name, plus a top-level \"confidence\" between 0 and 1. ")
		b.WriteString("Omit a field entirely if it cannot be found; never guess.\n\n")
	}
	if group.Description != "" {
		fmt.Fprintf(&b, "Group description: %s\n", group.Description)
	}
	if group.PromptHint != "" {
		fmt.Fprintf(&b, "Hint: %s\n", group.PromptHint)
	}
	b.WriteString("\nFields:\n")
	for _, f := range group.Fields {
		fmt.Fprintf(&b, "- %s (%s)", f.Name, f.Type)
		if f.Required {
			b.WriteString(" [required]")
		}
		if len(f.EnumValues) > 0 {
			fmt.Fprintf(&b, " one of: %s", strings.Join(f.EnumValues, ", "))
		}
		if f.Description != "" {
			fmt.Fprintf(&b, " — %s", f.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// fieldGroupUserPrompt carries the chunk's content and its header breadcrumb
// so the model can use surrounding section context (spec.md §4.4).
func fieldGroupUserPrompt(group projects.FieldGroup, chunk textsplitter.MarkdownChunk) string {
	var b strings.Builder
	if len(chunk.Breadcrumb) > 0 {
		fmt.Fprintf(&b, "Section: %s\n\n", strings.Join(chunk.Breadcrumb, " > "))
	}
	b.WriteString(chunk.Content)
	return b.String()
}

// FactResult is one (fact_text, category, confidence) triple produced by the
// generic fact pipeline, used when a project declares no FieldGroups
// (spec.md §4.5).
type FactResult struct {
	Text       string
	Category   string
	Confidence float64
}

const factSystemPrompt = `You extract standalone, verifiable facts from the supplied page excerpt.
Return a JSON object: {"facts": [{"fact_text": "...", "category": "...", "confidence": <0-1>}, ...]}.
Each fact_text should be a single self-contained statement. category is a short lowercase label for the
kind of fact (e.g. "pricing", "feature", "limit"). Return an empty list if the excerpt carries no facts.`

// ExtractFacts runs the generic fact pipeline: every chunk is submitted
// independently under the same continuous chunk semaphore as the schema
// pipeline, and every chunk's facts are concatenated (no merge, since a
// fact list has no natural per-field reduction).
func (o *Orchestrator) ExtractFacts(ctx context.Context, sourceID, markdown string) []FactResult {
	chunks := textsplitter.SplitMarkdown(markdown, textsplitter.Config{
		ChunkSize:    o.ke.ChunkSize,
		ChunkOverlap: o.ke.ChunkOverlap,
	})
	if len(chunks) == 0 {
		return nil
	}

	sem := make(chan struct{}, maxInt(1, o.ke.ExtractionMaxConcurrentChunks))
	perChunk := make([][]FactResult, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, chunk textsplitter.MarkdownChunk) {
			defer wg.Done()
			defer func() { <-sem }()
			perChunk[i] = o.extractFactsChunkWithRetry(ctx, sourceID, chunk)
		}(i, chunk)
	}
	wg.Wait()

	var all []FactResult
	for _, facts := range perChunk {
		all = append(all, facts...)
	}
	return all
}

func (o *Orchestrator) extractFactsChunkWithRetry(ctx context.Context, sourceID string, chunk textsplitter.MarkdownChunk) []FactResult {
	backoff := o.ke.LLMRetryBackoffMin
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < maxChunkAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if o.ke.LLMRetryBackoffMax > 0 && backoff > o.ke.LLMRetryBackoffMax {
				backoff = o.ke.LLMRetryBackoffMax
			}
		}

		facts, err := o.extractFactsChunkOnce(ctx, sourceID, chunk)
		if err == nil {
			return facts
		}
		lastErr = err
	}

	o.log.Warn("fact chunk extraction exhausted retries, contributing nothing",
		slog.String("sourceID", sourceID), logger.Error(lastErr))
	return nil
}

func (o *Orchestrator) extractFactsChunkOnce(ctx context.Context, sourceID string, chunk textsplitter.MarkdownChunk) ([]FactResult, error) {
	timeout := o.llm.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	req := &llmqueue.Request{
		Type:           llmqueue.RequestTypeExtractFacts,
		Model:          o.llm.Model,
		SystemPrompt:   factSystemPrompt,
		UserPrompt:     fieldGroupUserPrompt(projects.FieldGroup{}, chunk),
		ResponseFormat: "json",
		AuxContext:     llmqueue.JSON{"source_id": sourceID},
		TimeoutAt:      time.Now().Add(timeout),
	}

	reqID, err := o.queue.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit fact request: %w", err)
	}
	resp, err := o.queue.WaitForResult(ctx, reqID, timeout)
	if err != nil {
		return nil, fmt.Errorf("await fact result: %w", err)
	}
	if resp.Status != llmqueue.ResponseStatusSuccess {
		msg := "llm request did not succeed"
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return nil, fmt.Errorf("%s", msg)
	}

	raw, _ := resp.Result["facts"].([]any)
	facts := make([]FactResult, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		text, _ := m["fact_text"].(string)
		if text == "" {
			continue
		}
		category, _ := m["category"].(string)
		if category == "" {
			category = "fact"
		}
		facts = append(facts, FactResult{
			Text:       text,
			Category:   category,
			Confidence: readConfidence(m),
		})
	}
	return facts, nil
}
