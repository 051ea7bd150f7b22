// Package merge implements SmartMerge (spec.md §4.9): reconciling one
// report column's candidate values, one value per contributing source row,
// down to a single reported value for a grouped domain row.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/internal/llmqueue"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// Candidate is one source row's contribution to a mergeable column.
type Candidate struct {
	Value       any
	SourceURL   string
	SourceTitle string
	Confidence  float64
}

// Column describes the mergeable column being reconciled.
type Column struct {
	Name        string
	Label       string
	FieldType   string
	Description string
	Candidates  []Candidate
}

// Result is one column's reconciled value.
type Result struct {
	Column      string   `json:"column"`
	Value       any      `json:"value"`
	Confidence  float64  `json:"confidence"`
	SourcesUsed []string `json:"sources_used,omitempty"`
	Reasoning   string   `json:"reasoning,omitempty"`
}

// Merger is the SmartMerge component.
type Merger struct {
	queue *llmqueue.Queue
	ke    config.KEConfig
	llm   config.LLMConfig
	log   *slog.Logger
}

func NewMerger(queue *llmqueue.Queue, cfg *config.Config, log *slog.Logger) *Merger {
	return &Merger{queue: queue, ke: cfg.KE, llm: cfg.LLM, log: log.With(logger.Scope("merge"))}
}

// MergeDomain reconciles every column for a single grouped domain row,
// running all column merges concurrently (spec.md §4.9: "all column merges
// for a single domain run concurrently; a column-level failure yields null
// for that column but does not abort the domain").
func (m *Merger) MergeDomain(ctx context.Context, columns []Column) map[string]Result {
	results := make(map[string]Result, len(columns))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, col := range columns {
		wg.Add(1)
		go func(col Column) {
			defer wg.Done()
			res := m.mergeColumn(ctx, col)
			mu.Lock()
			results[col.Name] = res
			mu.Unlock()
		}(col)
	}
	wg.Wait()
	return results
}

func (m *Merger) mergeColumn(ctx context.Context, col Column) Result {
	minConfidence := m.ke.SmartMergeMinConfidence
	maxCandidates := m.ke.SmartMergeMaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 8
	}

	candidates := make([]Candidate, 0, len(col.Candidates))
	for _, c := range col.Candidates {
		if c.Value == nil {
			continue
		}
		if c.Confidence < minConfidence {
			continue
		}
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Confidence > candidates[j].Confidence })
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	if len(candidates) == 0 {
		return Result{Column: col.Name, Value: nil}
	}
	if len(candidates) == 1 {
		c := candidates[0]
		return Result{Column: col.Name, Value: c.Value, Confidence: c.Confidence, SourcesUsed: sourceURLs(candidates)}
	}

	res, err := m.reconcileWithLLM(ctx, col, candidates)
	if err != nil {
		m.log.Warn("smart merge LLM reconciliation failed, column left null",
			slog.String("column", col.Name), logger.Error(err))
		return Result{Column: col.Name, Value: nil}
	}
	return res
}

func (m *Merger) reconcileWithLLM(ctx context.Context, col Column, candidates []Candidate) (Result, error) {
	timeout := m.llm.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	req := &llmqueue.Request{
		Type:           llmqueue.RequestTypeComplete,
		Model:          m.llm.Model,
		SystemPrompt:   mergeSystemPrompt(col),
		UserPrompt:     mergeUserPrompt(candidates),
		ResponseFormat: "json",
		AuxContext:     llmqueue.JSON{"column": col.Name},
		TimeoutAt:      time.Now().Add(timeout),
	}
	reqID, err := m.queue.Submit(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("submit merge request: %w", err)
	}
	resp, err := m.queue.WaitForResult(ctx, reqID, timeout)
	if err != nil {
		return Result{}, fmt.Errorf("await merge result: %w", err)
	}
	if resp.Status != llmqueue.ResponseStatusSuccess {
		msg := "llm request did not succeed"
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return Result{}, fmt.Errorf("%s", msg)
	}

	confidence := 0.0
	switch v := resp.Result["confidence"].(type) {
	case float64:
		confidence = v
	case int:
		confidence = float64(v)
	}
	var sourcesUsed []string
	if raw, ok := resp.Result["sources_used"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				sourcesUsed = append(sourcesUsed, str)
			}
		}
	}
	reasoning, _ := resp.Result["reasoning"].(string)

	return Result{
		Column:      col.Name,
		Value:       resp.Result["value"],
		Confidence:  confidence,
		SourcesUsed: sourcesUsed,
		Reasoning:   reasoning,
	}, nil
}

func sourceURLs(candidates []Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.SourceURL != "" {
			out = append(out, c.SourceURL)
		}
	}
	return out
}

func mergeSystemPrompt(col Column) string {
	return fmt.Sprintf(
		"You reconcile conflicting values for a single report column across multiple source documents.\n"+
			"Column: %s (%s)\nField type: %s\nDescription: %s\n\n"+
			"Return a JSON object: {\"value\": <reconciled value, matching the field type>, "+
			"\"confidence\": <0-1>, \"sources_used\": [<source urls you relied on>], \"reasoning\": \"<one sentence>\"}.",
		col.Label, col.Name, col.FieldType, col.Description,
	)
}

func mergeUserPrompt(candidates []Candidate) string {
	out := "Candidates:\n"
	for _, c := range candidates {
		out += fmt.Sprintf("- value=%v confidence=%.2f source=%q (%s)\n", c.Value, c.Confidence, c.SourceTitle, c.SourceURL)
	}
	return out
}
