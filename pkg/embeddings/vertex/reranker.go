package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"
)

// RerankerConfig configures the Vertex AI Ranking API client backing
// SmartClassifier's reranker fallback (spec.md §4.8/§6).
type RerankerConfig struct {
	ProjectID string
	Location  string
	Model     string
	Timeout   time.Duration
}

// Reranker calls the Vertex AI Discovery Engine ranking endpoint.
type Reranker struct {
	projectID  string
	location   string
	model      string
	httpClient *http.Client
	tokenSrc   *google.Credentials
	log        *slog.Logger
}

// RerankResult is one scored candidate, mirroring the `/rerank` contract in
// spec.md §6: `{results: [{index, relevance_score}]}`.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// NewReranker constructs a Reranker using application-default credentials,
// the same credential path as vertex.Client for embeddings.
func NewReranker(ctx context.Context, cfg RerankerConfig, log *slog.Logger) (*Reranker, error) {
	if cfg.ProjectID == "" || cfg.Location == "" {
		return nil, fmt.Errorf("project ID and location are required")
	}
	if cfg.Model == "" {
		cfg.Model = "semantic-ranker-512"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("failed to find default credentials: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Reranker{
		projectID:  cfg.ProjectID,
		location:   cfg.Location,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokenSrc:   creds,
		log:        log,
	}, nil
}

type rankRequest struct {
	Model               string       `json:"model"`
	Query               string       `json:"query"`
	Records             []rankRecord `json:"records"`
	TopN                int          `json:"topN"`
	IgnoreRecordDetails bool         `json:"ignoreRecordDetailsInResponse"`
}

type rankRecord struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type rankResponse struct {
	Records []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"records"`
}

// Rerank scores each candidate text against query and returns results sorted
// by the remote service, by candidate index in the input slice.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string) ([]RerankResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	records := make([]rankRecord, len(candidates))
	for i, c := range candidates {
		records[i] = rankRecord{ID: fmt.Sprintf("%d", i), Content: c}
	}

	body, err := json.Marshal(rankRequest{
		Model:   r.model,
		Query:   query,
		Records: records,
		TopN:    len(candidates),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rank request: %w", err)
	}

	token, err := r.tokenSrc.TokenProvider.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	url := fmt.Sprintf(
		"https://discoveryengine.googleapis.com/v1/projects/%s/locations/%s/rankingConfigs/default_ranking_config:rank",
		r.projectID, r.location,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.Value)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rank request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rank request returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed rankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal rank response: %w", err)
	}

	results := make([]RerankResult, 0, len(parsed.Records))
	for _, rec := range parsed.Records {
		var idx int
		fmt.Sscanf(rec.ID, "%d", &idx)
		results = append(results, RerankResult{Index: idx, RelevanceScore: rec.Score})
	}
	return results, nil
}
