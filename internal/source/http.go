package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/curatorhq/curator/internal/config"
	"github.com/curatorhq/curator/internal/models"
)

// HTTPSource polls a JSON endpoint for new items. It is the generic plugin
// used for platforms that expose a simple search API; platform-specific
// plugins implement the same interface.
type HTTPSource struct {
	cfg    config.SourceConfig
	client *http.Client
}

func NewHTTPSource(cfg config.SourceConfig) *HTTPSource {
	return &HTTPSource{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (s *HTTPSource) Name() string {
	return s.cfg.Name
}

func (s *HTTPSource) Platform() string {
	return s.cfg.Platform
}

type searchResponse struct {
	Items []models.SourceItem `json:"items"`
}

func (s *HTTPSource) Fetch(ctx context.Context, search Search) ([]models.SourceItem, error) {
	endpoint := fmt.Sprintf("%s?search_id=%s", s.cfg.Endpoint, url.QueryEscape(search.ID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("source API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	for i := range response.Items {
		response.Items[i].Metadata.SourcePlugin = s.cfg.Name
		response.Items[i].Metadata.SearchID = search.ID
	}

	return response.Items, nil
}
