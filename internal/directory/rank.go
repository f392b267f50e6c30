// ABOUTME: On-chain holder rank lookup boundary
// ABOUTME: HTTP implementation plus a null lookup for deployments without an indexer

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RankLookup resolves an account's NFT holder rank. Rank 0 means the account
// holds nothing; lower positive ranks are earlier holders.
type RankLookup interface {
	Rank(ctx context.Context, accountID string) (int, error)
}

// HTTPRankLookup queries a holder-rank indexer over HTTP
type HTTPRankLookup struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRankLookup creates a rank lookup against the given indexer URL
func NewHTTPRankLookup(baseURL string) *HTTPRankLookup {
	return &HTTPRankLookup{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Rank fetches the holder rank for an account. Unknown accounts rank 0.
func (l *HTTPRankLookup) Rank(ctx context.Context, accountID string) (int, error) {
	url := fmt.Sprintf("%s/rank/%s", l.baseURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching rank: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rank lookup returned status %d", resp.StatusCode)
	}

	var payload struct {
		Rank int `json:"rank"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("parsing rank response: %w", err)
	}

	return payload.Rank, nil
}

// UnrankedLookup is used when no indexer is configured; every account is a guest.
type UnrankedLookup struct{}

// Rank always returns 0.
func (UnrankedLookup) Rank(ctx context.Context, accountID string) (int, error) {
	return 0, nil
}
