// ABOUTME: Directory tools: profile search, profile lookup and holder rank
// ABOUTME: Read-side tools backed by the directory service

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NEARBuilders/cyborg-gateway/internal/directory"
)

// RegisterDirectoryTools adds the directory-backed tools to the registry
func RegisterDirectoryTools(r *Registry, dir *directory.Service) {
	h := &directoryHandlers{dir: dir}

	r.Register(&Tool{
		Name:        "search_directory",
		Description: "Search member profiles by name, bio or tags",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search text"},"limit":{"type":"integer","description":"Maximum results, default 10"}},"required":["query"]}`),
		Handler:     h.SearchDirectory,
	})

	r.Register(&Tool{
		Name:        "get_profile",
		Description: "Look up a single member profile by account ID",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"account_id":{"type":"string"}},"required":["account_id"]}`),
		Handler:     h.GetProfile,
	})

	r.Register(&Tool{
		Name:        "holder_rank",
		Description: "Look up an account's NFT holder rank and privilege tier",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"account_id":{"type":"string"}},"required":["account_id"]}`),
		Handler:     h.HolderRank,
	})
}

type directoryHandlers struct {
	dir *directory.Service
}

// profileResult is the JSON shape returned for each profile
type profileResult struct {
	AccountID   string   `json:"account_id"`
	DisplayName string   `json:"display_name"`
	Bio         string   `json:"bio,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SearchDirectory handles the search_directory tool
func (h *directoryHandlers) SearchDirectory(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	profiles, err := h.dir.SearchProfiles(ctx, params.Query, params.Limit)
	if err != nil {
		return "", fmt.Errorf("searching directory: %w", err)
	}

	results := make([]profileResult, 0, len(profiles))
	for _, p := range profiles {
		results = append(results, profileResult{
			AccountID:   p.AccountID,
			DisplayName: p.DisplayName,
			Bio:         p.Bio,
			Tags:        p.Tags,
		})
	}

	data, err := json.Marshal(map[string]any{"results": results, "count": len(results)})
	if err != nil {
		return "", fmt.Errorf("encoding results: %w", err)
	}
	return string(data), nil
}

// GetProfile handles the get_profile tool
func (h *directoryHandlers) GetProfile(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if params.AccountID == "" {
		return "", fmt.Errorf("account_id is required")
	}

	p, err := h.dir.GetProfile(ctx, params.AccountID)
	if err != nil {
		return "", fmt.Errorf("looking up profile %q: %w", params.AccountID, err)
	}

	data, err := json.Marshal(profileResult{
		AccountID:   p.AccountID,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Tags:        p.Tags,
	})
	if err != nil {
		return "", fmt.Errorf("encoding profile: %w", err)
	}
	return string(data), nil
}

// HolderRank handles the holder_rank tool
func (h *directoryHandlers) HolderRank(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if params.AccountID == "" {
		return "", fmt.Errorf("account_id is required")
	}

	rank, err := h.dir.HolderRank(ctx, params.AccountID)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(map[string]any{
		"account_id": params.AccountID,
		"rank":       rank,
		"tier":       directory.TierForRank(rank),
	})
	if err != nil {
		return "", fmt.Errorf("encoding rank: %w", err)
	}
	return string(data), nil
}
