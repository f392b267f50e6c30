// ABOUTME: Directory service for profile search and holder-rank resolution
// ABOUTME: Fronts the rank lookup with a TTL cache and derives privilege tiers

package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NEARBuilders/cyborg-gateway/internal/store"
)

// Privilege tiers derived from holder rank
const (
	TierGuest  = "guest"
	TierHolder = "holder"
	TierOG     = "og"
)

// ogRankCutoff is the highest rank still considered an original holder
const ogRankCutoff = 100

// ProfileStore defines what the directory needs from storage
type ProfileStore interface {
	GetProfile(ctx context.Context, accountID string) (*store.Profile, error)
	SearchProfiles(ctx context.Context, query string, limit int) ([]*store.Profile, error)
}

// Service resolves profiles and holder ranks for tools and handlers
type Service struct {
	store  ProfileStore
	rank   RankLookup
	cache  *rankCache
	logger *slog.Logger
}

// New creates a directory service. Rank lookups are cached with the given
// TTL and size bound.
func New(profiles ProfileStore, rank RankLookup, cacheTTL time.Duration, cacheSize int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  profiles,
		rank:   rank,
		cache:  newRankCache(cacheTTL, cacheSize),
		logger: logger.With("component", "directory"),
	}
}

// GetProfile returns one profile by account ID
func (s *Service) GetProfile(ctx context.Context, accountID string) (*store.Profile, error) {
	return s.store.GetProfile(ctx, accountID)
}

// SearchProfiles finds profiles matching the query string
func (s *Service) SearchProfiles(ctx context.Context, query string, limit int) ([]*store.Profile, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.store.SearchProfiles(ctx, query, limit)
}

// HolderRank resolves an account's holder rank, consulting the cache first
func (s *Service) HolderRank(ctx context.Context, accountID string) (int, error) {
	if rank, ok := s.cache.Get(accountID); ok {
		return rank, nil
	}

	rank, err := s.rank.Rank(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("resolving holder rank: %w", err)
	}

	s.cache.Put(accountID, rank)
	s.logger.Debug("holder rank resolved", "account_id", accountID, "rank", rank)
	return rank, nil
}

// Tier derives the privilege tier for an account from its holder rank.
// Lookup failures degrade to guest rather than failing the caller's request.
func (s *Service) Tier(ctx context.Context, accountID string) string {
	rank, err := s.HolderRank(ctx, accountID)
	if err != nil {
		s.logger.Warn("rank lookup failed, treating as guest", "account_id", accountID, "error", err)
		return TierGuest
	}
	return TierForRank(rank)
}

// TierForRank maps a holder rank to a privilege tier
func TierForRank(rank int) string {
	switch {
	case rank <= 0:
		return TierGuest
	case rank <= ogRankCutoff:
		return TierOG
	default:
		return TierHolder
	}
}

// Close releases cache resources
func (s *Service) Close() {
	s.cache.Close()
}
