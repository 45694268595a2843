package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis key patterns
const (
	blocklistKey        = "phish:domains"         // current blocklist set
	blocklistStagingKey = "phish:domains:staging" // bootstrap staging set
)

// BlocklistRepository implements the domain.BlocklistRepository
// interface using a Redis set. The set is shared, so a restarted bot
// keeps the blocklist the feed built up.
type BlocklistRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBlocklistRepository creates a new Redis blocklist repository
func NewBlocklistRepository(client *redis.Client, logger *slog.Logger) *BlocklistRepository {
	return &BlocklistRepository{
		client: client,
		logger: logger,
	}
}

// Add inserts domains into the set
func (r *BlocklistRepository) Add(ctx context.Context, domains ...string) error {
	if len(domains) == 0 {
		return nil
	}

	if err := r.client.SAdd(ctx, blocklistKey, toMembers(domains)...).Err(); err != nil {
		return fmt.Errorf("failed to add blocklist domains: %w", err)
	}

	r.logger.Debug("Blocklist domains added", "count", len(domains))
	return nil
}

// Remove deletes domains from the set
func (r *BlocklistRepository) Remove(ctx context.Context, domains ...string) error {
	if len(domains) == 0 {
		return nil
	}

	if err := r.client.SRem(ctx, blocklistKey, toMembers(domains)...).Err(); err != nil {
		return fmt.Errorf("failed to remove blocklist domains: %w", err)
	}

	r.logger.Debug("Blocklist domains removed", "count", len(domains))
	return nil
}

// Contains reports whether a domain is blocklisted
func (r *BlocklistRepository) Contains(ctx context.Context, domain string) (bool, error) {
	member, err := r.client.SIsMember(ctx, blocklistKey, domain).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blocklist membership: %w", err)
	}
	return member, nil
}

// Replace swaps the whole set for the given domains. The new set is
// staged under a separate key and renamed so readers never observe a
// half-filled blocklist.
func (r *BlocklistRepository) Replace(ctx context.Context, domains []string) error {
	if err := r.client.Del(ctx, blocklistStagingKey).Err(); err != nil {
		return fmt.Errorf("failed to clear staging blocklist: %w", err)
	}

	// SAdd in chunks to keep command sizes reasonable
	const chunkSize = 1000
	for start := 0; start < len(domains); start += chunkSize {
		end := start + chunkSize
		if end > len(domains) {
			end = len(domains)
		}

		if err := r.client.SAdd(ctx, blocklistStagingKey, toMembers(domains[start:end])...).Err(); err != nil {
			return fmt.Errorf("failed to stage blocklist domains: %w", err)
		}
	}

	if len(domains) == 0 {
		if err := r.client.Del(ctx, blocklistKey).Err(); err != nil {
			return fmt.Errorf("failed to clear blocklist: %w", err)
		}
		return nil
	}

	if err := r.client.Rename(ctx, blocklistStagingKey, blocklistKey).Err(); err != nil {
		return fmt.Errorf("failed to swap blocklist: %w", err)
	}

	r.logger.Info("Blocklist replaced", "count", len(domains))
	return nil
}

// Count returns the size of the set
func (r *BlocklistRepository) Count(ctx context.Context) (int64, error) {
	count, err := r.client.SCard(ctx, blocklistKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count blocklist domains: %w", err)
	}
	return count, nil
}

func toMembers(domains []string) []interface{} {
	members := make([]interface{}, len(domains))
	for i, domain := range domains {
		members[i] = domain
	}
	return members
}
