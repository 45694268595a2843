// Package phishing maintains a blocklist of known phishing domains
// and scans message content against it. The blocklist is bootstrapped
// from the SinkingYachts dump and kept current by its websocket feed.
package phishing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"warden/internal/domain"
)

// SinkingYachts API
const (
	apiAll  = "https://phish.sinking.yachts/v2/all"
	apiFeed = "wss://phish.sinking.yachts/feed"
)

// domainPattern matches bare domains inside arbitrary message text.
var domainPattern = regexp.MustCompile(`(?i)\b((?:[a-z0-9][-a-z0-9]*[a-z0-9]\.)+[a-z][-a-z0-9]{0,22}[a-z0-9])`)

// Service owns the phishing blocklist lifecycle and lookups. Scanning
// reports nothing until the blocklist is ready, so a half-bootstrapped
// bot never misclassifies messages.
type Service struct {
	blocklist domain.BlocklistRepository
	logger    *slog.Logger
	client    *http.Client

	// identity is sent as the X-Identity header the feed operators ask
	// consumers to provide.
	identity string

	ready atomic.Bool
}

// New creates a new phishing service
func New(blocklist domain.BlocklistRepository, logger *slog.Logger, identity string) *Service {
	return &Service{
		blocklist: blocklist,
		logger:    logger,
		client:    &http.Client{Timeout: 30 * time.Second},
		identity:  identity,
	}
}

// Ready reports whether the blocklist has been populated.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Bootstrap replaces the blocklist with the full dump from the API.
func (s *Service) Bootstrap(ctx context.Context) error {
	s.logger.Debug("Populating phishing blocklist...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiAll, nil)
	if err != nil {
		return fmt.Errorf("failed to build blocklist request: %w", err)
	}
	req.Header.Set("X-Identity", s.identity)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch blocklist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("blocklist fetch returned status %d", resp.StatusCode)
	}

	var domains []string
	if err := json.NewDecoder(resp.Body).Decode(&domains); err != nil {
		return fmt.Errorf("failed to decode blocklist: %w", err)
	}

	if err := s.blocklist.Replace(ctx, domains); err != nil {
		return err
	}

	s.ready.Store(true)
	s.logger.Info("Phishing blocklist ready", "domains", len(domains))
	return nil
}

// SeedDebug skips the bootstrap and registers a single test domain.
func (s *Service) SeedDebug(ctx context.Context) error {
	s.logger.Warn("Phishing blocklist bootstrap disabled in debug mode. Adding scam.com to the list.")

	if err := s.blocklist.Replace(ctx, []string{"scam.com"}); err != nil {
		return err
	}

	s.ready.Store(true)
	return nil
}

// Size returns the number of blocklisted domains.
func (s *Service) Size(ctx context.Context) (int64, error) {
	return s.blocklist.Count(ctx)
}

// ExtractDomains returns every domain-shaped token in the content.
func (s *Service) ExtractDomains(content string) []string {
	return domainPattern.FindAllString(content, -1)
}

// FindBlocked scans the content and returns the first blocklisted
// domain, or "" when the content is clean or the blocklist is not
// ready yet.
func (s *Service) FindBlocked(ctx context.Context, content string) (string, error) {
	if !s.Ready() {
		return "", nil
	}

	for _, candidate := range s.ExtractDomains(content) {
		blocked, err := s.blocklist.Contains(ctx, candidate)
		if err != nil {
			return "", err
		}
		if blocked {
			return candidate, nil
		}
	}

	return "", nil
}
