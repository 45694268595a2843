// Package ledger owns the infraction ledger: it records moderation
// actions and enforces the at-most-one-active rule for unique
// infraction kinds.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/domain"
	"warden/internal/pkg/keyedmutex"
)

// ActiveInfractionError is returned when a unique infraction kind is
// applied while another one is still active.
type ActiveInfractionError struct {
	ExistingID int64
}

func (e *ActiveInfractionError) Error() string {
	return fmt.Sprintf("user already has an active infraction (#%d)", e.ExistingID)
}

// NoActiveInfractionError is returned when cancelling a kind the user
// has no active infraction of.
type NoActiveInfractionError struct {
	Type domain.InfractionType
}

func (e *NoActiveInfractionError) Error() string {
	return fmt.Sprintf("user has no active %s", domain.InfractionNames[e.Type])
}

// InvalidDurationError is returned when the duration presence does
// not match what the infraction kind requires.
type InvalidDurationError struct {
	Type     domain.InfractionType
	Required bool
}

func (e *InvalidDurationError) Error() string {
	if e.Required {
		return fmt.Sprintf("a %s requires a duration", domain.InfractionNames[e.Type])
	}
	return fmt.Sprintf("a %s does not take a duration", domain.InfractionNames[e.Type])
}

// NotCancellableError is returned when cancelling a kind that has no
// cancellation semantics.
type NotCancellableError struct {
	Type domain.InfractionType
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("a %s cannot be cancelled", domain.InfractionNames[e.Type])
}

// ApplyRequest carries everything needed to record an infraction.
type ApplyRequest struct {
	GuildID     int64
	UserID      int64
	ModeratorID int64
	Type        domain.InfractionType
	Reason      string
	Duration    *time.Duration
	DMSent      *bool
}

// Service is the infraction ledger. The uniqueness check and the
// insert are not atomic at the storage layer, so every mutation for a
// given target user is serialized through a per-user lock; actions
// against different users run in parallel.
type Service struct {
	repo   domain.InfractionRepository
	locks  *keyedmutex.KeyedMutex
	logger *slog.Logger
	now    domain.Clock
}

// New creates a new ledger service
func New(repo domain.InfractionRepository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		locks:  keyedmutex.New(),
		logger: logger,
		now:    time.Now,
	}
}

// CheckApply runs the validation Apply would run, without recording
// anything. Callers use it to reject early, before notifying the user
// or touching the platform; Apply re-checks under the same per-user
// lock before inserting.
func (s *Service) CheckApply(ctx context.Context, req ApplyRequest) error {
	requiresDuration := domain.InfractionsWithDurations[req.Type]
	if requiresDuration && req.Duration == nil {
		return &InvalidDurationError{Type: req.Type, Required: true}
	}
	if !requiresDuration && req.Duration != nil {
		return &InvalidDurationError{Type: req.Type, Required: false}
	}

	if domain.UniqueInfractions[req.Type] {
		unlock := s.locks.Lock(req.UserID)
		defer unlock()

		existing, err := s.findActive(ctx, req.GuildID, req.UserID, req.Type)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ActiveInfractionError{ExistingID: existing.ID}
		}
	}

	return nil
}

// Apply validates and records an infraction, returning the persisted
// record with its assigned ID.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*domain.Infraction, error) {
	requiresDuration := domain.InfractionsWithDurations[req.Type]
	if requiresDuration && req.Duration == nil {
		return nil, &InvalidDurationError{Type: req.Type, Required: true}
	}
	if !requiresDuration && req.Duration != nil {
		return nil, &InvalidDurationError{Type: req.Type, Required: false}
	}

	unlock := s.locks.Lock(req.UserID)
	defer unlock()

	if domain.UniqueInfractions[req.Type] {
		existing, err := s.findActive(ctx, req.GuildID, req.UserID, req.Type)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, &ActiveInfractionError{ExistingID: existing.ID}
		}
	}

	infraction := &domain.Infraction{
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		CreatedAt:   s.now(),
		Duration:    req.Duration,
		Reason:      req.Reason,
		Type:        req.Type,
		Cancelled:   false,
		DMSent:      req.DMSent,
	}

	if err := s.repo.Create(ctx, infraction); err != nil {
		return nil, err
	}

	s.logger.Info("Infraction applied",
		"infraction_id", infraction.ID,
		"guild_id", infraction.GuildID,
		"user_id", infraction.UserID,
		"type", infraction.Type,
	)
	return infraction, nil
}

// Cancel marks the active infraction for (guild, user, type) as
// cancelled and returns the updated record.
func (s *Service) Cancel(ctx context.Context, guildID, userID int64, infractionType domain.InfractionType) (*domain.Infraction, error) {
	if !domain.CancellableInfractions[infractionType] {
		return nil, &NotCancellableError{Type: infractionType}
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	active, err := s.findActive(ctx, guildID, userID, infractionType)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, &NoActiveInfractionError{Type: infractionType}
	}

	if err := s.repo.MarkCancelled(ctx, active.ID); err != nil {
		return nil, err
	}
	active.Cancelled = true

	s.logger.Info("Infraction cancelled",
		"infraction_id", active.ID,
		"guild_id", guildID,
		"user_id", userID,
		"type", infractionType,
	)
	return active, nil
}

// Get retrieves an infraction by ID.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Infraction, error) {
	return s.repo.GetByID(ctx, id)
}

// History returns a user's infractions in a guild, newest first.
func (s *Service) History(ctx context.Context, guildID, userID int64) ([]*domain.Infraction, error) {
	return s.repo.ListByUser(ctx, guildID, userID)
}

func (s *Service) findActive(ctx context.Context, guildID, userID int64, infractionType domain.InfractionType) (*domain.Infraction, error) {
	infractions, err := s.repo.ListByUserAndType(ctx, guildID, userID, infractionType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, infraction := range infractions {
		if infraction.ActiveAt(now) {
			return infraction, nil
		}
	}
	return nil, nil
}
