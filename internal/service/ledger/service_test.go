package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"warden/internal/domain"
)

// fakeInfractionRepo is an in-memory InfractionRepository.
type fakeInfractionRepo struct {
	mu          sync.Mutex
	infractions []*domain.Infraction
	nextID      int64
}

func newFakeRepo() *fakeInfractionRepo {
	return &fakeInfractionRepo{nextID: 1}
}

func (r *fakeInfractionRepo) Create(ctx context.Context, infraction *domain.Infraction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	infraction.ID = r.nextID
	r.nextID++
	stored := *infraction
	r.infractions = append(r.infractions, &stored)
	return nil
}

func (r *fakeInfractionRepo) GetByID(ctx context.Context, id int64) (*domain.Infraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, infraction := range r.infractions {
		if infraction.ID == id {
			copied := *infraction
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *fakeInfractionRepo) ListByUserAndType(ctx context.Context, guildID, userID int64, infractionType domain.InfractionType) ([]*domain.Infraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Infraction
	for _, infraction := range r.infractions {
		if infraction.GuildID == guildID && infraction.UserID == userID && infraction.Type == infractionType {
			copied := *infraction
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeInfractionRepo) ListByUser(ctx context.Context, guildID, userID int64) ([]*domain.Infraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Infraction
	for i := len(r.infractions) - 1; i >= 0; i-- {
		infraction := r.infractions[i]
		if infraction.GuildID == guildID && infraction.UserID == userID {
			copied := *infraction
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeInfractionRepo) MarkCancelled(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, infraction := range r.infractions {
		if infraction.ID == id {
			infraction.Cancelled = true
			return nil
		}
	}
	return errors.New("not found")
}

func (r *fakeInfractionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.infractions)
}

func testService(repo *fakeInfractionRepo) *Service {
	return New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

const (
	guildID     = int64(100)
	userID      = int64(200)
	moderatorID = int64(300)
)

func TestApplyAssignsID(t *testing.T) {
	repo := newFakeRepo()
	service := testService(repo)

	infraction, err := service.Apply(context.Background(), ApplyRequest{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Type:        domain.InfractionWarning,
		Reason:      "spamming",
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if infraction.ID == 0 {
		t.Error("Apply() did not assign an ID")
	}
	if infraction.CreatedAt.IsZero() {
		t.Error("Apply() did not stamp CreatedAt")
	}
}

func TestApplyDurationRules(t *testing.T) {
	tests := []struct {
		name     string
		kind     domain.InfractionType
		duration *time.Duration
		wantErr  bool
	}{
		{name: "mute requires duration", kind: domain.InfractionMute, duration: nil, wantErr: true},
		{name: "mute with duration", kind: domain.InfractionMute, duration: durationPtr(time.Hour)},
		{name: "ban rejects duration", kind: domain.InfractionBan, duration: durationPtr(time.Hour), wantErr: true},
		{name: "ban without duration", kind: domain.InfractionBan, duration: nil},
		{name: "warning rejects duration", kind: domain.InfractionWarning, duration: durationPtr(time.Minute), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			service := testService(repo)

			_, err := service.Apply(context.Background(), ApplyRequest{
				GuildID:  guildID,
				UserID:   userID,
				Type:     tt.kind,
				Duration: tt.duration,
			})
			if tt.wantErr {
				var invalid *InvalidDurationError
				if !errors.As(err, &invalid) {
					t.Fatalf("Apply() error = %v, want InvalidDurationError", err)
				}
				if repo.count() != 0 {
					t.Error("rejected infraction was persisted")
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
		})
	}
}

func TestApplyRejectsSecondActiveUnique(t *testing.T) {
	repo := newFakeRepo()
	service := testService(repo)
	ctx := context.Background()

	first, err := service.Apply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID, Type: domain.InfractionBan,
	})
	if err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}

	_, err = service.Apply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID, Type: domain.InfractionBan,
	})
	var active *ActiveInfractionError
	if !errors.As(err, &active) {
		t.Fatalf("second Apply() error = %v, want ActiveInfractionError", err)
	}
	if active.ExistingID != first.ID {
		t.Errorf("ExistingID = %d, want %d", active.ExistingID, first.ID)
	}
	if repo.count() != 1 {
		t.Errorf("stored %d infractions, want 1", repo.count())
	}

	// A different user is unaffected.
	if _, err := service.Apply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID + 1, Type: domain.InfractionBan,
	}); err != nil {
		t.Errorf("Apply() for other user error = %v", err)
	}
}

func TestApplyAllowsRepeatedNonUnique(t *testing.T) {
	repo := newFakeRepo()
	service := testService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := service.Apply(ctx, ApplyRequest{
			GuildID: guildID, UserID: userID, Type: domain.InfractionWarning,
		}); err != nil {
			t.Fatalf("Apply() #%d error = %v", i+1, err)
		}
	}
	if repo.count() != 3 {
		t.Errorf("stored %d infractions, want 3", repo.count())
	}
}

func TestApplyAllowsNewMuteAfterExpiry(t *testing.T) {
	repo := newFakeRepo()
	service := testService(repo)
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return current }

	if _, err := service.Apply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID,
		Type: domain.InfractionMute, Duration: durationPtr(time.Hour),
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	// Still active one minute before expiry.
	current = current.Add(59 * time.Minute)
	_, err := service.Apply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID,
		Type: domain.InfractionMute, Duration: durationPtr(time.Hour),
	})
	var active *ActiveInfractionError
	if !errors.As(err, &active) {
		t.Fatalf("Apply() before expiry error = %v, want ActiveInfractionError", err)
	}

	// Expired records no longer block.
	current = current.Add(2 * time.Minute)
	if _, err := service.Apply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID,
		Type: domain.InfractionMute, Duration: durationPtr(time.Hour),
	}); err != nil {
		t.Fatalf("Apply() after expiry error = %v", err)
	}
}

func TestCheckApplyDoesNotPersist(t *testing.T) {
	repo := newFakeRepo()
	service := testService(repo)
	ctx := context.Background()

	if err := service.CheckApply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID, Type: domain.InfractionBan,
	}); err != nil {
		t.Fatalf("CheckApply() error = %v", err)
	}
	if repo.count() != 0 {
		t.Errorf("CheckApply() persisted %d records", repo.count())
	}

	if _, err := service.Apply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID, Type: domain.InfractionBan,
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	err := service.CheckApply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID, Type: domain.InfractionBan,
	})
	var active *ActiveInfractionError
	if !errors.As(err, &active) {
		t.Fatalf("CheckApply() error = %v, want ActiveInfractionError", err)
	}
}

func TestCancel(t *testing.T) {
	repo := newFakeRepo()
	service := testService(repo)
	ctx := context.Background()

	applied, err := service.Apply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID, Type: domain.InfractionBan,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	cancelled, err := service.Cancel(ctx, guildID, userID, domain.InfractionBan)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.ID != applied.ID {
		t.Errorf("Cancel() ID = %d, want %d", cancelled.ID, applied.ID)
	}
	if !cancelled.Cancelled {
		t.Error("Cancel() returned a record not marked cancelled")
	}

	// Cancelling again finds nothing active.
	_, err = service.Cancel(ctx, guildID, userID, domain.InfractionBan)
	var noActive *NoActiveInfractionError
	if !errors.As(err, &noActive) {
		t.Fatalf("second Cancel() error = %v, want NoActiveInfractionError", err)
	}

	// And a fresh ban is allowed now.
	if _, err := service.Apply(ctx, ApplyRequest{
		GuildID: guildID, UserID: userID, Type: domain.InfractionBan,
	}); err != nil {
		t.Errorf("Apply() after cancel error = %v", err)
	}
}

func TestCancelRejectsNonCancellable(t *testing.T) {
	service := testService(newFakeRepo())

	for _, kind := range []domain.InfractionType{domain.InfractionNote, domain.InfractionWarning, domain.InfractionKick} {
		_, err := service.Cancel(context.Background(), guildID, userID, kind)
		var notCancellable *NotCancellableError
		if !errors.As(err, &notCancellable) {
			t.Errorf("Cancel(%s) error = %v, want NotCancellableError", kind, err)
		}
	}
}

func TestApplySerializesPerUser(t *testing.T) {
	repo := newFakeRepo()
	service := testService(repo)
	ctx := context.Background()

	// Concurrent bans against the same user must collapse to a single
	// record, whatever the interleaving.
	const attempts = 16
	var wg sync.WaitGroup
	var successes int64
	var successMu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Apply(ctx, ApplyRequest{
				GuildID: guildID, UserID: userID, Type: domain.InfractionBan,
			}); err == nil {
				successMu.Lock()
				successes++
				successMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("%d concurrent applies succeeded, want 1", successes)
	}
	if repo.count() != 1 {
		t.Errorf("stored %d infractions, want 1", repo.count())
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	repo := newFakeRepo()
	service := testService(repo)
	ctx := context.Background()

	kinds := []domain.InfractionType{
		domain.InfractionNote,
		domain.InfractionWarning,
		domain.InfractionKick,
	}
	for _, kind := range kinds {
		if _, err := service.Apply(ctx, ApplyRequest{
			GuildID:     guildID,
			UserID:      userID,
			ModeratorID: moderatorID,
			Type:        kind,
			Reason:      "test",
		}); err != nil {
			t.Fatalf("Apply(%s) error = %v", kind, err)
		}
	}
	if _, err := service.Apply(ctx, ApplyRequest{
		GuildID:     guildID,
		UserID:      userID + 1,
		ModeratorID: moderatorID,
		Type:        domain.InfractionWarning,
		Reason:      "someone else",
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	history, err := service.History(ctx, guildID, userID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != len(kinds) {
		t.Fatalf("History() returned %d infractions, want %d", len(history), len(kinds))
	}
	for i := 1; i < len(history); i++ {
		if history[i-1].ID <= history[i].ID {
			t.Errorf("History() not newest first: IDs %d, %d", history[i-1].ID, history[i].ID)
		}
	}
	for _, infraction := range history {
		if infraction.UserID != userID {
			t.Errorf("History() returned infraction of user %d", infraction.UserID)
		}
	}
}
