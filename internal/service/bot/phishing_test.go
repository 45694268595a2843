package bot

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"warden/internal/domain"
	"warden/internal/guildconfig"
	"warden/internal/schema"
	"warden/internal/service/ledger"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func stubResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// fakeInfractionRepo is an in-memory InfractionRepository.
type fakeInfractionRepo struct {
	mu          sync.Mutex
	infractions []*domain.Infraction
	nextID      int64
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
	return nil, sql.ErrNoRows
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
	return sql.ErrNoRows
}

// testBotService builds a BotService whose Discord session talks to
// the given transport instead of the real API.
func testBotService(t *testing.T, transport roundTripperFunc) (*BotService, *fakeInfractionRepo) {
	t.Helper()

	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New() error = %v", err)
	}
	session.Client = &http.Client{Transport: transport}
	session.State.User = &discordgo.User{ID: "900000000000000001"}

	repo := &fakeInfractionRepo{nextID: 1}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &BotService{
		logger:        log,
		session:       session,
		ledger:        ledger.New(repo, log),
		ignoredLeaves: make(map[string]struct{}),
		ctx:           context.Background(),
	}, repo
}

func testGuildView(t *testing.T, guildID int64, entries map[string]string) *guildconfig.View {
	t.Helper()
	registry, err := schema.Load()
	if err != nil {
		t.Fatalf("schema.Load() error = %v", err)
	}
	return guildconfig.NewView(registry, guildID, entries)
}

func phishingEvent(guildID, userID string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "777000000000000001",
		ChannelID: "888000000000000001",
		GuildID:   guildID,
		Author:    &discordgo.User{ID: userID},
	}}
}

func TestPhishingDMDeliveryRecorded(t *testing.T) {
	transport := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/users/@me/channels"):
			return stubResponse(http.StatusOK, `{"id":"111"}`), nil
		case req.Method == http.MethodPost && strings.Contains(req.URL.Path, "/channels/111/messages"):
			return stubResponse(http.StatusOK, `{"id":"222"}`), nil
		case req.Method == http.MethodDelete, req.Method == http.MethodPut:
			return stubResponse(http.StatusNoContent, ""), nil
		}
		return stubResponse(http.StatusNotFound, `{}`), nil
	})

	service, repo := testBotService(t, transport)
	view := testGuildView(t, 1000, nil)

	delivered := service.sendPhishingDM(service.logger, view, "555", "kick")
	if !delivered {
		t.Fatal("sendPhishingDM() = false, want true")
	}

	service.punishPhisher(service.logger, phishingEvent("1000", "555"), domain.InfractionKick, delivered)

	infractions, err := repo.ListByUser(context.Background(), 1000, 555)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(infractions) != 1 {
		t.Fatalf("recorded %d infractions, want 1", len(infractions))
	}
	infraction := infractions[0]
	if infraction.Type != domain.InfractionKick {
		t.Errorf("Type = %s, want kick", infraction.Type)
	}
	if infraction.DMSent == nil || !*infraction.DMSent {
		t.Errorf("DMSent = %v, want true", infraction.DMSent)
	}
	if !service.leaveIgnored("555") {
		t.Error("kick did not suppress the upcoming leave event")
	}
}

func TestPhishingDMFailureRecorded(t *testing.T) {
	transport := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodDelete || req.Method == http.MethodPut {
			return stubResponse(http.StatusNoContent, ""), nil
		}
		return stubResponse(http.StatusForbidden,
			`{"message":"Cannot send messages to this user","code":50007}`), nil
	})

	service, repo := testBotService(t, transport)
	view := testGuildView(t, 1000, nil)

	delivered := service.sendPhishingDM(service.logger, view, "555", "ban")
	if delivered {
		t.Fatal("sendPhishingDM() = true, want false")
	}

	service.punishPhisher(service.logger, phishingEvent("1000", "555"), domain.InfractionBan, delivered)

	infractions, err := repo.ListByUser(context.Background(), 1000, 555)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(infractions) != 1 {
		t.Fatalf("recorded %d infractions, want 1", len(infractions))
	}
	if dmSent := infractions[0].DMSent; dmSent == nil || *dmSent {
		t.Errorf("DMSent = %v, want false", dmSent)
	}
}
