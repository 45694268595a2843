package phishing

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
)

// fakeBlocklist is an in-memory BlocklistRepository.
type fakeBlocklist struct {
	mu      sync.Mutex
	domains map[string]bool
}

func newFakeBlocklist(domains ...string) *fakeBlocklist {
	b := &fakeBlocklist{domains: make(map[string]bool)}
	for _, domain := range domains {
		b.domains[domain] = true
	}
	return b
}

func (b *fakeBlocklist) Add(ctx context.Context, domains ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, domain := range domains {
		b.domains[domain] = true
	}
	return nil
}

func (b *fakeBlocklist) Remove(ctx context.Context, domains ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, domain := range domains {
		delete(b.domains, domain)
	}
	return nil
}

func (b *fakeBlocklist) Contains(ctx context.Context, domain string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.domains[domain], nil
}

func (b *fakeBlocklist) Replace(ctx context.Context, domains []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.domains = make(map[string]bool, len(domains))
	for _, domain := range domains {
		b.domains[domain] = true
	}
	return nil
}

func (b *fakeBlocklist) Count(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.domains)), nil
}

func testService(blocklist *fakeBlocklist) *Service {
	return New(blocklist, slog.New(slog.NewTextHandler(io.Discard, nil)), "test")
}

func TestExtractDomains(t *testing.T) {
	service := testService(newFakeBlocklist())

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "bare domain",
			content: "check out scam.com now",
			want:    []string{"scam.com"},
		},
		{
			name:    "inside url",
			content: "https://free-nitro.example.ru/claim?user=1",
			want:    []string{"free-nitro.example.ru"},
		},
		{
			name:    "multiple",
			content: "either scam.com or steamcommunlty.ru works",
			want:    []string{"scam.com", "steamcommunlty.ru"},
		},
		{
			name:    "subdomains kept whole",
			content: "visit login.discord-gift.app today",
			want:    []string{"login.discord-gift.app"},
		},
		{
			name:    "no domains",
			content: "just a normal sentence. with punctuation",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.ExtractDomains(tt.content)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractDomains(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestFindBlocked(t *testing.T) {
	blocklist := newFakeBlocklist("scam.com", "free-nitro.ru")
	service := testService(blocklist)
	ctx := context.Background()

	// Nothing is reported before the blocklist is ready.
	found, err := service.FindBlocked(ctx, "go to scam.com")
	if err != nil {
		t.Fatalf("FindBlocked() error = %v", err)
	}
	if found != "" {
		t.Errorf("FindBlocked() before ready = %q, want empty", found)
	}

	if err := service.SeedDebug(ctx); err != nil {
		t.Fatalf("SeedDebug() error = %v", err)
	}
	// SeedDebug replaced the set; restore the fixture.
	if err := blocklist.Replace(ctx, []string{"scam.com", "free-nitro.ru"}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "blocked bare", content: "go to scam.com", want: "scam.com"},
		{name: "blocked in url", content: "claim here https://free-nitro.ru/gift", want: "free-nitro.ru"},
		{name: "clean domain", content: "docs at pkg.go.dev are fine", want: ""},
		{name: "no domains", content: "nothing suspicious here", want: ""},
		{name: "first blocked wins", content: "pkg.go.dev then scam.com then free-nitro.ru", want: "scam.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := service.FindBlocked(ctx, tt.content)
			if err != nil {
				t.Fatalf("FindBlocked(%q) error = %v", tt.content, err)
			}
			if found != tt.want {
				t.Errorf("FindBlocked(%q) = %q, want %q", tt.content, found, tt.want)
			}
		})
	}
}

func TestSeedDebug(t *testing.T) {
	blocklist := newFakeBlocklist()
	service := testService(blocklist)
	ctx := context.Background()

	if service.Ready() {
		t.Fatal("Ready() = true before seeding")
	}
	if err := service.SeedDebug(ctx); err != nil {
		t.Fatalf("SeedDebug() error = %v", err)
	}
	if !service.Ready() {
		t.Error("Ready() = false after seeding")
	}

	found, err := service.FindBlocked(ctx, "hello scam.com")
	if err != nil {
		t.Fatalf("FindBlocked() error = %v", err)
	}
	if found != "scam.com" {
		t.Errorf("FindBlocked() = %q, want scam.com", found)
	}
}

func TestSize(t *testing.T) {
	blocklist := newFakeBlocklist()
	service := testService(blocklist)
	ctx := context.Background()

	if err := blocklist.Replace(ctx, []string{"a.com", "b.com", "c.com"}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	size, err := service.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 3 {
		t.Errorf("Size() = %d, want 3", size)
	}
}
