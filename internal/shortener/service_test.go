package shortener

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sundayezeilo/linkstat/internal/errx"
)

/***************
 * Mocks
 ***************/

// mockStore implements Store for testing.
type mockStore struct {
	insertLinkFunc        func(ctx context.Context, code, originalURL string) (ShortLink, error)
	getLinkByCodeFunc     func(ctx context.Context, code string) (ShortLink, error)
	listLinksFunc         func(ctx context.Context) ([]ShortLink, error)
	countLinksFunc        func(ctx context.Context) (int64, error)
	insertClickFunc       func(ctx context.Context, click NewClick) (ClickEvent, error)
	countClicksForURLFunc func(ctx context.Context, urlID uuid.UUID) (int64, error)
	countAllClicksFunc    func(ctx context.Context) (int64, error)
	listClicksSinceFunc   func(ctx context.Context, since time.Time) ([]ClickEvent, error)
}

func (m *mockStore) InsertLink(ctx context.Context, code, originalURL string) (ShortLink, error) {
	if m.insertLinkFunc != nil {
		return m.insertLinkFunc(ctx, code, originalURL)
	}
	return ShortLink{ID: uuid.New(), ShortCode: code, OriginalURL: originalURL, CreatedAt: time.Now()}, nil
}

func (m *mockStore) GetLinkByCode(ctx context.Context, code string) (ShortLink, error) {
	if m.getLinkByCodeFunc != nil {
		return m.getLinkByCodeFunc(ctx, code)
	}
	return ShortLink{}, errx.E("mock.GetLinkByCode", errx.NotFound, errors.New("not found"))
}

func (m *mockStore) ListLinks(ctx context.Context) ([]ShortLink, error) {
	if m.listLinksFunc != nil {
		return m.listLinksFunc(ctx)
	}
	return nil, nil
}

func (m *mockStore) CountLinks(ctx context.Context) (int64, error) {
	if m.countLinksFunc != nil {
		return m.countLinksFunc(ctx)
	}
	return 0, nil
}

func (m *mockStore) InsertClick(ctx context.Context, click NewClick) (ClickEvent, error) {
	if m.insertClickFunc != nil {
		return m.insertClickFunc(ctx, click)
	}
	return ClickEvent{ID: uuid.New(), URLID: click.URLID, ClickedAt: click.ClickedAt}, nil
}

func (m *mockStore) CountClicksForURL(ctx context.Context, urlID uuid.UUID) (int64, error) {
	if m.countClicksForURLFunc != nil {
		return m.countClicksForURLFunc(ctx, urlID)
	}
	return 0, nil
}

func (m *mockStore) CountAllClicks(ctx context.Context) (int64, error) {
	if m.countAllClicksFunc != nil {
		return m.countAllClicksFunc(ctx)
	}
	return 0, nil
}

func (m *mockStore) ListClicksSince(ctx context.Context, since time.Time) ([]ClickEvent, error) {
	if m.listClicksSinceFunc != nil {
		return m.listClicksSinceFunc(ctx, since)
	}
	return nil, nil
}

// mockCodeGenerator hands out codes in order, then falls back to "abc123".
type mockCodeGenerator struct {
	generateFunc func(length int) (string, error)
	codes        []string
	callCount    int
}

func (m *mockCodeGenerator) Generate(length int) (string, error) {
	m.callCount++

	if m.generateFunc != nil {
		return m.generateFunc(length)
	}
	if idx := m.callCount - 1; idx < len(m.codes) {
		return m.codes[idx], nil
	}
	return "abc123", nil
}

// mockRecorder captures recorded clicks synchronously.
type mockRecorder struct {
	mu     sync.Mutex
	clicks []NewClick
}

func (m *mockRecorder) Record(click NewClick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks = append(m.clicks, click)
}

func (m *mockRecorder) recorded() []NewClick {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]NewClick(nil), m.clicks...)
}

func conflictErr() error {
	return errx.E("mock.InsertLink", errx.Conflict, errors.New("duplicate short code"))
}

/***************
 * Constructor Tests
 ***************/

func TestNewService(t *testing.T) {
	t.Run("creates service with nil config", func(t *testing.T) {
		if svc := NewService(&mockStore{}, nil); svc == nil {
			t.Fatal("NewService() returned nil")
		}
	})

	t.Run("falls back to default code length when out of range", func(t *testing.T) {
		for _, length := range []int{0, -1, 21, 100} {
			var gotLength int
			gen := &mockCodeGenerator{
				generateFunc: func(length int) (string, error) {
					gotLength = length
					return "abc123", nil
				},
			}
			svc := NewService(&mockStore{}, &ServiceConfig{CodeGenerator: gen, CodeLength: length})

			if _, err := svc.Create(context.Background(), CreateLinkRequest{OriginalURL: "https://example.com"}); err != nil {
				t.Fatalf("Create() unexpected error: %v", err)
			}
			if gotLength != DefaultCodeLength {
				t.Errorf("CodeLength %d: generator got length %d, want %d", length, gotLength, DefaultCodeLength)
			}
		}
	})

	t.Run("respects MaxAttempts when provided", func(t *testing.T) {
		gen := &mockCodeGenerator{}
		inserts := 0

		svc := NewService(&mockStore{
			insertLinkFunc: func(ctx context.Context, code, originalURL string) (ShortLink, error) {
				inserts++
				return ShortLink{}, conflictErr()
			},
		}, &ServiceConfig{CodeGenerator: gen, MaxAttempts: 1})

		_, err := svc.Create(context.Background(), CreateLinkRequest{OriginalURL: "https://example.com"})
		if errx.KindOf(err) != errx.Exhausted {
			t.Errorf("error kind = %v, want %v", errx.KindOf(err), errx.Exhausted)
		}
		if inserts != 1 {
			t.Errorf("InsertLink called %d times, want 1", inserts)
		}
		if gen.callCount != 1 {
			t.Errorf("Generator called %d times, want 1", gen.callCount)
		}
	})
}

/***************
 * Create Tests
 ***************/

func TestServiceCreate(t *testing.T) {
	t.Run("creates link with custom code", func(t *testing.T) {
		gen := &mockCodeGenerator{}
		var gotCode string
		store := &mockStore{
			insertLinkFunc: func(ctx context.Context, code, originalURL string) (ShortLink, error) {
				gotCode = code
				return ShortLink{ID: uuid.New(), ShortCode: code, OriginalURL: originalURL, CreatedAt: time.Now()}, nil
			},
		}
		svc := NewService(store, &ServiceConfig{CodeGenerator: gen})

		link, err := svc.Create(context.Background(), CreateLinkRequest{
			OriginalURL: "https://example.com",
			CustomCode:  "mylink",
		})
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}
		if gotCode != "mylink" || link.ShortCode != "mylink" {
			t.Errorf("ShortCode = %q (stored %q), want %q", link.ShortCode, gotCode, "mylink")
		}
		if gen.callCount != 0 {
			t.Errorf("Generator called %d times for custom code, want 0", gen.callCount)
		}
	})

	t.Run("creates link with generated code", func(t *testing.T) {
		gen := &mockCodeGenerator{codes: []string{"Xy9Zab"}}
		svc := NewService(&mockStore{}, &ServiceConfig{CodeGenerator: gen})

		link, err := svc.Create(context.Background(), CreateLinkRequest{OriginalURL: "https://example.com/a"})
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}
		if link.ShortCode != "Xy9Zab" {
			t.Errorf("ShortCode = %q, want %q", link.ShortCode, "Xy9Zab")
		}
		if link.OriginalURL != "https://example.com/a" {
			t.Errorf("OriginalURL = %q, want %q", link.OriginalURL, "https://example.com/a")
		}
	})

	t.Run("redraws after a conflict and succeeds", func(t *testing.T) {
		var tried []string
		store := &mockStore{
			insertLinkFunc: func(ctx context.Context, code, originalURL string) (ShortLink, error) {
				tried = append(tried, code)
				if len(tried) < 3 {
					return ShortLink{}, conflictErr()
				}
				return ShortLink{ID: uuid.New(), ShortCode: code, OriginalURL: originalURL}, nil
			},
		}
		gen := &mockCodeGenerator{codes: []string{"first", "second", "third"}}
		svc := NewService(store, &ServiceConfig{CodeGenerator: gen})

		link, err := svc.Create(context.Background(), CreateLinkRequest{OriginalURL: "https://example.com"})
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}
		if link.ShortCode != "third" {
			t.Errorf("ShortCode = %q, want %q", link.ShortCode, "third")
		}
		if strings.Join(tried, ",") != "first,second,third" {
			t.Errorf("tried codes = %v, want [first second third]", tried)
		}
	})

	t.Run("returns Exhausted after the attempt budget", func(t *testing.T) {
		inserts := 0
		store := &mockStore{
			insertLinkFunc: func(ctx context.Context, code, originalURL string) (ShortLink, error) {
				inserts++
				return ShortLink{}, conflictErr()
			},
		}
		gen := &mockCodeGenerator{}
		svc := NewService(store, &ServiceConfig{CodeGenerator: gen})

		_, err := svc.Create(context.Background(), CreateLinkRequest{OriginalURL: "https://example.com"})
		if err == nil {
			t.Fatal("Create() expected error, got nil")
		}
		if errx.KindOf(err) != errx.Exhausted {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Exhausted)
		}
		if !errors.Is(err, ErrGenerationExhausted) {
			t.Errorf("errors.Is(err, ErrGenerationExhausted) = false; err = %v", err)
		}
		if errx.OpOf(err) != "shortener.service.Create" {
			t.Errorf("OpOf(err) = %q, want %q", errx.OpOf(err), "shortener.service.Create")
		}
		if inserts != DefaultMaxAttempts {
			t.Errorf("InsertLink called %d times, want %d", inserts, DefaultMaxAttempts)
		}
	})

	t.Run("custom code conflict is not retried", func(t *testing.T) {
		inserts := 0
		gen := &mockCodeGenerator{}
		store := &mockStore{
			insertLinkFunc: func(ctx context.Context, code, originalURL string) (ShortLink, error) {
				inserts++
				return ShortLink{}, conflictErr()
			},
		}
		svc := NewService(store, &ServiceConfig{CodeGenerator: gen})

		_, err := svc.Create(context.Background(), CreateLinkRequest{
			OriginalURL: "https://example.com",
			CustomCode:  "taken",
		})
		if errx.KindOf(err) != errx.Conflict {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Conflict)
		}
		if !errors.Is(err, ErrCodeTaken) {
			t.Errorf("errors.Is(err, ErrCodeTaken) = false; err = %v", err)
		}
		if inserts != 1 {
			t.Errorf("InsertLink called %d times, want 1", inserts)
		}
		if gen.callCount != 0 {
			t.Errorf("Generator called %d times, want 0", gen.callCount)
		}
	})

	t.Run("non-conflict store error stops the loop", func(t *testing.T) {
		inserts := 0
		store := &mockStore{
			insertLinkFunc: func(ctx context.Context, code, originalURL string) (ShortLink, error) {
				inserts++
				return ShortLink{}, errx.E("mock.InsertLink", errx.Unavailable, errors.New("connection refused"))
			},
		}
		svc := NewService(store, &ServiceConfig{CodeGenerator: &mockCodeGenerator{}})

		_, err := svc.Create(context.Background(), CreateLinkRequest{OriginalURL: "https://example.com"})
		if errx.KindOf(err) != errx.Unavailable {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Unavailable)
		}
		if inserts != 1 {
			t.Errorf("InsertLink called %d times, want 1", inserts)
		}
	})

	t.Run("returns Internal when generator fails", func(t *testing.T) {
		gen := &mockCodeGenerator{
			generateFunc: func(length int) (string, error) {
				return "", errors.New("entropy unavailable")
			},
		}
		svc := NewService(&mockStore{}, &ServiceConfig{CodeGenerator: gen})

		_, err := svc.Create(context.Background(), CreateLinkRequest{OriginalURL: "https://example.com"})
		if errx.KindOf(err) != errx.Internal {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Internal)
		}
	})

	t.Run("invalid URLs are rejected before any write", func(t *testing.T) {
		urls := []string{
			"",
			"example.com",
			"ftp://example.com",
			"https://",
			"not a url",
			"javascript:alert(1)",
			"https://example.com/" + strings.Repeat("a", MaxURLLength),
		}

		for _, raw := range urls {
			inserts := 0
			store := &mockStore{
				insertLinkFunc: func(ctx context.Context, code, originalURL string) (ShortLink, error) {
					inserts++
					return ShortLink{}, nil
				},
			}
			svc := NewService(store, nil)

			_, err := svc.Create(context.Background(), CreateLinkRequest{OriginalURL: raw, CustomCode: "valid"})
			if errx.KindOf(err) != errx.Invalid {
				t.Errorf("url %q: KindOf(err) = %v, want %v", raw, errx.KindOf(err), errx.Invalid)
			}
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("url %q: errors.Is(err, ErrInvalidURL) = false", raw)
			}
			if inserts != 0 {
				t.Errorf("url %q: InsertLink called %d times, want 0", raw, inserts)
			}
		}
	})

	t.Run("invalid custom codes are rejected", func(t *testing.T) {
		codes := []string{"my-link", "a b", "ab_c", "abc.def", strings.Repeat("a", 21), "ünï"}

		for _, code := range codes {
			svc := NewService(&mockStore{}, nil)

			_, err := svc.Create(context.Background(), CreateLinkRequest{
				OriginalURL: "https://example.com",
				CustomCode:  code,
			})
			if errx.KindOf(err) != errx.Invalid {
				t.Errorf("code %q: KindOf(err) = %v, want %v", code, errx.KindOf(err), errx.Invalid)
			}
			if !errors.Is(err, ErrInvalidCode) {
				t.Errorf("code %q: errors.Is(err, ErrInvalidCode) = false", code)
			}
		}
	})
}

/***************
 * Resolve Tests
 ***************/

func TestServiceResolve(t *testing.T) {
	fixed := time.Date(2024, 3, 10, 23, 59, 0, 0, time.FixedZone("X", 3600))
	linkID := uuid.New()

	t.Run("returns original URL and records a click", func(t *testing.T) {
		rec := &mockRecorder{}
		store := &mockStore{
			getLinkByCodeFunc: func(ctx context.Context, code string) (ShortLink, error) {
				return ShortLink{ID: linkID, ShortCode: code, OriginalURL: "https://example.com/target"}, nil
			},
		}
		svc := NewService(store, &ServiceConfig{
			Recorder: rec,
			Clock:    func() time.Time { return fixed },
		})

		got, err := svc.Resolve(context.Background(), "abc123", ClientMeta{UserAgent: "curl/8.0", Referrer: "https://ref.example"})
		if err != nil {
			t.Fatalf("Resolve() unexpected error: %v", err)
		}
		if got != "https://example.com/target" {
			t.Errorf("Resolve() = %q, want %q", got, "https://example.com/target")
		}

		clicks := rec.recorded()
		if len(clicks) != 1 {
			t.Fatalf("recorded %d clicks, want 1", len(clicks))
		}
		c := clicks[0]
		if c.URLID != linkID {
			t.Errorf("click URLID = %v, want %v", c.URLID, linkID)
		}
		if !c.ClickedAt.Equal(fixed) || c.ClickedAt.Location() != time.UTC {
			t.Errorf("click ClickedAt = %v, want %v in UTC", c.ClickedAt, fixed.UTC())
		}
		if c.UserAgent != "curl/8.0" || c.Referrer != "https://ref.example" {
			t.Errorf("click meta = (%q, %q), want (curl/8.0, https://ref.example)", c.UserAgent, c.Referrer)
		}
	})

	t.Run("unknown code is NotFound and records nothing", func(t *testing.T) {
		rec := &mockRecorder{}
		svc := NewService(&mockStore{}, &ServiceConfig{Recorder: rec})

		_, err := svc.Resolve(context.Background(), "nope", ClientMeta{})
		if errx.KindOf(err) != errx.NotFound {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.NotFound)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("errors.Is(err, ErrNotFound) = false; err = %v", err)
		}
		if n := len(rec.recorded()); n != 0 {
			t.Errorf("recorded %d clicks, want 0", n)
		}
	})

	t.Run("malformed code never reaches the store", func(t *testing.T) {
		lookups := 0
		store := &mockStore{
			getLinkByCodeFunc: func(ctx context.Context, code string) (ShortLink, error) {
				lookups++
				return ShortLink{}, nil
			},
		}
		svc := NewService(store, &ServiceConfig{Recorder: &mockRecorder{}})

		for _, code := range []string{"", "a/b", strings.Repeat("z", 21)} {
			_, err := svc.Resolve(context.Background(), code, ClientMeta{})
			if errx.KindOf(err) != errx.NotFound {
				t.Errorf("code %q: KindOf(err) = %v, want %v", code, errx.KindOf(err), errx.NotFound)
			}
		}
		if lookups != 0 {
			t.Errorf("GetLinkByCode called %d times, want 0", lookups)
		}
	})

	t.Run("store failure propagates as Unavailable", func(t *testing.T) {
		store := &mockStore{
			getLinkByCodeFunc: func(ctx context.Context, code string) (ShortLink, error) {
				return ShortLink{}, errx.E("mock.GetLinkByCode", errx.Unavailable, errors.New("timeout"))
			},
		}
		svc := NewService(store, &ServiceConfig{Recorder: &mockRecorder{}})

		_, err := svc.Resolve(context.Background(), "abc123", ClientMeta{})
		if errx.KindOf(err) != errx.Unavailable {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Unavailable)
		}
	})

	t.Run("click write failure does not fail the redirect", func(t *testing.T) {
		done := make(chan struct{})
		store := &mockStore{
			getLinkByCodeFunc: func(ctx context.Context, code string) (ShortLink, error) {
				return ShortLink{ID: linkID, ShortCode: code, OriginalURL: "https://example.com"}, nil
			},
			insertClickFunc: func(ctx context.Context, click NewClick) (ClickEvent, error) {
				defer close(done)
				return ClickEvent{}, errx.E("mock.InsertClick", errx.Unavailable, errors.New("down"))
			},
		}
		svc := NewService(store, nil)

		got, err := svc.Resolve(context.Background(), "abc123", ClientMeta{})
		if err != nil {
			t.Fatalf("Resolve() unexpected error: %v", err)
		}
		if got != "https://example.com" {
			t.Errorf("Resolve() = %q, want %q", got, "https://example.com")
		}

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("click write was never attempted")
		}
	})
}

/***************
 * Get / List Tests
 ***************/

func TestServiceGet(t *testing.T) {
	linkID := uuid.New()
	store := &mockStore{
		getLinkByCodeFunc: func(ctx context.Context, code string) (ShortLink, error) {
			return ShortLink{ID: linkID, ShortCode: code, OriginalURL: "https://example.com"}, nil
		},
		countClicksForURLFunc: func(ctx context.Context, urlID uuid.UUID) (int64, error) {
			if urlID != linkID {
				t.Errorf("CountClicksForURL got %v, want %v", urlID, linkID)
			}
			return 42, nil
		},
	}
	rec := &mockRecorder{}
	svc := NewService(store, &ServiceConfig{Recorder: rec})

	detail, err := svc.Get(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if detail.Clicks != 42 {
		t.Errorf("Clicks = %d, want 42", detail.Clicks)
	}
	if detail.ShortCode != "abc123" {
		t.Errorf("ShortCode = %q, want %q", detail.ShortCode, "abc123")
	}
	if n := len(rec.recorded()); n != 0 {
		t.Errorf("Get recorded %d clicks, want 0", n)
	}
}

func TestServiceList(t *testing.T) {
	t.Run("returns store listing", func(t *testing.T) {
		want := []ShortLink{{ShortCode: "b"}, {ShortCode: "a"}}
		svc := NewService(&mockStore{
			listLinksFunc: func(ctx context.Context) ([]ShortLink, error) { return want, nil },
		}, nil)

		got, err := svc.List(context.Background())
		if err != nil {
			t.Fatalf("List() unexpected error: %v", err)
		}
		if len(got) != 2 || got[0].ShortCode != "b" {
			t.Errorf("List() = %+v, want %+v", got, want)
		}
	})

	t.Run("propagates store kind", func(t *testing.T) {
		svc := NewService(&mockStore{
			listLinksFunc: func(ctx context.Context) ([]ShortLink, error) {
				return nil, errx.E("mock.ListLinks", errx.Unavailable, errors.New("down"))
			},
		}, nil)

		_, err := svc.List(context.Background())
		if errx.KindOf(err) != errx.Unavailable {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Unavailable)
		}
	})
}

/***************
 * Validation Tests
 ***************/

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://example.com", false},
		{"http with path and query", "http://example.com/a/b?c=d#e", false},
		{"with port", "https://example.com:8443/x", false},
		{"empty", "", true},
		{"no scheme", "example.com/path", true},
		{"relative path", "/just/a/path", true},
		{"mailto", "mailto:someone@example.com", true},
		{"missing host", "http:///path", true},
		{"at max length", "https://e.co/" + strings.Repeat("a", MaxURLLength-len("https://e.co/")), false},
		{"over max length", "https://e.co/" + strings.Repeat("a", MaxURLLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
