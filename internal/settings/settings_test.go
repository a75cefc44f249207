package settings

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/crimson-sun/tipwatch/internal/model"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	file, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	mem, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite memory: %v", err)
	}
	stores := map[string]Store{
		"memory":        NewMemory(),
		"sqlite":        file,
		"sqlite-memory": mem,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestGetMissing(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var cfg model.FilterConfig
			found, err := s.Get(context.Background(), KeyFilter, &cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if found {
				t.Fatal("expected missing key")
			}
		})
	}
}

func TestStructuredValues(t *testing.T) {
	ctx := context.Background()
	cfg := model.FilterConfig{
		HideCategories: []model.Category{model.CategoryMessage},
		HideExcluded:   true,
		ExcludeWords:   []string{"foo", "", "bar"},
		Sort:           model.SortGroup,
	}
	limits := model.GroupLimits{"[メッセージ] ：K": 2, "[ルーレット] ：spin": model.Unlimited}
	events := []model.Event{
		{ID: "1", Text: "[メッセージ] ：K 【alice】", Timestamp: "2024-01-01T00:00:00Z", Checked: true, Rendered: true},
		{ID: "2", Text: "plain", Timestamp: "2024-01-02T00:00:00Z"},
	}

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, KeyFilter, cfg); err != nil {
				t.Fatalf("set filter: %v", err)
			}
			if err := s.Set(ctx, KeyGroupLimits, limits); err != nil {
				t.Fatalf("set limits: %v", err)
			}
			if err := s.Set(ctx, KeyEvents, events); err != nil {
				t.Fatalf("set events: %v", err)
			}

			var gotCfg model.FilterConfig
			if _, err := s.Get(ctx, KeyFilter, &gotCfg); err != nil {
				t.Fatalf("get filter: %v", err)
			}
			if !reflect.DeepEqual(gotCfg, cfg) {
				t.Fatalf("filter = %+v, want %+v", gotCfg, cfg)
			}

			var gotLimits model.GroupLimits
			if _, err := s.Get(ctx, KeyGroupLimits, &gotLimits); err != nil {
				t.Fatalf("get limits: %v", err)
			}
			if !reflect.DeepEqual(gotLimits, limits) {
				t.Fatalf("limits = %v, want %v", gotLimits, limits)
			}

			var gotEvents []model.Event
			if _, err := s.Get(ctx, KeyEvents, &gotEvents); err != nil {
				t.Fatalf("get events: %v", err)
			}
			if !reflect.DeepEqual(gotEvents, events) {
				t.Fatalf("events = %+v, want %+v", gotEvents, events)
			}
		})
	}
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			s.Set(ctx, "k", "first")
			s.Set(ctx, "k", "second")
			var got string
			found, err := s.Get(ctx, "k", &got)
			if err != nil || !found {
				t.Fatalf("get: found=%v err=%v", found, err)
			}
			if got != "second" {
				t.Fatalf("expected second, got %q", got)
			}
		})
	}
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(ctx, KeyGroupLimits, model.GroupLimits{"K": 3}); err != nil {
		t.Fatalf("set: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	var limits model.GroupLimits
	found, err := s.Get(ctx, KeyGroupLimits, &limits)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if limits["K"] != 3 {
		t.Fatalf("expected cap 3, got %v", limits)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	m.Close()
	if err := m.Set(context.Background(), "k", 1); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSQLiteClosed(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Close()
	if err := s.Set(context.Background(), "k", 1); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
