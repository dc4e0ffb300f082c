package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"mfl.dev/cli/internal/core/plugin"
	"mfl.dev/cli/internal/infrastructure/storage"
)

type failingStore struct {
	*storage.MemoryStore
	getErr error
	setErr error
}

func (s *failingStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.MemoryStore.GetItem(ctx, key)
}

func (s *failingStore) SetItem(ctx context.Context, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.MemoryStore.SetItem(ctx, key, value)
}

func sampleRegistry() plugin.Registry {
	reg := plugin.NewRegistry()
	reg.Put(plugin.Record{ID: 42, Slug: "x", Name: "X", FileURL: "https://cdn/x.js", IsEnabled: true, InstalledAt: 1700000000000})
	reg.Put(plugin.Record{ID: 7, Slug: "bundle", Name: "Bundle", FileURL: "https://cdn/bundle.zip", InstalledAt: 1700000000001})
	return reg
}

func TestPersistedRegistry_LoadMissingIsEmpty(t *testing.T) {
	repo := NewPersistedRegistry(storage.NewMemoryStore())

	reg, err := repo.Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, reg)
}

func TestPersistedRegistry_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistedRegistry(storage.NewMemoryStore())

	require.NoError(t, repo.Save(ctx, sampleRegistry()))
	reg, err := repo.Load(ctx)

	require.NoError(t, err)
	assert.Equal(t, sampleRegistry(), reg)
}

func TestPersistedRegistry_StoredLayout(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	repo := NewPersistedRegistry(store)

	reg := plugin.NewRegistry()
	reg.Put(plugin.Record{ID: 42, Slug: "x", Name: "X", Description: "d", Version: "1.0.0",
		FileURL: "https://cdn/x.js", IconURL: "https://cdn/x.png", AuthorName: "liang",
		IsEnabled: true, InstalledAt: 1700000000000})
	require.NoError(t, repo.Save(ctx, reg))

	raw, ok, err := store.GetItem(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"42":{"id":42,"slug":"x","name":"X","description":"d","version":"1.0.0",
		"fileUrl":"https://cdn/x.js","iconUrl":"https://cdn/x.png","authorName":"liang",
		"isEnabled":true,"installedAt":1700000000000}}`, raw)
}

func TestPersistedRegistry_LoadCorruptData(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "InvalidJSON", raw: `{"42": {`},
		{name: "WrongShape", raw: `[1,2,3]`},
		{name: "NonIntegerKey", raw: `{"abc":{"id":1}}`},
		{name: "KeyIDMismatch", raw: `{"42":{"id":7}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := storage.NewMemoryStore()
			require.NoError(t, store.SetItem(ctx, StorageKey, tt.raw))

			reg, err := NewPersistedRegistry(store).Load(ctx)

			assert.NotNil(t, reg)
			assert.Empty(t, reg, "Corrupt data should yield an empty registry")
			var perr *plugin.PersistenceError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "load", perr.Op)
		})
	}
}

func TestPersistedRegistry_StorageFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	repo := NewPersistedRegistry(&failingStore{MemoryStore: storage.NewMemoryStore(), setErr: boom})
	err := repo.Save(ctx, sampleRegistry())
	var perr *plugin.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "save", perr.Op)
	assert.True(t, errors.Is(err, boom))

	repo = NewPersistedRegistry(&failingStore{MemoryStore: storage.NewMemoryStore(), getErr: boom})
	reg, err := repo.Load(ctx)
	assert.Empty(t, reg)
	assert.True(t, errors.Is(err, boom))
}

// TestPersistedRegistry_SaveLoadIsFixedPoint checks that persisting a freshly
// loaded registry reproduces the stored bytes exactly.
func TestPersistedRegistry_SaveLoadIsFixedPoint(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := storage.NewMemoryStore()
		repo := NewPersistedRegistry(store)

		reg := plugin.NewRegistry()
		n := rapid.IntRange(0, 8).Draw(t, "n")
		for i := 0; i < n; i++ {
			reg.Put(plugin.Record{
				ID:          plugin.ID(rapid.Int64Range(1, 1000).Draw(t, "id")),
				Slug:        rapid.StringMatching(`[a-z-]{0,12}`).Draw(t, "slug"),
				Name:        rapid.String().Draw(t, "name"),
				FileURL:     rapid.StringMatching(`https://cdn/[a-z]{1,8}\.(js|zip)`).Draw(t, "url"),
				IsEnabled:   rapid.Bool().Draw(t, "enabled"),
				InstalledAt: rapid.Int64Range(0, 1<<41).Draw(t, "installedAt"),
			})
		}
		if err := repo.Save(ctx, reg); err != nil {
			t.Fatalf("save: %v", err)
		}
		first, _, _ := store.GetItem(ctx, StorageKey)

		loaded, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if err := repo.Save(ctx, loaded); err != nil {
			t.Fatalf("resave: %v", err)
		}
		second, _, _ := store.GetItem(ctx, StorageKey)

		if first != second {
			t.Fatalf("save(load()) changed bytes:\n%s\n%s", first, second)
		}
	})
}
