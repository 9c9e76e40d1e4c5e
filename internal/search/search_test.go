package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebook/api/internal/store"
)

func newSQLFixture(t *testing.T) (*store.SQLStore, *SQLSearch) {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := store.Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, dialect, ""))

	s := store.NewSQLStore(db, dialect)
	for _, id := range []string{"acc_a", "acc_b"} {
		_, err := s.CreateAccount(ctx, store.Account{ID: id, Email: id + "@example.com", DisplayName: id, PasswordHash: "x"})
		require.NoError(t, err)
	}
	return s, NewSQLSearch(db, dialect)
}

func doc(text string) string {
	return `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"` + text + `"}]}]}`
}

func TestSQLSearchScopesToOwner(t *testing.T) {
	s, searcher := newSQLFixture(t)
	ctx := context.Background()

	_, err := s.CreateFolder(ctx, store.Folder{ID: "fd_1", OwnerID: "acc_a", Name: "Recipes"})
	require.NoError(t, err)
	_, err = s.CreatePage(ctx, store.Page{ID: "pg_1", OwnerID: "acc_a", Title: "Pancakes", Content: doc("flour, eggs and milk")})
	require.NoError(t, err)
	_, err = s.CreatePage(ctx, store.Page{ID: "pg_2", OwnerID: "acc_a", Title: "Shopping", Content: doc("buy more eggs")})
	require.NoError(t, err)
	_, err = s.CreatePage(ctx, store.Page{ID: "pg_3", OwnerID: "acc_b", Title: "Eggs", Content: doc("not yours")})
	require.NoError(t, err)

	results, total, err := searcher.Search(ctx, Query{OwnerID: "acc_a", Text: "EGGS"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	ids := []string{}
	for _, r := range results {
		ids = append(ids, r.ID)
		assert.Equal(t, ResultPage, r.Type)
	}
	assert.ElementsMatch(t, []string{"pg_1", "pg_2"}, ids)

	results, total, err = searcher.Search(ctx, Query{OwnerID: "acc_a", Text: "recipes", FilterType: ResultFolder})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "Recipes", results[0].Title)
}

func TestSQLSearchMatchesTextNotDocumentStructure(t *testing.T) {
	s, searcher := newSQLFixture(t)
	ctx := context.Background()
	_, err := s.CreatePage(ctx, store.Page{ID: "pg_1", OwnerID: "acc_a", Title: "Notes", Content: doc("hello")})
	require.NoError(t, err)

	_, total, err := searcher.Search(ctx, Query{OwnerID: "acc_a", Text: "paragraph"})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, total, err = searcher.Search(ctx, Query{OwnerID: "acc_a", Text: "100%"})
	require.NoError(t, err)
	assert.Zero(t, total)
}

type fakeEngine struct {
	mu        sync.Mutex
	healthy   bool
	searchErr error
	indexed   []string
	deleted   []string
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) Search(context.Context, Query) ([]Result, int, error) {
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return []Result{{Type: ResultPage, ID: "from-engine"}}, 1, nil
}

func (f *fakeEngine) IndexPages(pages []PageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range pages {
		f.indexed = append(f.indexed, p.ID)
	}
	return nil
}

func (f *fakeEngine) IndexFolders(folders []FolderRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, folder := range folders {
		f.indexed = append(f.indexed, folder.ID)
	}
	return nil
}

func (f *fakeEngine) DeletePage(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEngine) DeleteFolder(id string) error { return f.DeletePage(id) }

func (f *fakeEngine) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.indexed...), append([]string(nil), f.deleted...)
}

func TestServicePrefersHealthyEngine(t *testing.T) {
	_, fallback := newSQLFixture(t)
	engine := &fakeEngine{healthy: true}
	svc := NewService(engine, fallback, zerolog.Nop())

	resp := svc.Search(context.Background(), Query{OwnerID: "acc_a", Text: "x"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "from-engine", resp.Results[0].ID)
}

func TestServiceFallsBackOnEngineError(t *testing.T) {
	s, fallback := newSQLFixture(t)
	_, err := s.CreatePage(context.Background(), store.Page{ID: "pg_1", OwnerID: "acc_a", Title: "Fallback works", Content: doc("")})
	require.NoError(t, err)

	svc := NewService(&fakeEngine{healthy: true, searchErr: errors.New("boom")}, fallback, zerolog.Nop())
	resp := svc.Search(context.Background(), Query{OwnerID: "acc_a", Text: "fallback"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "pg_1", resp.Results[0].ID)

	svc = NewService(nil, fallback, zerolog.Nop())
	resp = svc.Search(context.Background(), Query{OwnerID: "acc_a", Text: "nothing-matches"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestServiceIndexesInBackground(t *testing.T) {
	_, fallback := newSQLFixture(t)
	engine := &fakeEngine{healthy: true}
	svc := NewService(engine, fallback, zerolog.Nop())

	svc.IndexPage(PageRecord{ID: "pg_1"})
	svc.IndexFolder(FolderRecord{ID: "fd_1"})
	svc.Remove([]string{"pg_2"}, []string{"fd_2"})

	require.Eventually(t, func() bool {
		indexed, deleted := engine.snapshot()
		return len(indexed) == 2 && len(deleted) == 2
	}, time.Second, 5*time.Millisecond)

	unhealthy := &fakeEngine{}
	NewService(unhealthy, fallback, zerolog.Nop()).IndexPage(PageRecord{ID: "pg_1"})
	indexed, _ := unhealthy.snapshot()
	assert.Empty(t, indexed)
}
