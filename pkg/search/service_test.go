package search

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plannerhq/plansearch/pkg/observability"
	"github.com/plannerhq/plansearch/pkg/planning"
)

type fakeIndexStore struct {
	lastQuery IndexQuery
	ranked    []RankedID
	total     int
	err       error
}

func (f *fakeIndexStore) Rebuild(ctx context.Context, entityType planning.EntityType) (*RebuildStats, error) {
	return &RebuildStats{}, nil
}

func (f *fakeIndexStore) Query(ctx context.Context, q IndexQuery) ([]RankedID, int, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.ranked, f.total, nil
}

func newTestService(t *testing.T, store *fakeIndexStore) *Service {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewService(
		store,
		NewPermissionResolver(),
		NewAssembler(nil, nil, logger),
		ServiceConfig{
			QueryTimeout: 5 * time.Second,
			DefaultLimit: 50,
			MaxLimit:     1000,
		},
		observability.NewMetrics(prometheus.NewRegistry()),
		logger,
	)
}

func member() planning.Identity {
	return planning.Identity{UserID: 11, CompanyID: 7, Role: planning.RoleMember}
}

func TestSearchFailsClosedOnInvalidIdentity(t *testing.T) {
	store := &fakeIndexStore{}
	service := newTestService(t, store)

	_, err := service.Search(context.Background(), planning.Identity{}, SearchRequest{
		EntityType: planning.EntityPlan,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccessDenied)
	// The store was never consulted
	assert.Empty(t, store.lastQuery.EntityType)
}

func TestSearchRejectsUnknownEntityType(t *testing.T) {
	service := newTestService(t, &fakeIndexStore{})

	_, err := service.Search(context.Background(), member(), SearchRequest{
		EntityType: planning.EntityType("gadget"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEntityType)
}

func TestSearchRejectsUnknownFacet(t *testing.T) {
	service := newTestService(t, &fakeIndexStore{})

	_, err := service.Search(context.Background(), member(), SearchRequest{
		EntityType: planning.EntityPlan,
		Facets:     map[string][]int64{"mystery_ids": {1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFacet)
}

func TestSearchRejectsNegativePagination(t *testing.T) {
	service := newTestService(t, &fakeIndexStore{})

	_, err := service.Search(context.Background(), member(), SearchRequest{
		EntityType: planning.EntityPlan,
		Offset:     -1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPagination)
}

func TestSearchRejectsSortWithTextQuery(t *testing.T) {
	service := newTestService(t, &fakeIndexStore{})

	_, err := service.Search(context.Background(), member(), SearchRequest{
		EntityType: planning.EntityPlan,
		Query:      "launch",
		SortBy:     "title",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSort)
}

func TestSearchRejectsUnknownSortColumn(t *testing.T) {
	service := newTestService(t, &fakeIndexStore{})

	_, err := service.Search(context.Background(), member(), SearchRequest{
		EntityType: planning.EntityPlan,
		SortBy:     "owner_name; DROP TABLE plans",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSort)
}

func TestSearchAppliesDefaultsAndCaps(t *testing.T) {
	store := &fakeIndexStore{total: 0}
	service := newTestService(t, store)

	results, err := service.Search(context.Background(), member(), SearchRequest{
		EntityType: planning.EntityPlan,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, results.Limit)
	assert.Equal(t, 50, store.lastQuery.Limit)
	assert.Equal(t, []string{"idx.created_at DESC"}, store.lastQuery.OrderBy)

	_, err = service.Search(context.Background(), member(), SearchRequest{
		EntityType: planning.EntityPlan,
		Limit:      5000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, store.lastQuery.Limit)
}

func TestSearchPassesVisibilityAndFacets(t *testing.T) {
	store := &fakeIndexStore{total: 3}
	service := newTestService(t, store)

	results, err := service.Search(context.Background(), member(), SearchRequest{
		EntityType: planning.EntityCommunication,
		Query:      "launch",
		Facets: map[string][]int64{
			"tag_ids":     {1, 2},
			"channel_ids": {},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, results.TotalCount)
	assert.Empty(t, results.Items)

	q := store.lastQuery
	assert.Equal(t, planning.EntityCommunication, q.EntityType)
	assert.Equal(t, "launch", q.Text)
	assert.False(t, q.Visibility.Empty())
	assert.Len(t, q.Facets, 2)
}

func TestSearchSortAscending(t *testing.T) {
	store := &fakeIndexStore{}
	service := newTestService(t, store)

	_, err := service.Search(context.Background(), member(), SearchRequest{
		EntityType: planning.EntityPlan,
		SortBy:     "title",
		SortAsc:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"idx.title ASC"}, store.lastQuery.OrderBy)
}

func TestSearchUsesRequestScopedLogger(t *testing.T) {
	service := newTestService(t, &fakeIndexStore{})

	var buf bytes.Buffer
	ctx := observability.WithLogger(context.Background(),
		observability.NewLogger(observability.WarnLevel, &buf))
	ctx = observability.WithRequestID(ctx, "req-9")

	_, err := service.Search(ctx, planning.Identity{}, SearchRequest{
		EntityType: planning.EntityPlan,
	})
	require.Error(t, err)

	// The rejection is logged through the context-carried logger with
	// the request id attached
	assert.Contains(t, buf.String(), "req-9")
	assert.Contains(t, buf.String(), "Search rejected")
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "denied", statusLabel(ErrAccessDenied))
	assert.Equal(t, "invalid", statusLabel(ErrUnknownFacet))
	assert.Equal(t, "invalid", statusLabel(ErrInvalidPagination))
	assert.Equal(t, "error", statusLabel(context.DeadlineExceeded))
}
