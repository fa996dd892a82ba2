package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plannerhq/plansearch/pkg/observability"
	"github.com/plannerhq/plansearch/pkg/planning"
)

var serviceTracer = otel.Tracer("plansearch/search/service")

// sortColumns whitelists the no-text-query sort keys. Caller input
// selects an entry; it is never rendered into SQL directly.
var sortColumns = map[string]string{
	"created_at": "idx.created_at",
	"title":      "idx.title",
	"entity_id":  "idx.entity_id",
}

// ServiceConfig holds query-side limits
type ServiceConfig struct {
	QueryTimeout time.Duration
	DefaultLimit int
	MaxLimit     int
}

// SearchRequest is one structured search request
type SearchRequest struct {
	EntityType planning.EntityType

	// Query is the optional free-text component
	Query string

	// Facets maps catalog facet names to id sets. A present-but-empty
	// set matches nothing.
	Facets map[string][]int64

	// SortBy applies only when Query is empty; defaults to created_at
	// descending. SortAsc flips the direction.
	SortBy  string
	SortAsc bool

	// RankThreshold drops text matches scoring below it; zero disables
	// the floor.
	RankThreshold float64

	Limit  int
	Offset int
}

// SearchResults is one page of hits with the total matching count
type SearchResults struct {
	Items      []planning.EntityProjection `json:"items"`
	TotalCount int                         `json:"total_count"`
	Limit      int                         `json:"limit"`
	Offset     int                         `json:"offset"`
}

// Service is the search subsystem's entry point: it validates the
// request, resolves the requester's visibility predicate, queries the
// index store and hydrates the page.
type Service struct {
	store     IndexStore
	resolver  *PermissionResolver
	assembler *Assembler
	config    ServiceConfig
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewService creates a search service
func NewService(store IndexStore, resolver *PermissionResolver, assembler *Assembler, config ServiceConfig, metrics *observability.Metrics, logger *observability.Logger) *Service {
	return &Service{
		store:     store,
		resolver:  resolver,
		assembler: assembler,
		config:    config,
		metrics:   metrics,
		logger:    logger,
	}
}

// Search executes one tenant-scoped, permission-filtered search
func (s *Service) Search(ctx context.Context, identity planning.Identity, req SearchRequest) (*SearchResults, error) {
	ctx, span := serviceTracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("entity_type", string(req.EntityType)),
			attribute.Bool("has_text", req.Query != ""),
			attribute.Int("facet_count", len(req.Facets)),
			attribute.Int("limit", req.Limit),
			attribute.Int("offset", req.Offset),
		),
	)
	defer span.End()

	start := time.Now()
	results, err := s.search(ctx, identity, req)

	label := string(req.EntityType)
	s.metrics.SearchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		status := statusLabel(err)
		s.metrics.SearchRequestsTotal.WithLabelValues(label, status).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")

		log := s.requestLog(ctx).WithError(err).WithField("entity_type", label)
		if status == "error" {
			log.Error("Search failed")
		} else {
			log.Warn("Search rejected")
		}
		return nil, err
	}

	s.metrics.SearchRequestsTotal.WithLabelValues(label, "success").Inc()
	s.metrics.SearchResultCount.WithLabelValues(label).Observe(float64(len(results.Items)))
	s.requestLog(ctx).WithFields(map[string]interface{}{
		"entity_type":  label,
		"result_count": len(results.Items),
		"total_count":  results.TotalCount,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Debug("Search completed")
	span.SetAttributes(
		attribute.Int("result_count", len(results.Items)),
		attribute.Int("total_count", results.TotalCount),
	)
	span.SetStatus(codes.Ok, "search completed")
	return results, nil
}

// requestLog returns the logger for one request: the context-carried
// logger when the caller attached one, annotated with the request id
// and the active trace.
func (s *Service) requestLog(ctx context.Context) *observability.Logger {
	return observability.UpdateLoggerWithTraceContext(ctx, observability.FromContext(ctx, s.logger))
}

func (s *Service) search(ctx context.Context, identity planning.Identity, req SearchRequest) (*SearchResults, error) {
	// Authorization fails closed before anything else runs
	visibility, err := s.resolver.VisibilityCond(identity, req.EntityType)
	if err != nil {
		return nil, err
	}

	if !req.EntityType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, req.EntityType)
	}

	limit, offset, err := s.normalizePagination(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}

	orderBy, err := resolveSort(req)
	if err != nil {
		return nil, err
	}

	facets, err := s.facetConds(req.Facets)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	ranked, total, err := s.store.Query(ctx, IndexQuery{
		EntityType:    req.EntityType,
		Visibility:    visibility,
		Facets:        facets,
		Text:          req.Query,
		RankThreshold: req.RankThreshold,
		OrderBy:       orderBy,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, err
	}

	items, err := s.assembler.Assemble(ctx, req.EntityType, ranked, identity)
	if err != nil {
		return nil, err
	}

	return &SearchResults{
		Items:      items,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

func (s *Service) normalizePagination(limit, offset int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidPagination)
	}
	if limit == 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	return limit, offset, nil
}

// resolveSort maps the caller's sort selection onto whitelisted
// columns. Sorting applies only to no-text queries; text queries order
// by relevance.
func resolveSort(req SearchRequest) ([]string, error) {
	if req.Query != "" {
		if req.SortBy != "" {
			return nil, fmt.Errorf("%w: sort_by cannot be combined with a text query", ErrInvalidSort)
		}
		return nil, nil
	}

	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSort, sortBy)
	}

	direction := "DESC"
	if req.SortAsc {
		direction = "ASC"
	}
	return []string{column + " " + direction}, nil
}

func (s *Service) facetConds(facets map[string][]int64) ([]Cond, error) {
	if len(facets) == 0 {
		return nil, nil
	}
	conds := make([]Cond, 0, len(facets))
	for name, ids := range facets {
		cond, err := FacetCond(name, ids)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "denied"
	case errors.Is(err, ErrUnknownFacet),
		errors.Is(err, ErrUnknownEntityType),
		errors.Is(err, ErrInvalidSort),
		errors.Is(err, ErrInvalidPagination):
		return "invalid"
	default:
		return "error"
	}
}
