package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plannerhq/plansearch/pkg/observability"
	"github.com/plannerhq/plansearch/pkg/planning"
)

var indexTracer = otel.Tracer("plansearch/search/indexstore")

// insertBatchSize keeps each multi-row INSERT well under the
// PostgreSQL 65535 bind-parameter limit (33 parameters per row).
const insertBatchSize = 500

// RankedID is one index hit: an entity id with its relevance score
type RankedID struct {
	EntityID int64
	Rank     float64
}

// RebuildStats describes one completed rebuild
type RebuildStats struct {
	RunID     string
	Documents int
	Duration  time.Duration
}

// IndexQuery is a fully-resolved query against one index snapshot. The
// visibility predicate and facet conditions arrive pre-built; the store
// only combines and executes them.
type IndexQuery struct {
	EntityType    planning.EntityType
	Visibility    Cond
	Facets        []Cond
	Text          string
	RankThreshold float64
	OrderBy       []string // used when Text is empty; builder-owned expressions
	Limit         int
	Offset        int
}

// IndexStore holds one IndexDocument per live entity and supports
// ranked queries over them. The Postgres implementation is the only one
// in production; the interface keeps the query path independent of the
// storage engine.
type IndexStore interface {
	// Rebuild recomputes the snapshot for one entity type. The previous
	// snapshot stays readable until the new one swaps in atomically; a
	// failed rebuild leaves it untouched.
	Rebuild(ctx context.Context, entityType planning.EntityType) (*RebuildStats, error)

	// Query returns the ranked page of entity ids matching the query
	// plus the total count computed from the same predicate.
	Query(ctx context.Context, q IndexQuery) ([]RankedID, int, error)
}

// PostgresIndexStore implements IndexStore over denormalized
// <entity>_search_index tables with tsvector ranking.
type PostgresIndexStore struct {
	writer    *sql.DB // primary, used by Rebuild
	reader    *sql.DB // replica, used by Query
	projector *Projector
	logger    *observability.Logger
}

// NewPostgresIndexStore creates a Postgres-backed index store. Rebuilds
// go through writer; queries go through reader (they may be the same
// handle).
func NewPostgresIndexStore(writer, reader *sql.DB, projector *Projector, logger *observability.Logger) *PostgresIndexStore {
	return &PostgresIndexStore{
		writer:    writer,
		reader:    reader,
		projector: projector,
		logger:    logger,
	}
}

// Rebuild projects every live entity into a shadow table, indexes it,
// and swaps it in as the live snapshot in a single transaction. Readers
// observe either the old snapshot or the new one, never a mixture.
func (s *PostgresIndexStore) Rebuild(ctx context.Context, entityType planning.EntityType) (*RebuildStats, error) {
	ctx, span := indexTracer.Start(ctx, "Rebuild",
		trace.WithAttributes(attribute.String("entity_type", string(entityType))),
	)
	defer span.End()

	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}

	start := time.Now()
	runID := uuid.NewString()
	liveTable := entityType.IndexTable()
	shadowTable := liveTable + "_shadow"
	log := s.logger.WithFields(map[string]interface{}{
		"entity_type": string(entityType),
		"run_id":      runID,
	})

	span.SetAttributes(attribute.String("run_id", runID))

	// A shadow left over from an interrupted rebuild is discarded
	if _, err := s.writer.ExecContext(ctx, "DROP TABLE IF EXISTS "+shadowTable); err != nil {
		return nil, s.failRebuild(span, "failed to drop stale shadow table", err)
	}

	if _, err := s.writer.ExecContext(ctx, indexTableDDL(shadowTable)); err != nil {
		return nil, s.failRebuild(span, "failed to create shadow table", err)
	}

	docs, err := s.projector.ProjectAll(ctx, entityType)
	if err != nil {
		return nil, s.failRebuild(span, "projection failed", err)
	}

	// One transaction populates the whole shadow table: the snapshot is
	// all-or-nothing, and NOW() resolves to the transaction timestamp so
	// every row carries the same refreshed_at stamp.
	if len(docs) > 0 {
		tx, err := s.writer.BeginTx(ctx, nil)
		if err != nil {
			return nil, s.failRebuild(span, "failed to start populate transaction", err)
		}
		for offset := 0; offset < len(docs); offset += insertBatchSize {
			end := offset + insertBatchSize
			if end > len(docs) {
				end = len(docs)
			}
			if err := s.insertBatch(ctx, tx, shadowTable, docs[offset:end]); err != nil {
				tx.Rollback()
				return nil, s.failRebuild(span, "batch insert failed", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, s.failRebuild(span, "failed to commit populate transaction", err)
		}
	}

	// Index names carry the run id so they never collide with the live
	// snapshot's indexes.
	suffix := strings.ReplaceAll(runID[:8], "-", "")
	for _, stmt := range indexStatements(shadowTable, suffix) {
		if _, err := s.writer.ExecContext(ctx, stmt); err != nil {
			return nil, s.failRebuild(span, "index creation failed", err)
		}
	}

	// Atomic swap: the only moment a rebuild touches the live snapshot
	swapTx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.failRebuild(span, "failed to start swap transaction", err)
	}
	if _, err := swapTx.ExecContext(ctx, "DROP TABLE IF EXISTS "+liveTable); err != nil {
		swapTx.Rollback()
		return nil, s.failRebuild(span, "failed to drop previous snapshot", err)
	}
	if _, err := swapTx.ExecContext(ctx, "ALTER TABLE "+shadowTable+" RENAME TO "+liveTable); err != nil {
		swapTx.Rollback()
		return nil, s.failRebuild(span, "failed to swap snapshot", err)
	}
	if err := swapTx.Commit(); err != nil {
		return nil, s.failRebuild(span, "failed to commit swap", err)
	}

	stats := &RebuildStats{
		RunID:     runID,
		Documents: len(docs),
		Duration:  time.Since(start),
	}

	log.WithFields(map[string]interface{}{
		"documents":   stats.Documents,
		"duration_ms": stats.Duration.Milliseconds(),
	}).Info("Index rebuild completed")

	span.SetAttributes(attribute.Int("documents", stats.Documents))
	span.SetStatus(codes.Ok, "rebuild completed")
	return stats, nil
}

func (s *PostgresIndexStore) failRebuild(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return fmt.Errorf("%s: %w", msg, err)
}

// insertBatch writes one multi-row INSERT. The search_vector is
// composed in SQL from the document's weight tiers so ranking lives
// entirely in the database.
func (s *PostgresIndexStore) insertBatch(ctx context.Context, tx *sql.Tx, table string, docs []IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO " + table + ` (
		entity_id, company_id, title, description, objectives, key_messages,
		owner_id, owner_name, confidential, budget_total, budget_spent, created_at,
		tag_ids, tag_names, team_member_ids, team_member_names,
		business_area_ids, business_area_names, location_ids, location_names,
		audience_ids, audience_names, channel_ids, channel_names,
		content_type_ids, content_type_names, strategic_priority_ids, strategic_priority_names,
		folder_ids, folder_names, search_vector
	) VALUES `)

	args := make([]interface{}, 0, len(docs)*33)
	arg := 1
	for i := range docs {
		doc := &docs[i]
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < 30; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", arg)
			arg++
		}
		fmt.Fprintf(&sb,
			", setweight(to_tsvector('english', $%d), 'A') || setweight(to_tsvector('english', $%d), 'B') || setweight(to_tsvector('english', $%d), 'C')",
			arg, arg+1, arg+2,
		)
		arg += 3
		sb.WriteString(")")

		args = append(args,
			doc.EntityID, doc.CompanyID, doc.Title, doc.Description, doc.Objectives, doc.KeyMessages,
			doc.OwnerID, doc.OwnerName, doc.Confidential, doc.BudgetTotal, doc.BudgetSpent, doc.CreatedAt,
			pq.Array(doc.TagIDs), pq.Array(doc.TagNames),
			pq.Array(doc.TeamMemberIDs), pq.Array(doc.TeamMemberNames),
			pq.Array(doc.BusinessAreaIDs), pq.Array(doc.BusinessAreaNames),
			pq.Array(doc.LocationIDs), pq.Array(doc.LocationNames),
			pq.Array(doc.AudienceIDs), pq.Array(doc.AudienceNames),
			pq.Array(doc.ChannelIDs), pq.Array(doc.ChannelNames),
			pq.Array(doc.ContentTypeIDs), pq.Array(doc.ContentTypeNames),
			pq.Array(doc.StrategicPriorityIDs), pq.Array(doc.StrategicPriorityNames),
			pq.Array(doc.FolderIDs), pq.Array(doc.FolderNames),
			doc.TierA(), doc.TierB(), doc.TierC(),
		)
	}

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert %d documents into %s: %w", len(docs), table, err)
	}
	return nil
}

// Query executes a ranked, permission-filtered page query. The total
// count rides on every page row as a window aggregate, so the page and
// the count come out of a single statement and therefore a single
// snapshot; two statements could straddle a rebuild swap and pair a
// page from the old snapshot with a count from the new one.
func (s *PostgresIndexStore) Query(ctx context.Context, q IndexQuery) ([]RankedID, int, error) {
	ctx, span := indexTracer.Start(ctx, "Query",
		trace.WithAttributes(
			attribute.String("entity_type", string(q.EntityType)),
			attribute.Bool("has_text", q.Text != ""),
			attribute.Int("facet_count", len(q.Facets)),
		),
	)
	defer span.End()

	builder := s.buildQuery(q)

	pageSQL, pageArgs := builder.Build()
	rows, err := s.reader.QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page query failed")
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var total int
	ranked := make([]RankedID, 0, q.Limit)
	for rows.Next() {
		var r RankedID
		if err := rows.Scan(&r.EntityID, &r.Rank, &total); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "page scan failed")
			return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		ranked = append(ranked, r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page iteration failed")
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// A page past the end of the result set has no rows to carry the
	// window count; only then does the count need its own statement.
	if len(ranked) == 0 && q.Offset > 0 {
		countSQL, countArgs := builder.BuildCount()
		if err := s.reader.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "count query failed")
			return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	span.SetAttributes(
		attribute.Int("result_count", len(ranked)),
		attribute.Int("total_count", total),
	)
	span.SetStatus(codes.Ok, "query completed")
	return ranked, total, nil
}

// buildQuery assembles the page builder for one index query. The live
// entity table is joined for the visibility predicate: confidentiality
// and ownership are enforced against authoritative rows, never trusted
// from the snapshot.
func (s *PostgresIndexStore) buildQuery(q IndexQuery) *SelectBuilder {
	builder := NewSelectBuilder(q.EntityType.IndexTable() + " idx").
		Join("JOIN " + q.EntityType.TableName() + " e ON e.id = idx.entity_id").
		Where(q.Visibility)

	for _, facet := range q.Facets {
		builder.Where(facet)
	}

	if q.Text != "" {
		// A query that parses to nothing (stopwords only) degrades to
		// "no text filter" instead of matching nothing.
		builder.Where(NewCond(
			"(numnode(plainto_tsquery('english', ?)) = 0 OR idx.search_vector @@ plainto_tsquery('english', ?))",
			q.Text, q.Text,
		))
		builder.Column("idx.entity_id")
		builder.Column("ts_rank(idx.search_vector, plainto_tsquery('english', ?)) AS rank", q.Text)
		builder.Column("COUNT(*) OVER () AS total_count")
		if q.RankThreshold > 0 {
			builder.Where(NewCond(
				"(numnode(plainto_tsquery('english', ?)) = 0 OR ts_rank(idx.search_vector, plainto_tsquery('english', ?)) >= ?)",
				q.Text, q.Text, q.RankThreshold,
			))
		}
		builder.OrderBy("rank DESC", "idx.entity_id DESC")
	} else {
		builder.Column("idx.entity_id")
		builder.Column("0.0 AS rank")
		builder.Column("COUNT(*) OVER () AS total_count")
		orderBy := q.OrderBy
		if len(orderBy) == 0 {
			orderBy = []string{"idx.created_at DESC"}
		}
		builder.OrderBy(append(orderBy, "idx.entity_id DESC")...)
	}

	builder.Paginate(q.Limit, q.Offset)
	return builder
}

// indexTableDDL renders the snapshot table definition. Both entity
// types share one shape; communications simply carry NULL budgets.
func indexTableDDL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			entity_id BIGINT PRIMARY KEY,
			company_id BIGINT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			objectives TEXT NOT NULL DEFAULT '',
			key_messages TEXT NOT NULL DEFAULT '',
			owner_id BIGINT NOT NULL,
			owner_name TEXT NOT NULL DEFAULT '',
			confidential BOOLEAN NOT NULL DEFAULT FALSE,
			budget_total NUMERIC,
			budget_spent NUMERIC,
			created_at TIMESTAMP NOT NULL,
			tag_ids BIGINT[] NOT NULL DEFAULT '{}',
			tag_names TEXT[] NOT NULL DEFAULT '{}',
			team_member_ids BIGINT[] NOT NULL DEFAULT '{}',
			team_member_names TEXT[] NOT NULL DEFAULT '{}',
			business_area_ids BIGINT[] NOT NULL DEFAULT '{}',
			business_area_names TEXT[] NOT NULL DEFAULT '{}',
			location_ids BIGINT[] NOT NULL DEFAULT '{}',
			location_names TEXT[] NOT NULL DEFAULT '{}',
			audience_ids BIGINT[] NOT NULL DEFAULT '{}',
			audience_names TEXT[] NOT NULL DEFAULT '{}',
			channel_ids BIGINT[] NOT NULL DEFAULT '{}',
			channel_names TEXT[] NOT NULL DEFAULT '{}',
			content_type_ids BIGINT[] NOT NULL DEFAULT '{}',
			content_type_names TEXT[] NOT NULL DEFAULT '{}',
			strategic_priority_ids BIGINT[] NOT NULL DEFAULT '{}',
			strategic_priority_names TEXT[] NOT NULL DEFAULT '{}',
			folder_ids BIGINT[] NOT NULL DEFAULT '{}',
			folder_names TEXT[] NOT NULL DEFAULT '{}',
			search_vector TSVECTOR NOT NULL,
			refreshed_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
	`, table)
}

// indexStatements renders the snapshot's index definitions. Names carry
// a per-rebuild suffix so shadow indexes never collide with live ones.
func indexStatements(table, suffix string) []string {
	ginColumns := []string{
		"search_vector",
		"tag_ids", "team_member_ids", "business_area_ids", "location_ids",
		"audience_ids", "channel_ids", "content_type_ids",
		"strategic_priority_ids", "folder_ids",
	}

	stmts := make([]string, 0, len(ginColumns)+2)
	for _, col := range ginColumns {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX idx_%s_%s_%s ON %s USING GIN (%s)",
			table, col, suffix, table, col,
		))
	}
	stmts = append(stmts,
		fmt.Sprintf("CREATE INDEX idx_%s_company_%s ON %s (company_id)", table, suffix, table),
		fmt.Sprintf("CREATE INDEX idx_%s_owner_%s ON %s (owner_id)", table, suffix, table),
	)
	return stmts
}
