package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plannerhq/plansearch/pkg/planning"
)

var projectorTracer = otel.Tracer("plansearch/search/projector")

// relationSource describes one many-to-many relation whose ids and
// names are aggregated into the document. Join tables follow the
// <entity>_<relation> convention (plan_tags, communication_channels).
type relationSource struct {
	joinSuffix string // join table suffix, e.g. "tags"
	refTable   string // referenced table holding the names
	refColumn  string // FK column in the join table
	nameColumn string // name column in the referenced table
}

var relationSources = []relationSource{
	{joinSuffix: "tags", refTable: "tags", refColumn: "tag_id", nameColumn: "name"},
	{joinSuffix: "team_members", refTable: "users", refColumn: "user_id", nameColumn: "name"},
	{joinSuffix: "business_areas", refTable: "business_areas", refColumn: "business_area_id", nameColumn: "name"},
	{joinSuffix: "locations", refTable: "locations", refColumn: "location_id", nameColumn: "name"},
	{joinSuffix: "audiences", refTable: "audiences", refColumn: "audience_id", nameColumn: "name"},
	{joinSuffix: "channels", refTable: "channels", refColumn: "channel_id", nameColumn: "name"},
	{joinSuffix: "content_types", refTable: "content_types", refColumn: "content_type_id", nameColumn: "name"},
	{joinSuffix: "strategic_priorities", refTable: "strategic_priorities", refColumn: "strategic_priority_id", nameColumn: "name"},
}

// Projector derives IndexDocuments from the authoritative entity and
// relation tables. It is a pure read: two calls with no intervening
// mutation produce identical documents, and it carries no cache of its
// own.
type Projector struct {
	db *sql.DB
}

// NewProjector creates a projector reading from the given database
func NewProjector(db *sql.DB) *Projector {
	return &Projector{db: db}
}

// ProjectAll produces one document per live (non-soft-deleted) entity
// of the given type.
func (p *Projector) ProjectAll(ctx context.Context, entityType planning.EntityType) ([]IndexDocument, error) {
	ctx, span := projectorTracer.Start(ctx, "ProjectAll",
		trace.WithAttributes(attribute.String("entity_type", string(entityType))),
	)
	defer span.End()

	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}

	query := buildProjectionQuery(entityType, false)
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "projection query failed")
		return nil, fmt.Errorf("failed to project %s entities: %w", entityType, err)
	}
	defer rows.Close()

	docs := make([]IndexDocument, 0, 256)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "projection scan failed")
			return nil, fmt.Errorf("failed to scan %s projection: %w", entityType, err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "projection iteration failed")
		return nil, fmt.Errorf("error iterating %s projections: %w", entityType, err)
	}

	span.SetAttributes(attribute.Int("document_count", len(docs)))
	span.SetStatus(codes.Ok, "projection completed")
	return docs, nil
}

// Project produces the document for a single entity. Returns (nil, nil)
// when the entity does not exist or is soft-deleted.
func (p *Projector) Project(ctx context.Context, entityType planning.EntityType, entityID int64) (*IndexDocument, error) {
	ctx, span := projectorTracer.Start(ctx, "Project",
		trace.WithAttributes(
			attribute.String("entity_type", string(entityType)),
			attribute.Int64("entity_id", entityID),
		),
	)
	defer span.End()

	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}

	query := buildProjectionQuery(entityType, true)
	rows, err := p.db.QueryContext(ctx, query, entityID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "projection query failed")
		return nil, fmt.Errorf("failed to project %s %d: %w", entityType, entityID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to project %s %d: %w", entityType, entityID, err)
		}
		// Document absent: entity missing or soft-deleted
		return nil, nil
	}

	doc, err := scanDocument(rows)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan %s %d projection: %w", entityType, entityID, err)
	}

	span.SetStatus(codes.Ok, "projection completed")
	return doc, nil
}

// buildProjectionQuery renders the projection SELECT for one entity
// type. Relation ids and names are aggregated through correlated
// array_agg subselects; the folder chain (own folder plus its parent)
// comes from two LEFT JOINs.
func buildProjectionQuery(entityType planning.EntityType, single bool) string {
	prefix := entityType.JoinPrefix()
	fk := prefix + "_id"

	var sb strings.Builder
	sb.WriteString(`SELECT
		e.id,
		e.company_id,
		e.title,
		COALESCE(e.description, ''),
		COALESCE(e.objectives, ''),
		COALESCE(e.key_messages, ''),
		e.owner_id,
		COALESCE(owner.name, ''),
		e.confidential,
`)

	if entityType.HasBudget() {
		sb.WriteString("\t\te.budget_total,\n\t\te.budget_spent,\n")
	} else {
		sb.WriteString("\t\tNULL::NUMERIC,\n\t\tNULL::NUMERIC,\n")
	}

	sb.WriteString("\t\te.created_at,\n\t\tf.id, f.name, pf.id, pf.name")

	for _, rel := range relationSources {
		joinTable := prefix + "_" + rel.joinSuffix
		fmt.Fprintf(&sb, `,
		COALESCE((SELECT array_agg(r.id ORDER BY r.id) FROM %s j JOIN %s r ON r.id = j.%s WHERE j.%s = e.id), '{}'),
		COALESCE((SELECT array_agg(r.%s ORDER BY r.id) FROM %s j JOIN %s r ON r.id = j.%s WHERE j.%s = e.id), '{}')`,
			joinTable, rel.refTable, rel.refColumn, fk,
			rel.nameColumn, joinTable, rel.refTable, rel.refColumn, fk,
		)
	}

	fmt.Fprintf(&sb, `
	FROM %s e
	LEFT JOIN users owner ON owner.id = e.owner_id
	LEFT JOIN folders f ON f.id = e.folder_id
	LEFT JOIN folders pf ON pf.id = f.parent_id
	WHERE e.deleted_at IS NULL`, entityType.TableName())

	if single {
		sb.WriteString(" AND e.id = $1")
	} else {
		sb.WriteString("\n\tORDER BY e.id")
	}

	return sb.String()
}

// scanner is satisfied by *sql.Rows and *sql.Row
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*IndexDocument, error) {
	var doc IndexDocument
	var folderID, parentFolderID sql.NullInt64
	var folderName, parentFolderName sql.NullString
	var budgetTotal, budgetSpent sql.NullFloat64

	var (
		tagIDs, teamIDs, areaIDs, locationIDs, audienceIDs, channelIDs, contentTypeIDs, priorityIDs       pq.Int64Array
		tagNames, teamNames, areaNames, locationNames, audienceNames, channelNames, ctNames, priorityNames pq.StringArray
	)

	err := row.Scan(
		&doc.EntityID,
		&doc.CompanyID,
		&doc.Title,
		&doc.Description,
		&doc.Objectives,
		&doc.KeyMessages,
		&doc.OwnerID,
		&doc.OwnerName,
		&doc.Confidential,
		&budgetTotal,
		&budgetSpent,
		&doc.CreatedAt,
		&folderID, &folderName, &parentFolderID, &parentFolderName,
		&tagIDs, &tagNames,
		&teamIDs, &teamNames,
		&areaIDs, &areaNames,
		&locationIDs, &locationNames,
		&audienceIDs, &audienceNames,
		&channelIDs, &channelNames,
		&contentTypeIDs, &ctNames,
		&priorityIDs, &priorityNames,
	)
	if err != nil {
		return nil, err
	}

	if budgetTotal.Valid {
		doc.BudgetTotal = &budgetTotal.Float64
	}
	if budgetSpent.Valid {
		doc.BudgetSpent = &budgetSpent.Float64
	}

	doc.TagIDs = dedupInt64([]int64(tagIDs))
	doc.TagNames = dedupStrings([]string(tagNames))
	doc.TeamMemberIDs = dedupInt64([]int64(teamIDs))
	doc.TeamMemberNames = dedupStrings([]string(teamNames))
	doc.BusinessAreaIDs = dedupInt64([]int64(areaIDs))
	doc.BusinessAreaNames = dedupStrings([]string(areaNames))
	doc.LocationIDs = dedupInt64([]int64(locationIDs))
	doc.LocationNames = dedupStrings([]string(locationNames))
	doc.AudienceIDs = dedupInt64([]int64(audienceIDs))
	doc.AudienceNames = dedupStrings([]string(audienceNames))
	doc.ChannelIDs = dedupInt64([]int64(channelIDs))
	doc.ChannelNames = dedupStrings([]string(channelNames))
	doc.ContentTypeIDs = dedupInt64([]int64(contentTypeIDs))
	doc.ContentTypeNames = dedupStrings([]string(ctNames))
	doc.StrategicPriorityIDs = dedupInt64([]int64(priorityIDs))
	doc.StrategicPriorityNames = dedupStrings([]string(priorityNames))

	// Folder chain: the entity's own folder plus its parent, deduped
	if folderID.Valid {
		doc.FolderIDs = append(doc.FolderIDs, folderID.Int64)
		doc.FolderNames = append(doc.FolderNames, folderName.String)
	}
	if parentFolderID.Valid {
		doc.FolderIDs = append(doc.FolderIDs, parentFolderID.Int64)
		doc.FolderNames = append(doc.FolderNames, parentFolderName.String)
	}
	doc.FolderIDs = dedupInt64(doc.FolderIDs)
	doc.FolderNames = dedupStrings(doc.FolderNames)

	return &doc, nil
}
