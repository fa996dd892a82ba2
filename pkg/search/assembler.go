package search

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plannerhq/plansearch/pkg/observability"
	"github.com/plannerhq/plansearch/pkg/planning"
)

var assemblerTracer = otel.Tracer("plansearch/search/assembler")

// Assembler hydrates a ranked page of entity ids into full
// projections, preserving the order the query established. Display
// strings come from the index snapshot's name arrays; budget fields
// are blanked per requester when the hide_budget flag is set.
type Assembler struct {
	reader *sql.DB
	cache  *ProjectionCache // may be nil
	logger *observability.Logger
}

// NewAssembler creates a result assembler
func NewAssembler(reader *sql.DB, cache *ProjectionCache, logger *observability.Logger) *Assembler {
	return &Assembler{reader: reader, cache: cache, logger: logger}
}

// Assemble fetches projections for the ranked ids in order. Ids whose
// snapshot row disappeared between the page query and hydration are
// skipped rather than failing the page.
func (a *Assembler) Assemble(ctx context.Context, entityType planning.EntityType, ranked []RankedID, identity planning.Identity) ([]planning.EntityProjection, error) {
	ctx, span := assemblerTracer.Start(ctx, "Assemble",
		trace.WithAttributes(
			attribute.String("entity_type", string(entityType)),
			attribute.Int("id_count", len(ranked)),
		),
	)
	defer span.End()

	if len(ranked) == 0 {
		return []planning.EntityProjection{}, nil
	}

	byID := make(map[int64]*planning.EntityProjection, len(ranked))
	missing := make([]int64, 0, len(ranked))

	for _, r := range ranked {
		if a.cache != nil {
			if proj, ok := a.cache.Get(ctx, entityType, r.EntityID); ok {
				byID[r.EntityID] = proj
				continue
			}
		}
		missing = append(missing, r.EntityID)
	}

	if len(missing) > 0 {
		fetched, err := a.fetch(ctx, entityType, missing)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "hydration failed")
			return nil, err
		}
		for id, proj := range fetched {
			byID[id] = proj
			if a.cache != nil {
				a.cache.Set(ctx, proj)
			}
		}
	}

	// Reassemble in ranked order; hydration must not re-sort the page
	items := make([]planning.EntityProjection, 0, len(ranked))
	for _, r := range ranked {
		proj, ok := byID[r.EntityID]
		if !ok {
			continue
		}
		item := *proj
		item.Rank = r.Rank
		if identity.HideBudget {
			item.BudgetTotal = nil
			item.BudgetSpent = nil
		}
		items = append(items, item)
	}

	span.SetAttributes(attribute.Int("assembled_count", len(items)))
	span.SetStatus(codes.Ok, "assembly completed")
	return items, nil
}

func (a *Assembler) fetch(ctx context.Context, entityType planning.EntityType, ids []int64) (map[int64]*planning.EntityProjection, error) {
	query := fmt.Sprintf(`
		SELECT
			entity_id, company_id, title, description, objectives, key_messages,
			owner_id, owner_name, confidential, budget_total, budget_spent, created_at,
			array_to_string(tag_names, ', '),
			array_to_string(team_member_names, ', '),
			array_to_string(business_area_names, ', '),
			array_to_string(location_names, ', '),
			array_to_string(audience_names, ', '),
			array_to_string(channel_names, ', '),
			array_to_string(content_type_names, ', '),
			array_to_string(strategic_priority_names, ', '),
			array_to_string(folder_names, ', ')
		FROM %s
		WHERE entity_id = ANY($1)
	`, entityType.IndexTable())

	rows, err := a.reader.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	fetched := make(map[int64]*planning.EntityProjection, len(ids))
	for rows.Next() {
		proj := planning.EntityProjection{Kind: entityType}
		var budgetTotal, budgetSpent sql.NullFloat64

		err := rows.Scan(
			&proj.ID, &proj.CompanyID, &proj.Title, &proj.Description, &proj.Objectives, &proj.KeyMessages,
			&proj.OwnerID, &proj.OwnerName, &proj.Confidential, &budgetTotal, &budgetSpent, &proj.CreatedAt,
			&proj.TagNames,
			&proj.TeamMemberNames,
			&proj.BusinessAreaNames,
			&proj.LocationNames,
			&proj.AudienceNames,
			&proj.ChannelNames,
			&proj.ContentTypeNames,
			&proj.StrategicPriorityNames,
			&proj.FolderNames,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if budgetTotal.Valid {
			proj.BudgetTotal = &budgetTotal.Float64
		}
		if budgetSpent.Valid {
			proj.BudgetSpent = &budgetSpent.Float64
		}

		fetched[proj.ID] = &proj
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return fetched, nil
}
