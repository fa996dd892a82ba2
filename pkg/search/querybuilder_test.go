package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondCombine(t *testing.T) {
	a := NewCond("x = ?", 1)
	b := NewCond("y = ?", 2)

	combined := And(a, b)
	assert.Equal(t, "(x = ?) AND (y = ?)", combined.expr)
	assert.Equal(t, []interface{}{1, 2}, combined.args)

	either := Or(a, b)
	assert.Equal(t, "(x = ?) OR (y = ?)", either.expr)
}

func TestCondCombineSkipsEmpty(t *testing.T) {
	a := NewCond("x = ?", 1)

	combined := And(a, Cond{})
	assert.Equal(t, "x = ?", combined.expr)
	assert.Equal(t, []interface{}{1}, combined.args)

	assert.True(t, And().Empty())
	assert.True(t, Or(Cond{}, Cond{}).Empty())
}

func TestCondNesting(t *testing.T) {
	inner := Or(NewCond("a = ?", 1), NewCond("b = ?", 2))
	outer := And(NewCond("tenant = ?", 9), inner)

	assert.Equal(t, "(tenant = ?) AND ((a = ?) OR (b = ?))", outer.expr)
	assert.Equal(t, []interface{}{9, 1, 2}, outer.args)
}

func TestSelectBuilderBuild(t *testing.T) {
	builder := NewSelectBuilder("plan_search_index idx").
		Column("idx.entity_id").
		Column("ts_rank(idx.search_vector, plainto_tsquery('english', ?)) AS rank", "launch").
		Join("JOIN plans e ON e.id = idx.entity_id").
		Where(NewCond("e.company_id = ?", int64(7))).
		Where(NewCond("idx.tag_ids && ?", "{1,2}")).
		OrderBy("rank DESC", "idx.entity_id DESC").
		Paginate(50, 100)

	query, args := builder.Build()

	assert.Equal(t,
		"SELECT idx.entity_id, ts_rank(idx.search_vector, plainto_tsquery('english', $1)) AS rank "+
			"FROM plan_search_index idx JOIN plans e ON e.id = idx.entity_id "+
			"WHERE (e.company_id = $2) AND (idx.tag_ids && $3) "+
			"ORDER BY rank DESC, idx.entity_id DESC LIMIT $4 OFFSET $5",
		query,
	)
	assert.Equal(t, []interface{}{"launch", int64(7), "{1,2}", 50, 100}, args)
}

func TestSelectBuilderBuildCount(t *testing.T) {
	builder := NewSelectBuilder("plan_search_index idx").
		Column("idx.entity_id").
		Column("ts_rank(idx.search_vector, plainto_tsquery('english', ?)) AS rank", "launch").
		Join("JOIN plans e ON e.id = idx.entity_id").
		Where(NewCond("e.company_id = ?", int64(7))).
		OrderBy("rank DESC").
		Paginate(50, 0)

	query, args := builder.BuildCount()

	// Count shares the predicate but drops the select list, ordering
	// and pagination; placeholder numbering restarts.
	assert.Equal(t,
		"SELECT COUNT(*) FROM plan_search_index idx JOIN plans e ON e.id = idx.entity_id WHERE e.company_id = $1",
		query,
	)
	assert.Equal(t, []interface{}{int64(7)}, args)
}

func TestSelectBuilderFalseCond(t *testing.T) {
	builder := NewSelectBuilder("plan_search_index idx").
		Column("idx.entity_id").
		Where(FalseCond()).
		Paginate(10, 0)

	query, _ := builder.Build()
	assert.Contains(t, query, "1 = 0")
}

func TestRenderFragmentMismatchPanics(t *testing.T) {
	builder := NewSelectBuilder("t").
		Column("a = ?"). // placeholder without argument
		Paginate(1, 0)

	require.Panics(t, func() { builder.Build() })
}
