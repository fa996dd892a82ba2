package search

import (
	"fmt"
	"strings"
)

// Cond is a parameterized SQL condition fragment. Placeholders are
// written as '?' and renumbered to $N positional parameters when the
// enclosing query is rendered, so fragments compose without the caller
// tracking argument indexes. Caller-controlled values only ever travel
// through args, never through expr.
type Cond struct {
	expr string
	args []interface{}
}

// NewCond creates a condition from an expression with '?' placeholders
// and the arguments that bind them.
func NewCond(expr string, args ...interface{}) Cond {
	return Cond{expr: expr, args: args}
}

// FalseCond is a condition that matches no rows. Used to short-circuit
// empty-but-present facet arrays to zero results.
func FalseCond() Cond {
	return Cond{expr: "1 = 0"}
}

// Empty reports whether the condition carries no expression
func (c Cond) Empty() bool {
	return c.expr == ""
}

// And combines conditions with AND, skipping empty ones
func And(conds ...Cond) Cond {
	return combine("AND", conds)
}

// Or combines conditions with OR, skipping empty ones
func Or(conds ...Cond) Cond {
	return combine("OR", conds)
}

func combine(op string, conds []Cond) Cond {
	parts := make([]string, 0, len(conds))
	var args []interface{}
	for _, c := range conds {
		if c.Empty() {
			continue
		}
		parts = append(parts, "("+c.expr+")")
		args = append(args, c.args...)
	}
	if len(parts) == 0 {
		return Cond{}
	}
	if len(parts) == 1 {
		return Cond{expr: strings.Trim(parts[0], "()"), args: args}
	}
	return Cond{expr: strings.Join(parts, " "+op+" "), args: args}
}

// SelectBuilder assembles a bounded SELECT over the index store. It
// renders both the page query and the matching COUNT query from the
// same condition set so total counts can never drift from the page
// predicate.
type SelectBuilder struct {
	columns []Cond
	from    string
	joins   []Cond
	where   []Cond
	orderBy []string
	limit   int
	offset  int
}

// NewSelectBuilder creates a builder over the given FROM clause
func NewSelectBuilder(from string) *SelectBuilder {
	return &SelectBuilder{from: from, limit: -1, offset: -1}
}

// Column adds a select-list expression; it may carry '?' placeholders
func (b *SelectBuilder) Column(expr string, args ...interface{}) *SelectBuilder {
	b.columns = append(b.columns, NewCond(expr, args...))
	return b
}

// Join adds a join clause; it may carry '?' placeholders
func (b *SelectBuilder) Join(clause string, args ...interface{}) *SelectBuilder {
	b.joins = append(b.joins, NewCond(clause, args...))
	return b
}

// Where adds a condition; all conditions are combined with AND
func (b *SelectBuilder) Where(c Cond) *SelectBuilder {
	if !c.Empty() {
		b.where = append(b.where, c)
	}
	return b
}

// OrderBy sets the ORDER BY expressions. Expressions are builder-owned
// whitelisted columns, never caller text.
func (b *SelectBuilder) OrderBy(exprs ...string) *SelectBuilder {
	b.orderBy = exprs
	return b
}

// Paginate sets LIMIT and OFFSET
func (b *SelectBuilder) Paginate(limit, offset int) *SelectBuilder {
	b.limit = limit
	b.offset = offset
	return b
}

// Build renders the page query with numbered placeholders
func (b *SelectBuilder) Build() (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}
	next := 1

	sb.WriteString("SELECT ")
	for i, col := range b.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		next = renderFragment(&sb, col, &args, next)
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)
	next = b.renderJoinsAndWhere(&sb, &args, next)

	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}

	if b.limit >= 0 {
		args = append(args, b.limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", next))
		next++
	}
	if b.offset >= 0 {
		args = append(args, b.offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", next))
	}

	return sb.String(), args
}

// BuildCount renders a COUNT(*) query over the same joins and
// conditions, without ordering or pagination.
func (b *SelectBuilder) BuildCount() (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(b.from)
	b.renderJoinsAndWhere(&sb, &args, 1)

	return sb.String(), args
}

func (b *SelectBuilder) renderJoinsAndWhere(sb *strings.Builder, args *[]interface{}, next int) int {
	for _, join := range b.joins {
		sb.WriteString(" ")
		next = renderFragment(sb, join, args, next)
	}
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		next = renderFragment(sb, And(b.where...), args, next)
	}
	return next
}

// renderFragment writes the fragment's expression with '?' placeholders
// rewritten to $N, appending its arguments. Returns the next parameter
// index.
func renderFragment(sb *strings.Builder, c Cond, args *[]interface{}, next int) int {
	placeholders := strings.Count(c.expr, "?")
	if placeholders != len(c.args) {
		// A mismatched fragment is a programming error; render it
		// unbindable rather than shifting later parameters.
		panic(fmt.Sprintf("condition %q has %d placeholders but %d args", c.expr, placeholders, len(c.args)))
	}

	for _, ch := range c.expr {
		if ch == '?' {
			fmt.Fprintf(sb, "$%d", next)
			next++
			continue
		}
		sb.WriteRune(ch)
	}
	*args = append(*args, c.args...)
	return next
}
