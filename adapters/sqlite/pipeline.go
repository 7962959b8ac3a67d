package sqlite

import (
	"fmt"
	"strings"

	"github.com/artpar/docmodel/core/storage"
)

// compile turns a pipeline into nested SELECTs. Every level yields
// (doc, ord); ord carries the current order so ordering survives the
// subqueries. Placeholders are bound in textual order, so arguments for an
// outer level that appear before the inner query are prepended.
func compile(table string, p storage.Pipeline) (string, []any, error) {
	query := fmt.Sprintf("SELECT doc, seq AS ord FROM %s", table)
	var args []any

	for _, s := range p {
		switch s.Kind {
		case storage.StageMatch:
			where, wargs, err := whereClause(s.Filter)
			if err != nil {
				return "", nil, err
			}
			query = fmt.Sprintf("SELECT doc, ord FROM (%s)%s", query, where)
			args = append(args, wargs...)

		case storage.StageSort:
			expr, err := extract(s.Field)
			if err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if s.Desc {
				dir = "DESC"
			}
			query = fmt.Sprintf(
				"SELECT doc, ROW_NUMBER() OVER (ORDER BY %s %s, ord) AS ord FROM (%s)",
				expr, dir, query,
			)

		case storage.StageSkip:
			query = fmt.Sprintf("SELECT doc, ord FROM (%s) ORDER BY ord LIMIT -1 OFFSET %d", query, s.N)

		case storage.StageLimit:
			query = fmt.Sprintf("SELECT doc, ord FROM (%s) ORDER BY ord LIMIT %d", query, s.N)

		case storage.StageProject:
			placeholders := make([]string, len(s.Fields))
			fargs := make([]any, len(s.Fields))
			for i, f := range s.Fields {
				if _, err := extract(f); err != nil {
					return "", nil, err
				}
				placeholders[i] = "?"
				fargs[i] = f
			}
			// json() keeps booleans and nested values as JSON instead of
			// the SQL values json_each reports for them.
			query = fmt.Sprintf(
				"SELECT (SELECT json_group_object(key, json(doc -> fullkey)) FROM json_each(doc) WHERE key IN (%s)) AS doc, ord FROM (%s)",
				strings.Join(placeholders, ", "), query,
			)
			args = append(fargs, args...)

		case storage.StageCount:
			query = fmt.Sprintf("SELECT json_object(?, COUNT(*)) AS doc, 0 AS ord FROM (%s)", query)
			args = append([]any{s.Field}, args...)

		default:
			return "", nil, fmt.Errorf("unsupported stage %s", s.Kind)
		}
	}

	return fmt.Sprintf("SELECT doc FROM (%s) ORDER BY ord", query), args, nil
}
