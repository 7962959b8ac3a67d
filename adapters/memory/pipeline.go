package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
)

func apply(stage storage.Stage, docs []schema.Document) []schema.Document {
	switch stage.Kind {
	case storage.StageMatch:
		out := docs[:0]
		for _, doc := range docs {
			if matches(doc, stage.Filter) {
				out = append(out, doc)
			}
		}
		return out

	case storage.StageSort:
		sort.SliceStable(docs, func(i, j int) bool {
			c := compare(docs[i][stage.Field], docs[j][stage.Field])
			if stage.Desc {
				return c > 0
			}
			return c < 0
		})
		return docs

	case storage.StageSkip:
		if stage.N >= len(docs) {
			return nil
		}
		return docs[stage.N:]

	case storage.StageLimit:
		if stage.N < len(docs) {
			return docs[:stage.N]
		}
		return docs

	case storage.StageProject:
		out := make([]schema.Document, len(docs))
		for i, doc := range docs {
			p := make(schema.Document, len(stage.Fields))
			for _, f := range stage.Fields {
				if v, ok := doc[f]; ok {
					p[f] = v
				}
			}
			out[i] = p
		}
		return out

	case storage.StageCount:
		return []schema.Document{{stage.Field: int64(len(docs))}}
	}
	return docs
}

// rank orders value classes the way SQLite orders json_extract results:
// NULL, then numbers (booleans count as 0 and 1), then text.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	default:
		if _, ok := schema.ToFloat64(v); ok {
			return 1
		}
		return 2
	}
}

func number(v any) float64 {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	f, _ := schema.ToFloat64(v)
	return f
}

func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}

	switch ra {
	case 0:
		return 0
	case 1:
		na, nb := number(a), number(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	default:
		return strings.Compare(text(a), text(b))
	}
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
