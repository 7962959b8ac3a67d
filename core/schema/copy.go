package schema

import "reflect"

// DeepCopy returns a copy of a document value that shares no maps or
// slices with v. Scalars and pointers are returned unchanged.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Document:
		return Document(copyMap(t))
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = DeepCopy(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			setCopy(out.Index(i), rv.Index(i))
		}
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			elem := reflect.New(rv.Type().Elem()).Elem()
			setCopy(elem, iter.Value())
			out.SetMapIndex(iter.Key(), elem)
		}
		return out.Interface()
	default:
		return v
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, e := range m {
		out[k] = DeepCopy(e)
	}
	return out
}

func setCopy(dst, src reflect.Value) {
	if src.Kind() == reflect.Interface && src.IsNil() {
		return
	}
	c := DeepCopy(src.Interface())
	if c == nil {
		return
	}
	dst.Set(reflect.ValueOf(c))
}
