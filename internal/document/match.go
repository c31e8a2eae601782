package document

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Match reports whether d satisfies every condition. It implements the
// subset of document-store semantics the in-process backends need:
// equality (including membership in arrays), $eq, $ne, $gt, $gte, $lt,
// $lte, $in, $nin, $exists, and top-level $and / $or. Dotted keys address
// nested documents.
func Match(d Document, conditions map[string]any) (bool, error) {
	for key, cond := range conditions {
		ok, err := matchKey(d, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(d Document, key string, cond any) (bool, error) {
	switch key {
	case "$and", "$or":
		clauses, err := clauseList(key, cond)
		if err != nil {
			return false, err
		}
		for _, c := range clauses {
			ok, err := Match(d, c)
			if err != nil {
				return false, err
			}
			if key == "$or" && ok {
				return true, nil
			}
			if key == "$and" && !ok {
				return false, nil
			}
		}
		return key == "$and", nil
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("%w: unknown top-level operator %q", ErrInvalidCondition, key)
	}

	value, present := Lookup(d, key)
	if ops, ok := operatorMap(cond); ok {
		for op, operand := range ops {
			ok, err := matchOperator(op, value, present, operand)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return matchEqual(value, cond), nil
}

func clauseList(key string, cond any) ([]map[string]any, error) {
	var raw []any
	switch c := cond.(type) {
	case []any:
		raw = c
	case []map[string]any:
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %s requires an array", ErrInvalidCondition, key)
	}
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		m, ok := From(r)
		if !ok {
			return nil, fmt.Errorf("%w: %s entries must be documents", ErrInvalidCondition, key)
		}
		out = append(out, m)
	}
	return out, nil
}

// operatorMap returns cond as an operator document when every key is an operator.
func operatorMap(cond any) (map[string]any, bool) {
	m, ok := From(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOperator(op string, value any, present bool, operand any) (bool, error) {
	switch op {
	case "$eq":
		return matchEqual(value, operand), nil
	case "$ne":
		return !matchEqual(value, operand), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		c, ok := compare(value, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "$in", "$nin":
		list, ok := operand.([]any)
		if !ok {
			return false, fmt.Errorf("%w: %s requires an array", ErrInvalidCondition, op)
		}
		found := slices.ContainsFunc(list, func(e any) bool { return matchEqual(value, e) })
		return found == (op == "$in"), nil
	case "$exists":
		want, err := truthy(operand)
		if err != nil {
			return false, fmt.Errorf("%w: $exists: %v", ErrInvalidCondition, err)
		}
		return present == want, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, op)
	}
}

// matchEqual treats arrays as matching when any element equals cond.
func matchEqual(value, cond any) bool {
	if equal(value, cond) {
		return true
	}
	if arr, ok := value.([]any); ok {
		return slices.ContainsFunc(arr, func(e any) bool { return equal(e, cond) })
	}
	return false
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ha, ok := a.(interface{ Hex() string }); ok {
		return ha.Hex() == IDString(b)
	}
	if hb, ok := b.(interface{ Hex() string }); ok {
		return hb.Hex() == IDString(a)
	}
	return reflect.DeepEqual(a, b)
}

// Lookup returns the value at a dotted path.
func Lookup(d Document, path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, part := range strings.Split(path, ".") {
		m, ok := From(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// compare orders two values of the same kind.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		return cmp.Compare(fa, fb), true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return strings.Compare(x, y), ok
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		return boolRank(x) - boolRank(y), true
	case time.Time:
		y, ok := b.(time.Time)
		return x.Compare(y), ok
	}
	return 0, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// typeRank gives a total order across kinds: missing/null first, then
// numbers, strings, documents, arrays, booleans, times.
func typeRank(v any) int {
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 2
	case Document, map[string]any:
		return 3
	case []any:
		return 4
	case bool:
		return 5
	case time.Time:
		return 6
	default:
		return 7
	}
}

func sortCompare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	if c, ok := compare(a, b); ok {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Apply filters, sorts, pages and projects docs in memory. The input slice
// is not modified; returned documents are copies.
func Apply(docs []Document, conditions map[string]any, opts FindOptions) ([]Document, error) {
	matched := make([]Document, 0, len(docs))
	for _, d := range docs {
		ok, err := Match(d, conditions)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, d)
		}
	}

	if len(opts.Sort) > 0 {
		slices.SortStableFunc(matched, func(x, y Document) int {
			for _, f := range opts.Sort {
				xv, _ := Lookup(x, f.Field)
				yv, _ := Lookup(y, f.Field)
				c := sortCompare(xv, yv)
				if f.Descending {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}

	if opts.Skip > 0 {
		if opts.Skip >= int64(len(matched)) {
			matched = matched[:0]
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < int64(len(matched)) {
		matched = matched[:opts.Limit]
	}

	out := make([]Document, len(matched))
	for i, d := range matched {
		if len(opts.Projection) > 0 {
			out[i] = opts.Projection.Apply(d)
		} else {
			out[i] = d.Clone()
		}
	}
	return out, nil
}
