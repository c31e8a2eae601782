package document

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// SortField is one key of a sort specification.
type SortField struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// ParseSort converts a sort specification into ordered sort fields.
//
// Accepted forms:
//   - "name -age" (a leading '-' sorts descending)
//   - map[string]any{"age": -1} with 1/-1 or "asc"/"desc"; keys apply in lexical order
//   - []SortField
//   - ordered lists, which keep the caller's key priority: []any whose
//     entries are single-key maps ({"age": -1}), [field, direction] pairs or
//     "name"/"-age" tokens; []map[string]any of single-key maps
func ParseSort(spec any) ([]SortField, error) {
	switch s := spec.(type) {
	case nil:
		return nil, nil
	case []SortField:
		return slices.Clone(s), nil
	case SortField:
		return []SortField{s}, nil
	case string:
		var fields []SortField
		for _, tok := range strings.Fields(s) {
			f := SortField{Field: tok}
			switch tok[0] {
			case '-':
				f = SortField{Field: tok[1:], Descending: true}
			case '+':
				f = SortField{Field: tok[1:]}
			}
			if f.Field == "" {
				return nil, fmt.Errorf("%w: empty sort field in %q", ErrInvalidDirective, s)
			}
			fields = append(fields, f)
		}
		return fields, nil
	case []map[string]any:
		list := make([]any, len(s))
		for i, m := range s {
			list[i] = m
		}
		return parseSortList(list)
	case []any:
		return parseSortList(s)
	case map[string]int:
		m := make(map[string]any, len(s))
		for k, v := range s {
			m[k] = v
		}
		return parseSortMap(m)
	case Document:
		return parseSortMap(s)
	case map[string]any:
		return parseSortMap(s)
	default:
		return nil, fmt.Errorf("%w: unsupported sort type %T", ErrInvalidDirective, spec)
	}
}

func parseSortMap(m map[string]any) ([]SortField, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make([]SortField, 0, len(keys))
	for _, k := range keys {
		desc, err := parseDirection(m[k])
		if err != nil {
			return nil, fmt.Errorf("%w: sort %q: %v", ErrInvalidDirective, k, err)
		}
		fields = append(fields, SortField{Field: k, Descending: desc})
	}
	return fields, nil
}

func parseSortList(list []any) ([]SortField, error) {
	fields := make([]SortField, 0, len(list))
	for i, entry := range list {
		switch e := entry.(type) {
		case string:
			parsed, err := ParseSort(e)
			if err != nil {
				return nil, err
			}
			if len(parsed) != 1 {
				return nil, fmt.Errorf("%w: sort entry %d must name one field", ErrInvalidDirective, i)
			}
			fields = append(fields, parsed[0])
		case []any:
			var name string
			if len(e) == 2 {
				name, _ = e[0].(string)
			}
			if name == "" {
				return nil, fmt.Errorf("%w: sort entry %d must be a [field, direction] pair", ErrInvalidDirective, i)
			}
			desc, err := parseDirection(e[1])
			if err != nil {
				return nil, fmt.Errorf("%w: sort %q: %v", ErrInvalidDirective, name, err)
			}
			fields = append(fields, SortField{Field: name, Descending: desc})
		default:
			m, ok := From(entry)
			if !ok || len(m) != 1 {
				return nil, fmt.Errorf("%w: sort entry %d must be a single-key document", ErrInvalidDirective, i)
			}
			parsed, err := parseSortMap(m)
			if err != nil {
				return nil, err
			}
			fields = append(fields, parsed[0])
		}
	}
	return fields, nil
}

func parseDirection(v any) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "asc", "ascending":
			return false, nil
		case "desc", "descending":
			return true, nil
		}
	}
	n, err := ToInt64(v)
	if err != nil {
		return false, err
	}
	switch n {
	case 1:
		return false, nil
	case -1:
		return true, nil
	}
	return false, fmt.Errorf("direction must be 1 or -1, got %d", n)
}

// Projection maps field names to inclusion (true) or exclusion (false).
type Projection map[string]bool

// ParseProjection converts a field selection specification.
//
// Accepted forms: "name age", "-secret", []string, map[string]any{"name": 1}.
// Inclusion and exclusion cannot be mixed, except for excluding KeyField.
func ParseProjection(spec any) (Projection, error) {
	p := Projection{}
	switch s := spec.(type) {
	case nil:
		return nil, nil
	case Projection:
		for k, v := range s {
			p[k] = v
		}
	case string:
		for _, tok := range strings.Fields(s) {
			p.addToken(tok)
		}
	case []string:
		for _, tok := range s {
			p.addToken(tok)
		}
	case []any:
		for _, tok := range s {
			str, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("%w: select entry %v is not a string", ErrInvalidDirective, tok)
			}
			p.addToken(str)
		}
	case Document:
		return ParseProjection(map[string]any(s))
	case map[string]any:
		for k, v := range s {
			include, err := truthy(v)
			if err != nil {
				return nil, fmt.Errorf("%w: select %q: %v", ErrInvalidDirective, k, err)
			}
			p[k] = include
		}
	default:
		return nil, fmt.Errorf("%w: unsupported select type %T", ErrInvalidDirective, spec)
	}

	delete(p, "")
	if len(p) == 0 {
		return nil, nil
	}
	if p.inclusive() {
		for k, v := range p {
			if !v && k != KeyField {
				return nil, fmt.Errorf("%w: cannot mix inclusion and exclusion (%q)", ErrInvalidDirective, k)
			}
		}
	}
	return p, nil
}

func (p Projection) addToken(tok string) {
	if strings.HasPrefix(tok, "-") {
		p[tok[1:]] = false
		return
	}
	p[strings.TrimPrefix(tok, "+")] = true
}

func (p Projection) inclusive() bool {
	for _, v := range p {
		if v {
			return true
		}
	}
	return false
}

// Apply returns a copy of d restricted by the projection. The storage
// identifier is kept on inclusive projections unless explicitly excluded.
func (p Projection) Apply(d Document) Document {
	if len(p) == 0 || d == nil {
		return d
	}
	if !p.inclusive() {
		out := d.Clone()
		for k := range p {
			delete(out, k)
		}
		return out
	}

	out := make(Document, len(p)+1)
	for k, include := range p {
		if !include {
			continue
		}
		if v, ok := d[k]; ok {
			out[k] = cloneValue(v)
		}
	}
	if keep, set := p[KeyField]; !set || keep {
		if v, ok := d[KeyField]; ok {
			out[KeyField] = v
		}
	}
	return out
}

func truthy(v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	n, err := ToInt64(v)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

// ToInt64 converts the numeric forms that decoded JSON and YAML produce.
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	return int64(f), nil
}
