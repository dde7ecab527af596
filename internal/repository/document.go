package repository

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// toDocument renders v as a generic JSON document.
func toDocument(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDocument[T any](doc map[string]any) (T, error) {
	var out T
	b, err := json.Marshal(doc)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

// clone deep-copies a record so stored values never alias caller memory.
func clone[T any](v T) (T, error) {
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

// normalize makes filter values comparable with decoded documents,
// e.g. int 3 becomes float64 3 and time.Time becomes its RFC 3339 string.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(b, &out)
	return out, err
}

type matcher map[string]any

func newMatcher(filter Filter) (matcher, error) {
	m := make(matcher, len(filter))
	for k, v := range filter {
		nv, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", k, err)
		}
		m[k] = nv
	}
	return m, nil
}

func (m matcher) match(rec any) (bool, error) {
	if len(m) == 0 {
		return true, nil
	}
	doc, err := toDocument(rec)
	if err != nil {
		return false, err
	}
	for k, want := range m {
		if !reflect.DeepEqual(doc[k], want) {
			return false, nil
		}
	}
	return true, nil
}

// merge applies fields onto rec. The id field is immutable and ignored.
func merge[T Record](rec T, fields Fields) (T, error) {
	doc, err := toDocument(rec)
	if err != nil {
		return rec, err
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		nv, err := normalize(v)
		if err != nil {
			return rec, fmt.Errorf("field %s: %w", k, err)
		}
		doc[k] = nv
	}
	out, err := fromDocument[T](doc)
	if err != nil {
		return rec, fmt.Errorf("merge fields: %w", err)
	}
	return out, nil
}

func applyOptions[T Record](recs []T, opts FindOptions) []T {
	if opts.SortByCreatedDesc {
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].CreatedTime().After(recs[j].CreatedTime())
		})
	}
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs
}
