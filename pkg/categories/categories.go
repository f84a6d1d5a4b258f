// Package categories decodes the category trees retailer APIs return. The same endpoint answers with a
// bare id, a numeric string, an object carrying the id under one of several names, or a list of those,
// possibly wrapped in an object. Everything is resolved here into plain ids.
package categories

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type ID int64

// Ref is one entry of a category listing. Valid is false for entries without a usable id; those are
// skipped rather than failing the whole listing.
type Ref struct {
	ID    ID
	Name  string
	Valid bool
}

var idFields = []string{"id", "categoryId", "taxonomyId"}

var wrapperFields = []string{"categories", "subCategories", "children"}

func (r *Ref) UnmarshalJSON(data []byte) error {
	*r = Ref{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("category ref: %w", err)
		}
		for _, field := range idFields {
			raw, ok := obj[field]
			if !ok {
				continue
			}
			if id, ok := scalarID(raw); ok {
				r.ID, r.Valid = id, true
				break
			}
		}
		if name, ok := obj["name"]; ok {
			_ = json.Unmarshal(name, &r.Name)
		}
		return nil
	default:
		r.ID, r.Valid = scalarID(data)
		return nil
	}
}

// scalarID accepts a JSON integer or a string of digits.
func scalarID(raw json.RawMessage) (ID, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return ID(v), true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
			return ID(v), true
		}
	}
	return 0, false
}

// List is a category listing in any of the observed shapes.
type List []Ref

func (l *List) UnmarshalJSON(data []byte) error {
	*l = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '[':
		var refs []Ref
		if err := json.Unmarshal(data, &refs); err != nil {
			return fmt.Errorf("category list: %w", err)
		}
		*l = refs
		return nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("category list: %w", err)
		}
		for _, field := range wrapperFields {
			raw, ok := obj[field]
			if !ok || len(bytes.TrimSpace(raw)) == 0 || bytes.TrimSpace(raw)[0] != '[' {
				continue
			}
			return l.UnmarshalJSON(raw)
		}
		return nil
	default:
		return fmt.Errorf("category list: unexpected %q", string(data[:1]))
	}
}

// IDs returns the valid ids in listing order without duplicates.
func (l List) IDs() []ID {
	seen := make(map[ID]bool, len(l))
	ids := make([]ID, 0, len(l))
	for _, r := range l {
		if !r.Valid || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		ids = append(ids, r.ID)
	}
	return ids
}
