package models

import (
	"encoding/json"
	"strconv"
)

// Known attribute keys. Everything else in a bag is carried but never interpreted.
const (
	AttrName       = "name"
	AttrAliases    = "aliases"
	AttrStatus     = "status"
	AttrMergedInto = "merged_into"
	AttrAmount     = "amount"
	AttrCurrency   = "currency"
	AttrDate       = "date"
)

// Attributes is the schema-less bag attached to nodes and edges.
type Attributes map[string]any

func (a Attributes) String(key string) string {
	if a == nil {
		return ""
	}
	switch v := a[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Float reads a numeric attribute, accepting the shapes json and callers produce.
func (a Attributes) Float(key string) float64 {
	if a == nil {
		return 0
	}
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func (a Attributes) Name() string {
	return a.String(AttrName)
}

// Aliases returns the ordered alias set.
func (a Attributes) Aliases() []string {
	if a == nil {
		return nil
	}
	switch v := a[AttrAliases].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// AddAliases appends names not already present, preserving order.
func (a Attributes) AddAliases(names ...string) {
	existing := a.Aliases()
	seen := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		seen[name] = struct{}{}
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		existing = append(existing, name)
	}
	a[AttrAliases] = existing
}

func (a Attributes) Status() NodeStatus {
	s := a.String(AttrStatus)
	if s == "" {
		return NodeStatusActive
	}
	return NodeStatus(s)
}

func (a Attributes) MergedInto() string {
	return a.String(AttrMergedInto)
}

func (a Attributes) Amount() float64 {
	return a.Float(AttrAmount)
}

func (a Attributes) Date() string {
	return a.String(AttrDate)
}

// Clone copies the bag. Alias slices are copied, other nested values are shared.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	if _, ok := a[AttrAliases]; ok {
		out[AttrAliases] = a.Aliases()
	}
	return out
}
