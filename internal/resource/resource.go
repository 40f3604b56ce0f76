// Package resource models the configuration records moved between platform
// instances. A Resource keeps a small typed core (id, title, owner, access
// rules) and carries every other field as an order-preserving raw JSON blob
// the engine never interprets.
package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	fieldID          = "id"
	fieldTitle       = "title"
	fieldOwnerID     = "ownerId"
	fieldAccessRules = "accessRules"

	// FieldOwner is the read-only owner object some platforms embed in
	// detail payloads. Targets reject it on write.
	FieldOwner = "owner"
	// FieldWidgets holds the dashboard widget array
	FieldWidgets = "widgets"
)

// Fields is the ordered set of platform-specific fields of a resource
type Fields = orderedmap.OrderedMap[string, json.RawMessage]

// Resource is one configuration record (a dashboard) as read from or written
// to a platform instance.
type Resource struct {
	ID    string
	Title string
	// OwnerID is nil when the payload carries no owner. A nil owner is
	// omitted on marshal, never written as null.
	OwnerID     *string
	AccessRules []AccessRule
	Extra       *Fields
}

// New returns an empty resource with an initialized field set
func New(id, title string) *Resource {
	return &Resource{ID: id, Title: title, Extra: orderedmap.New[string, json.RawMessage]()}
}

// Summary returns the listing identity of the resource
func (r *Resource) Summary() Summary {
	return Summary{ID: r.ID, Title: r.Title}
}

// Field returns a raw platform-specific field
func (r *Resource) Field(key string) (json.RawMessage, bool) {
	if r.Extra == nil {
		return nil, false
	}
	return r.Extra.Get(key)
}

// SetField stores v, marshaled, under key. Existing keys keep their position.
func (r *Resource) SetField(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode field %s: %w", key, err)
	}
	if r.Extra == nil {
		r.Extra = orderedmap.New[string, json.RawMessage]()
	}
	r.Extra.Set(key, raw)
	return nil
}

// DeleteField removes a platform-specific field
func (r *Resource) DeleteField(key string) {
	if r.Extra != nil {
		r.Extra.Delete(key)
	}
}

// Widgets decodes the widget array. A missing or null array yields nil.
func (r *Resource) Widgets() ([]Widget, error) {
	raw, ok := r.Field(FieldWidgets)
	if !ok || isNull(raw) {
		return nil, nil
	}
	var widgets []Widget
	if err := json.Unmarshal(raw, &widgets); err != nil {
		return nil, fmt.Errorf("decode widgets: %w", err)
	}
	return widgets, nil
}

// Clone returns a copy that can be modified without touching r
func (r *Resource) Clone() *Resource {
	out := &Resource{
		ID:    r.ID,
		Title: r.Title,
		Extra: orderedmap.New[string, json.RawMessage](),
	}
	if r.OwnerID != nil {
		owner := *r.OwnerID
		out.OwnerID = &owner
	}
	if r.AccessRules != nil {
		out.AccessRules = append([]AccessRule{}, r.AccessRules...)
	}
	if r.Extra != nil {
		for pair := r.Extra.Oldest(); pair != nil; pair = pair.Next() {
			out.Extra.Set(pair.Key, append(json.RawMessage(nil), pair.Value...))
		}
	}
	return out
}

// UnmarshalJSON splits a payload into the typed core and the ordered blob
func (r *Resource) UnmarshalJSON(data []byte) error {
	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, fields); err != nil {
		return fmt.Errorf("decode resource: %w", err)
	}

	*r = Resource{Extra: orderedmap.New[string, json.RawMessage]()}
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		switch pair.Key {
		case fieldID:
			id, err := decodeID(pair.Value)
			if err != nil {
				return err
			}
			r.ID = id
		case fieldTitle:
			if isNull(pair.Value) {
				continue
			}
			if err := json.Unmarshal(pair.Value, &r.Title); err != nil {
				return fmt.Errorf("decode title: %w", err)
			}
		case fieldOwnerID:
			if isNull(pair.Value) {
				continue
			}
			owner, err := decodeID(pair.Value)
			if err != nil {
				return fmt.Errorf("decode ownerId: %w", err)
			}
			r.OwnerID = &owner
		case fieldAccessRules:
			if isNull(pair.Value) {
				continue
			}
			if err := json.Unmarshal(pair.Value, &r.AccessRules); err != nil {
				return fmt.Errorf("decode accessRules: %w", err)
			}
		default:
			r.Extra.Set(pair.Key, pair.Value)
		}
	}
	return nil
}

// MarshalJSON writes the typed core first, then the blob in its original order
func (r Resource) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, raw []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
	}

	if r.ID != "" {
		id, _ := json.Marshal(r.ID)
		write(fieldID, id)
	}
	title, _ := json.Marshal(r.Title)
	write(fieldTitle, title)
	if r.OwnerID != nil {
		owner, _ := json.Marshal(*r.OwnerID)
		write(fieldOwnerID, owner)
	}
	if r.AccessRules != nil {
		rules, err := json.Marshal(r.AccessRules)
		if err != nil {
			return nil, fmt.Errorf("encode accessRules: %w", err)
		}
		write(fieldAccessRules, rules)
	}
	if r.Extra != nil {
		for pair := r.Extra.Oldest(); pair != nil; pair = pair.Next() {
			if len(pair.Value) == 0 {
				continue
			}
			write(pair.Key, pair.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Summaries extracts the listing identities of a set of resources
func Summaries(resources []*Resource) []Summary {
	out := make([]Summary, 0, len(resources))
	for _, r := range resources {
		out = append(out, r.Summary())
	}
	return out
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", errors.New("identifier is neither a string nor a number")
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
