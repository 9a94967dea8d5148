package openai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultBlockedPrefixes are the advanced model families hidden when the
// advanced-model switch is on.
var DefaultBlockedPrefixes = []string{"gpt-4", "chatgpt-4o", "o1", "o3"}

// DefaultExemptPrefix stays visible even though it overlaps "gpt-4".
const DefaultExemptPrefix = "gpt-4o-mini"

// FilterPolicy controls model catalog rewriting.
type FilterPolicy struct {
	DisableAdvancedModels bool
	BlockedPrefixes       []string
	ExemptPrefix          string
}

// NewFilterPolicy returns the policy with the fixed prefix lists.
func NewFilterPolicy(disableAdvanced bool) FilterPolicy {
	return FilterPolicy{
		DisableAdvancedModels: disableAdvanced,
		BlockedPrefixes:       DefaultBlockedPrefixes,
		ExemptPrefix:          DefaultExemptPrefix,
	}
}

// Allows reports whether a model id survives the policy. An id is kept when
// it matches no blocked prefix or when it matches the exempt prefix.
func (p FilterPolicy) Allows(id string) bool {
	if !p.DisableAdvancedModels {
		return true
	}
	return !p.blocked(id) || (p.ExemptPrefix != "" && strings.HasPrefix(id, p.ExemptPrefix))
}

func (p FilterPolicy) blocked(id string) bool {
	for _, prefix := range p.BlockedPrefixes {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// ModelEntry is one catalog entry. Only the id is interpreted; the original
// JSON object is kept so metadata passes through unchanged.
type ModelEntry struct {
	ID  string
	raw json.RawMessage
}

// NewModelEntry builds an entry with only an id, as returned by minimal upstreams.
func NewModelEntry(id string) ModelEntry {
	raw, _ := json.Marshal(map[string]string{"id": id})
	return ModelEntry{ID: id, raw: raw}
}

// MarshalJSON implements json.Marshaler.
func (m ModelEntry) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(map[string]string{"id": m.ID})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *ModelEntry) UnmarshalJSON(data []byte) error {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	m.ID = head.ID
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

// ModelList is a list-models response. Fields other than "data" are kept
// verbatim in rest.
type ModelList struct {
	Data []ModelEntry
	rest map[string]json.RawMessage
}

// MarshalJSON implements json.Marshaler.
func (l ModelList) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(l.rest)+1)
	for k, v := range l.rest {
		out[k] = v
	}
	data := l.Data
	if data == nil {
		data = []ModelEntry{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out["data"] = encoded
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ModelList) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	raw, ok := fields["data"]
	if !ok {
		return fmt.Errorf("model list: missing data field")
	}
	var entries []ModelEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("model list: decode data: %w", err)
	}
	delete(fields, "data")
	l.Data = entries
	l.rest = fields
	return nil
}

// IDs returns the model ids in catalog order.
func (l *ModelList) IDs() []string {
	ids := make([]string, len(l.Data))
	for i, m := range l.Data {
		ids[i] = m.ID
	}
	return ids
}

// FilterModels applies the policy to the catalog in place and returns it.
// With the policy disabled the list is returned unmodified.
func FilterModels(list *ModelList, policy FilterPolicy) *ModelList {
	if list == nil || !policy.DisableAdvancedModels {
		return list
	}
	kept := list.Data[:0:0]
	for _, m := range list.Data {
		if policy.Allows(m.ID) {
			kept = append(kept, m)
		}
	}
	list.Data = kept
	return list
}

// FilterModelsJSON decodes a list-models body, filters it and re-encodes it.
// It also reports how many entries were removed.
func FilterModelsJSON(body []byte, policy FilterPolicy) ([]byte, int, error) {
	var list ModelList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, 0, fmt.Errorf("decode model list: %w", err)
	}
	before := len(list.Data)
	out, err := json.Marshal(FilterModels(&list, policy))
	if err != nil {
		return nil, 0, fmt.Errorf("encode model list: %w", err)
	}
	return out, before - len(list.Data), nil
}
