package domain

import (
	"time"
)

// Well-known keys inside MetaData.Data. The data map is deliberately open:
// unknown keys pass through storage and refresh untouched.
const (
	EntityIDKey       = "entityid"
	MetadataURLKey    = "metadataurl"
	MetaDataFieldsKey = "metaDataFields"
	AutoRefreshKey    = "autoRefresh"
	FieldsKey         = "fields"
	PropertiesKey     = "properties"
	RevisionNoteKey   = "revisionnote"
	StateKey          = "state"
)

const (
	autoRefreshEnabledKey  = "enabled"
	autoRefreshAllowAllKey = "allowall"
	excludeFromPushField   = "coin:exclude_from_push"
)

// MetaData is one federation entity's current state: a small typed core with
// an open data map holding everything the schema for its type declares.
type MetaData struct {
	ID       string         `json:"id,omitempty"`
	Version  int64          `json:"version"`
	Type     string         `json:"type"`
	Revision *RevisionInfo  `json:"revision,omitempty"`
	Data     map[string]any `json:"data"`
}

// RevisionInfo describes the lineage of a metadata document. On a current
// document ParentID is empty; on an archived revision it points at the
// current document the snapshot was taken from.
type RevisionInfo struct {
	Number     int64      `json:"number"`
	ParentID   string     `json:"parentId,omitempty"`
	Created    time.Time  `json:"created"`
	Terminated *time.Time `json:"terminated,omitempty"`
	UpdatedBy  string     `json:"updatedBy"`
}

// EntityID returns data.entityid, or "" when absent.
func (m *MetaData) EntityID() string {
	return stringValue(m.Data, EntityIDKey)
}

// MetadataURL returns data.metadataurl, or "" when absent.
func (m *MetaData) MetadataURL() string {
	return stringValue(m.Data, MetadataURLKey)
}

// MetaDataFields returns the nested metaDataFields map, creating it when the
// document does not have one yet.
func (m *MetaData) MetaDataFields() map[string]any {
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	fields, ok := m.Data[MetaDataFieldsKey].(map[string]any)
	if !ok {
		fields = map[string]any{}
		m.Data[MetaDataFieldsKey] = fields
	}
	return fields
}

// AutoRefresh returns the autoRefresh sub-mapping, or nil when absent.
func (m *MetaData) AutoRefresh() map[string]any {
	if m.Data == nil {
		return nil
	}
	sub, _ := m.Data[AutoRefreshKey].(map[string]any)
	return sub
}

// MetadataRefreshEnabled reports whether this entity participates in the
// scheduled refresh at all.
func (m *MetaData) MetadataRefreshEnabled() bool {
	return boolValue(m.AutoRefresh(), autoRefreshEnabledKey)
}

// MetadataRefreshAllowAllEnabled reports whether every schema-declared
// refresh field is allowed, instead of the per-entity allow list.
func (m *MetaData) MetadataRefreshAllowAllEnabled() bool {
	return boolValue(m.AutoRefresh(), autoRefreshAllowAllKey)
}

// ExcludedFromPush reports the push-exclusion flag carried over unchanged by
// the refresh path.
func (m *MetaData) ExcludedFromPush() bool {
	fields, _ := m.Data[MetaDataFieldsKey].(map[string]any)
	v, ok := fields[excludeFromPushField]
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "1" || val == "true"
	default:
		return false
	}
}

// SetRevisionNote records the reason the next revision is created for.
func (m *MetaData) SetRevisionNote(note string) {
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	m.Data[RevisionNoteKey] = note
}

// RevisionNote returns data.revisionnote, or "" when absent.
func (m *MetaData) RevisionNote() string {
	return stringValue(m.Data, RevisionNoteKey)
}

// Clone deep-copies the document so refresh can mutate a working copy
// without touching the stored state.
func (m *MetaData) Clone() *MetaData {
	out := &MetaData{
		ID:      m.ID,
		Version: m.Version,
		Type:    m.Type,
		Data:    deepCopyMap(m.Data),
	}
	if m.Revision != nil {
		rev := *m.Revision
		out.Revision = &rev
	}
	return out
}

func deepCopyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

func stringValue(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func boolValue(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}
