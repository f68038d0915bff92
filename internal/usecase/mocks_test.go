package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/openfed/metaregistry/internal/domain"
)

type mockStore struct {
	collections map[string]map[string]*domain.MetaData
	inserts     map[string][]*domain.MetaData
	replaced    []*domain.MetaData
	seq         int64
	failReplace map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{
		collections: map[string]map[string]*domain.MetaData{},
		inserts:     map[string][]*domain.MetaData{},
		failReplace: map[string]error{},
		seq:         999,
	}
}

func (m *mockStore) add(collection string, md *domain.MetaData) {
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]*domain.MetaData{}
	}
	m.collections[collection][md.ID] = md.Clone()
}

func (m *mockStore) FindAll(_ context.Context, collection string) ([]*domain.MetaData, error) {
	docs := m.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*domain.MetaData, 0, len(ids))
	for _, id := range ids {
		out = append(out, docs[id].Clone())
	}
	return out, nil
}

func (m *mockStore) Get(_ context.Context, collection, id string) (*domain.MetaData, error) {
	md, ok := m.collections[collection][id]
	if !ok {
		return nil, domain.NotFoundError{Resource: collection + "/" + id}
	}
	return md.Clone(), nil
}

func (m *mockStore) Insert(_ context.Context, collection string, md *domain.MetaData) error {
	m.add(collection, md)
	m.inserts[collection] = append(m.inserts[collection], md.Clone())
	return nil
}

func (m *mockStore) ReplaceIfChanged(_ context.Context, collection string, md *domain.MetaData, expectedVersion int64) (domain.ReplaceOutcome, error) {
	if err := m.failReplace[md.ID]; err != nil {
		return domain.ReplaceUnchanged, err
	}
	current, ok := m.collections[collection][md.ID]
	if !ok {
		return domain.ReplaceUnchanged, domain.NotFoundError{Resource: collection + "/" + md.ID}
	}
	if current.Version != expectedVersion {
		return domain.ReplaceUnchanged, domain.ConflictError{Collection: collection, ID: md.ID}
	}
	if mapsEqual(current.Data, md.Data) {
		return domain.ReplaceUnchanged, nil
	}
	m.collections[collection][md.ID] = md.Clone()
	m.replaced = append(m.replaced, md.Clone())
	return domain.ReplaceReplaced, nil
}

func (m *mockStore) NextSequenceValue(_ context.Context, _ string) (int64, error) {
	m.seq++
	return m.seq, nil
}

func mapsEqual(a, b map[string]any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return bytes.Equal(ab, bb)
}

type mockImporter struct {
	result map[string]any
	err    error
	calls  []string
}

func (m *mockImporter) ImportFromURL(_ context.Context, _ domain.EntityType, url string) (map[string]any, error) {
	m.calls = append(m.calls, url)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockCatalog struct {
	rep map[string]any
	err error
}

func (m *mockCatalog) SchemaRepresentation(_ domain.EntityType) (map[string]any, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rep, nil
}

type mockChangeRequests struct {
	requests map[string]domain.MetaDataChangeRequest
	deleted  []string
}

func newMockChangeRequests() *mockChangeRequests {
	return &mockChangeRequests{requests: map[string]domain.MetaDataChangeRequest{}}
}

func (m *mockChangeRequests) ChangeRequestsFor(_ context.Context, metaDataID string) ([]domain.MetaDataChangeRequest, error) {
	var out []domain.MetaDataChangeRequest
	for _, req := range m.requests {
		if req.MetaDataID == metaDataID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *mockChangeRequests) DeleteChangeRequest(_ context.Context, id string) error {
	delete(m.requests, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// refreshableEntity builds a metadata document eligible for auto refresh.
func refreshableEntity(id, entityID string, extra map[string]any) *domain.MetaData {
	data := map[string]any{
		domain.EntityIDKey:       entityID,
		domain.MetadataURLKey:    "https://example.org/meta.xml",
		domain.AutoRefreshKey:    map[string]any{"enabled": true},
		domain.MetaDataFieldsKey: map[string]any{},
	}
	for k, v := range extra {
		data[k] = v
	}
	return &domain.MetaData{
		ID:      id,
		Version: 0,
		Type:    domain.TypeSP.String(),
		Revision: &domain.RevisionInfo{
			Number:    0,
			UpdatedBy: "importer",
		},
		Data: data,
	}
}

func schemaWithAutoRefreshFields(fields ...string) map[string]any {
	fieldProps := map[string]any{}
	for _, field := range fields {
		fieldProps[field] = map[string]any{"type": "boolean"}
	}
	return map[string]any{
		domain.PropertiesKey: map[string]any{
			domain.AutoRefreshKey: map[string]any{
				domain.PropertiesKey: map[string]any{
					domain.FieldsKey: map[string]any{
						domain.PropertiesKey: fieldProps,
					},
				},
			},
		},
	}
}
