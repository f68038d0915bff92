package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfed/metaregistry/internal/domain"
)

func TestUpdateArchivesPriorRevision(t *testing.T) {
	store := newMockStore()
	svc := NewMetaDataService(store, newMockChangeRequests())

	current := refreshableEntity("id-1", "https://sp.example.org", nil)
	current.Version = 3
	current.Revision.Number = 3
	current.Data[domain.MetaDataFieldsKey] = map[string]any{"name:en": "Old name"}
	store.add(domain.TypeSP.Collection(), current)

	updated := current.Clone()
	updated.MetaDataFields()["name:en"] = "New name"
	updated.SetRevisionNote("manual edit")

	outcome, err := svc.Update(context.Background(), updated, "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.ReplaceReplaced, outcome)

	archived := store.inserts[domain.TypeSP.RevisionCollection()]
	require.Len(t, archived, 1)
	assert.NotEqual(t, "id-1", archived[0].ID, "the archive gets its own id")
	assert.Equal(t, "id-1", archived[0].Revision.ParentID)
	assert.Equal(t, int64(3), archived[0].Revision.Number)
	require.NotNil(t, archived[0].Revision.Terminated)
	assert.Equal(t, "Old name", archived[0].MetaDataFields()["name:en"])

	require.Len(t, store.replaced, 1)
	committed := store.replaced[0]
	assert.Equal(t, int64(4), committed.Version)
	assert.Equal(t, int64(4), committed.Revision.Number)
	assert.Equal(t, "operator", committed.Revision.UpdatedBy)
	assert.Equal(t, "New name", committed.MetaDataFields()["name:en"])
}

func TestUpdateUnchangedDataSkipsArchiving(t *testing.T) {
	store := newMockStore()
	svc := NewMetaDataService(store, newMockChangeRequests())

	current := refreshableEntity("id-1", "https://sp.example.org", nil)
	store.add(domain.TypeSP.Collection(), current)

	outcome, err := svc.Update(context.Background(), current.Clone(), "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.ReplaceUnchanged, outcome)
	assert.Empty(t, store.inserts)
	assert.Empty(t, store.replaced)
}

func TestUpdateMissingDocument(t *testing.T) {
	store := newMockStore()
	svc := NewMetaDataService(store, newMockChangeRequests())

	md := refreshableEntity("id-gone", "https://sp.example.org", nil)

	_, err := svc.Update(context.Background(), md, "operator")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateUnknownType(t *testing.T) {
	store := newMockStore()
	svc := NewMetaDataService(store, newMockChangeRequests())

	md := refreshableEntity("id-1", "https://sp.example.org", nil)
	md.Type = "bogus"

	_, err := svc.Update(context.Background(), md, "operator")
	assert.Error(t, err)
}

func TestCreateAllocatesEID(t *testing.T) {
	store := newMockStore()
	svc := NewMetaDataService(store, newMockChangeRequests())

	md := &domain.MetaData{
		Type: domain.TypeSP.String(),
		Data: map[string]any{domain.EntityIDKey: "https://new.example.org"},
	}

	created, err := svc.Create(context.Background(), md, "importer")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(1000), created.Data["eid"])
	assert.Equal(t, int64(0), created.Version)
	assert.Equal(t, "importer", created.Revision.UpdatedBy)

	require.Len(t, store.inserts[domain.TypeSP.Collection()], 1)
}

func TestApplyChangeRequest(t *testing.T) {
	store := newMockStore()
	changeRequests := newMockChangeRequests()
	svc := NewMetaDataService(store, changeRequests)

	current := refreshableEntity("id-1", "https://sp.example.org", nil)
	current.Data[domain.MetaDataFieldsKey] = map[string]any{"name:en": "Old name"}
	store.add(domain.TypeSP.Collection(), current)

	req := domain.MetaDataChangeRequest{
		ID:         "req-1",
		MetaDataID: "id-1",
		Type:       domain.TypeSP.String(),
		PathUpdates: map[string]any{
			"metaDataFields.name:en": "Requested name",
			"state":                  "prodaccepted",
		},
		AuditData: map[string]any{"notes": "ticket 4711"},
	}
	changeRequests.requests["req-1"] = req

	outcome, err := svc.ApplyChangeRequest(context.Background(), req, "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.ReplaceReplaced, outcome)

	require.Len(t, store.replaced, 1)
	committed := store.replaced[0]
	assert.Equal(t, "Requested name", committed.MetaDataFields()["name:en"])
	assert.Equal(t, "prodaccepted", committed.Data[domain.StateKey])
	assert.Equal(t, "ticket 4711", committed.RevisionNote())

	assert.Equal(t, []string{"req-1"}, changeRequests.deleted)
}

func TestSetPathCreatesIntermediateMaps(t *testing.T) {
	data := map[string]any{}
	setPath(data, "a.b.c", 7)

	nested, ok := data["a"].(map[string]any)
	require.True(t, ok)
	inner, ok := nested["b"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7, inner["c"])
}
