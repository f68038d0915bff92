package repository

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfed/metaregistry/internal/domain"
)

func TestJsonbTextExpr(t *testing.T) {
	expr, err := jsonbTextExpr("data.metaDataFields.coin:institution_id")
	require.NoError(t, err)
	assert.Equal(t, `doc #>> '{data,metaDataFields,coin:institution_id}'`, expr)

	expr, err = jsonbTextExpr("revision.parentId")
	require.NoError(t, err)
	assert.Equal(t, `doc #>> '{revision,parentId}'`, expr)
}

func TestJsonbExpr(t *testing.T) {
	expr, err := jsonbExpr("data.metaDataFields.scopes")
	require.NoError(t, err)
	assert.Equal(t, `doc #> '{data,metaDataFields,scopes}'`, expr)
}

func TestPathSegmentsRejectsInjection(t *testing.T) {
	for _, path := range []string{
		"",
		"data.'; DROP TABLE saml20_sp; --",
		"data.a b",
		"data.a}b",
	} {
		_, err := pathSegments(path)
		assert.Error(t, err, "path %q must be rejected", path)
	}
}

func TestValidCollection(t *testing.T) {
	assert.NoError(t, validCollection("saml20_sp_revision"))
	assert.NoError(t, validCollection(MigrationRecordsCollection))
	assert.Error(t, validCollection("saml20_sp; DROP TABLE x"))
	assert.Error(t, validCollection("Saml20_SP"))
	assert.Error(t, validCollection(""))
}

func TestEncodeDecodeMetaData(t *testing.T) {
	terminated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	md := &domain.MetaData{
		ID:      "id-1",
		Version: 4,
		Type:    domain.TypeSP.String(),
		Revision: &domain.RevisionInfo{
			Number:     4,
			ParentID:   "id-0",
			Created:    time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC),
			Terminated: &terminated,
			UpdatedBy:  "operator",
		},
		Data: map[string]any{
			domain.EntityIDKey: "https://sp.example.org",
			domain.MetaDataFieldsKey: map[string]any{
				"name:en": "A provider",
			},
		},
	}

	doc, err := encodeMetaData(md)
	require.NoError(t, err)

	// The id lives in its own column.
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))
	assert.NotContains(t, raw, "id")

	decoded, err := decodeMetaData(docRow{ID: "id-1", Doc: doc})
	require.NoError(t, err)
	assert.Equal(t, "id-1", decoded.ID)
	assert.Equal(t, int64(4), decoded.Version)
	assert.Equal(t, md.Type, decoded.Type)
	require.NotNil(t, decoded.Revision)
	assert.Equal(t, "id-0", decoded.Revision.ParentID)
	require.NotNil(t, decoded.Revision.Terminated)
	assert.True(t, terminated.Equal(*decoded.Revision.Terminated))
	assert.Equal(t, "https://sp.example.org", decoded.EntityID())
}

func TestDecodeMetaDataRejectsMalformedDocument(t *testing.T) {
	_, err := decodeMetaData(docRow{ID: "id-1", Doc: `{"version": `})
	assert.Error(t, err)
}

func TestJsonEqualIgnoresKeyOrder(t *testing.T) {
	a := map[string]any{"x": 1.0, "nested": map[string]any{"a": "1", "b": "2"}}
	b := map[string]any{"nested": map[string]any{"b": "2", "a": "1"}, "x": 1.0}

	equal, err := jsonEqual(a, b)
	require.NoError(t, err)
	assert.True(t, equal)

	b["x"] = 2.0
	equal, err = jsonEqual(a, b)
	require.NoError(t, err)
	assert.False(t, equal)
}
