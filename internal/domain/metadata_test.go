package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaDataAccessors(t *testing.T) {
	md := &MetaData{
		Type: TypeSP.String(),
		Data: map[string]any{
			EntityIDKey:    "https://sp.example.org",
			MetadataURLKey: "https://example.org/meta.xml",
			AutoRefreshKey: map[string]any{
				"enabled":  true,
				"allowall": true,
			},
		},
	}

	assert.Equal(t, "https://sp.example.org", md.EntityID())
	assert.Equal(t, "https://example.org/meta.xml", md.MetadataURL())
	assert.True(t, md.MetadataRefreshEnabled())
	assert.True(t, md.MetadataRefreshAllowAllEnabled())
	assert.Equal(t, "", md.RevisionNote())

	md.SetRevisionNote("edited")
	assert.Equal(t, "edited", md.RevisionNote())
}

func TestMetaDataAccessorsOnEmptyDocument(t *testing.T) {
	md := &MetaData{}

	assert.Equal(t, "", md.EntityID())
	assert.Equal(t, "", md.MetadataURL())
	assert.Nil(t, md.AutoRefresh())
	assert.False(t, md.MetadataRefreshEnabled())
	assert.False(t, md.MetadataRefreshAllowAllEnabled())
	assert.False(t, md.ExcludedFromPush())

	fields := md.MetaDataFields()
	fields["name:en"] = "Created on demand"
	assert.Equal(t, "Created on demand", md.MetaDataFields()["name:en"])
}

func TestExcludedFromPushValueForms(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  bool
	}{
		{"bool true", true, true},
		{"bool false", false, false},
		{"string one", "1", true},
		{"string true", "true", true},
		{"string zero", "0", false},
		{"other type", 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			md := &MetaData{Data: map[string]any{
				MetaDataFieldsKey: map[string]any{
					"coin:exclude_from_push": tc.value,
				},
			}}
			assert.Equal(t, tc.want, md.ExcludedFromPush())
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	md := &MetaData{
		ID:      "id-1",
		Version: 2,
		Type:    TypeIDP.String(),
		Revision: &RevisionInfo{
			Number:    2,
			UpdatedBy: "operator",
		},
		Data: map[string]any{
			MetaDataFieldsKey: map[string]any{
				"name:en":  "Original",
				"keywords": []any{"idp", "saml"},
			},
		},
	}

	clone := md.Clone()
	require.Equal(t, md, clone)

	clone.MetaDataFields()["name:en"] = "Mutated"
	clone.MetaDataFields()["keywords"].([]any)[0] = "changed"
	clone.Revision.UpdatedBy = "someone else"

	assert.Equal(t, "Original", md.MetaDataFields()["name:en"])
	assert.Equal(t, "idp", md.MetaDataFields()["keywords"].([]any)[0])
	assert.Equal(t, "operator", md.Revision.UpdatedBy)
}

func TestEntityTypeRoundTrip(t *testing.T) {
	for _, entityType := range EntityTypes {
		resolved, err := EntityTypeFromString(entityType.String())
		require.NoError(t, err)
		assert.Equal(t, entityType, resolved)
		assert.Equal(t, entityType.Collection()+RevisionSuffix, entityType.RevisionCollection())
	}

	_, err := EntityTypeFromString("saml20_unknown")
	assert.Error(t, err)
}
