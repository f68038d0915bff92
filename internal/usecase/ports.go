package usecase

import (
	"context"

	"github.com/openfed/metaregistry/internal/domain"
)

// MetaDataStore defines the document-store operations the metadata and
// refresh usecases need. Collections are addressed by name; entity types map
// to collections via domain.EntityType.
type MetaDataStore interface {
	FindAll(ctx context.Context, collection string) ([]*domain.MetaData, error)
	Get(ctx context.Context, collection, id string) (*domain.MetaData, error)
	Insert(ctx context.Context, collection string, md *domain.MetaData) error
	// ReplaceIfChanged replaces the stored document only when the new data
	// differs from the stored data, returning ReplaceUnchanged otherwise.
	// expectedVersion guards against concurrent writers.
	ReplaceIfChanged(ctx context.Context, collection string, md *domain.MetaData, expectedVersion int64) (domain.ReplaceOutcome, error)
	NextSequenceValue(ctx context.Context, name string) (int64, error)
}

// ChangeRequestStore defines persistence for pending change requests.
type ChangeRequestStore interface {
	ChangeRequestsFor(ctx context.Context, metaDataID string) ([]domain.MetaDataChangeRequest, error)
	DeleteChangeRequest(ctx context.Context, id string) error
}

// ImportErrorsKey signals a fetch/parse failure in an importer result. The
// error travels as a value so the refresh loop stays plain control flow.
const ImportErrorsKey = "errors"

// Importer fetches and parses externally hosted metadata into a flat field
// map. A failed import returns a map containing ImportErrorsKey, not an
// error: errors are reserved for transport-level faults.
type Importer interface {
	ImportFromURL(ctx context.Context, entityType domain.EntityType, url string) (map[string]any, error)
}

// SchemaCatalog produces the JSON-schema-derived representation for an
// entity type. The representation is the raw schema document as nested maps.
type SchemaCatalog interface {
	SchemaRepresentation(entityType domain.EntityType) (map[string]any, error)
}

// FeatureAutoRefresh gates the scheduled metadata refresh.
const FeatureAutoRefresh = "auto_refresh"

// Features answers feature-flag queries.
type Features interface {
	Enabled(feature string) bool
}
