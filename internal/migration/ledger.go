package migration

import (
	"context"

	"github.com/openfed/metaregistry/internal/infra/repository"
)

// StoreLedger keeps applied change-set records in the migration_records
// collection, keyed by change id.
type StoreLedger struct {
	store *repository.DocumentStore
}

func NewStoreLedger(store *repository.DocumentStore) *StoreLedger {
	return &StoreLedger{store: store}
}

// EnsureCollection creates the ledger collection itself; it runs before any
// change-set is consulted.
func (l *StoreLedger) EnsureCollection(ctx context.Context) error {
	return l.store.CreateCollection(ctx, repository.MigrationRecordsCollection)
}

func (l *StoreLedger) Applied(ctx context.Context, changeID string) (bool, error) {
	return l.store.Exists(ctx, repository.MigrationRecordsCollection, changeID)
}

func (l *StoreLedger) Record(ctx context.Context, rec Record) error {
	return l.store.InsertDoc(ctx, repository.MigrationRecordsCollection, rec.ChangeID, rec)
}
