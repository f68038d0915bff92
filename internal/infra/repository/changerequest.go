package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openfed/metaregistry/internal/domain"
)

// ChangeRequestRepository persists pending metadata change requests.
type ChangeRequestRepository struct {
	store *DocumentStore
}

func NewChangeRequestRepository(store *DocumentStore) *ChangeRequestRepository {
	return &ChangeRequestRepository{store: store}
}

func (r *ChangeRequestRepository) ChangeRequestsFor(ctx context.Context, metaDataID string) ([]domain.MetaDataChangeRequest, error) {
	var rows []docRow
	err := r.store.db.WithContext(ctx).
		Raw(`SELECT id, doc FROM `+domain.ChangeRequestsCollection+` WHERE doc ->> 'metaDataId' = ? ORDER BY id`, metaDataID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.MetaDataChangeRequest, 0, len(rows))
	for _, row := range rows {
		var req domain.MetaDataChangeRequest
		if err := json.Unmarshal([]byte(row.Doc), &req); err != nil {
			return nil, fmt.Errorf("decode change request %s: %w", row.ID, err)
		}
		req.ID = row.ID
		out = append(out, req)
	}
	return out, nil
}

func (r *ChangeRequestRepository) DeleteChangeRequest(ctx context.Context, id string) error {
	return r.store.db.WithContext(ctx).
		Exec(`DELETE FROM `+domain.ChangeRequestsCollection+` WHERE id = ?`, id).
		Error
}
