package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/openfed/metaregistry/internal/domain"
)

var metaDataTracer = otel.Tracer("metadata")

// EIDSequence is the counter allocating legacy numeric entity identifiers.
const EIDSequence = "sequence"

// MetaDataService owns the revisioned lifecycle of metadata documents: every
// mutation archives the prior state into the type's revision collection
// before the new state is committed.
type MetaDataService struct {
	store          MetaDataStore
	changeRequests ChangeRequestStore
}

func NewMetaDataService(store MetaDataStore, changeRequests ChangeRequestStore) *MetaDataService {
	return &MetaDataService{store: store, changeRequests: changeRequests}
}

// FindAllByType returns every current document of the given type in
// store-returned order.
func (s *MetaDataService) FindAllByType(ctx context.Context, entityType domain.EntityType) ([]*domain.MetaData, error) {
	return s.store.FindAll(ctx, entityType.Collection())
}

// Create inserts a brand new document, allocating its id and legacy eid.
func (s *MetaDataService) Create(ctx context.Context, md *domain.MetaData, createdBy string) (*domain.MetaData, error) {
	ctx, span := metaDataTracer.Start(ctx, "MetaDataService.Create")
	defer span.End()

	entityType, err := domain.EntityTypeFromString(md.Type)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	eid, err := s.store.NextSequenceValue(ctx, EIDSequence)
	if err != nil {
		span.RecordError(errors.Wrap(err, "eid allocation failed"))
		return nil, err
	}

	doc := md.Clone()
	doc.ID = uuid.NewString()
	doc.Version = 0
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}
	doc.Data["eid"] = eid
	doc.Revision = &domain.RevisionInfo{
		Number:    0,
		Created:   time.Now().UTC(),
		UpdatedBy: createdBy,
	}

	if err := s.store.Insert(ctx, entityType.Collection(), doc); err != nil {
		span.RecordError(errors.Wrap(err, "insert failed"))
		return nil, err
	}
	return doc, nil
}

// Update commits a mutated copy of a current document. The stored state is
// archived as a terminated revision first; the replace itself is conditional
// and reports ReplaceUnchanged when the data did not change at all.
func (s *MetaDataService) Update(ctx context.Context, md *domain.MetaData, updatedBy string) (domain.ReplaceOutcome, error) {
	ctx, span := metaDataTracer.Start(ctx, "MetaDataService.Update")
	defer span.End()

	entityType, err := domain.EntityTypeFromString(md.Type)
	if err != nil {
		span.RecordError(err)
		return domain.ReplaceUnchanged, err
	}

	current, err := s.store.Get(ctx, entityType.Collection(), md.ID)
	if err != nil {
		span.RecordError(errors.Wrap(err, "load current document failed"))
		return domain.ReplaceUnchanged, err
	}

	equal, err := dataEqual(current.Data, md.Data)
	if err != nil {
		span.RecordError(err)
		return domain.ReplaceUnchanged, err
	}
	if equal {
		return domain.ReplaceUnchanged, nil
	}

	now := time.Now().UTC()

	archived := current.Clone()
	archived.ID = uuid.NewString()
	archived.Revision = &domain.RevisionInfo{
		Number:     revisionNumber(current),
		ParentID:   current.ID,
		Created:    revisionCreated(current, now),
		Terminated: &now,
		UpdatedBy:  revisionUpdatedBy(current),
	}
	if err := s.store.Insert(ctx, entityType.RevisionCollection(), archived); err != nil {
		span.RecordError(errors.Wrap(err, "archive revision failed"))
		return domain.ReplaceUnchanged, err
	}

	next := md.Clone()
	next.Version = current.Version + 1
	next.Revision = &domain.RevisionInfo{
		Number:    revisionNumber(current) + 1,
		Created:   now,
		UpdatedBy: updatedBy,
	}
	outcome, err := s.store.ReplaceIfChanged(ctx, entityType.Collection(), next, current.Version)
	if err != nil {
		span.RecordError(errors.Wrap(err, "replace failed"))
		return domain.ReplaceUnchanged, err
	}
	return outcome, nil
}

// ApplyChangeRequest applies the request's path updates through the
// revisioned update path and deletes the request once committed.
func (s *MetaDataService) ApplyChangeRequest(ctx context.Context, req domain.MetaDataChangeRequest, updatedBy string) (domain.ReplaceOutcome, error) {
	ctx, span := metaDataTracer.Start(ctx, "MetaDataService.ApplyChangeRequest")
	defer span.End()

	entityType, err := domain.EntityTypeFromString(req.Type)
	if err != nil {
		span.RecordError(err)
		return domain.ReplaceUnchanged, err
	}

	current, err := s.store.Get(ctx, entityType.Collection(), req.MetaDataID)
	if err != nil {
		span.RecordError(errors.Wrap(err, "load change request target failed"))
		return domain.ReplaceUnchanged, err
	}

	updated := current.Clone()
	for path, value := range req.PathUpdates {
		setPath(updated.Data, path, value)
	}
	updated.SetRevisionNote(changeRequestNote(req))

	outcome, err := s.Update(ctx, updated, updatedBy)
	if err != nil {
		return outcome, err
	}

	if err := s.changeRequests.DeleteChangeRequest(ctx, req.ID); err != nil {
		span.RecordError(errors.Wrap(err, "delete applied change request failed"))
		return outcome, err
	}
	return outcome, nil
}

// ChangeRequestsFor lists pending change requests for a document.
func (s *MetaDataService) ChangeRequestsFor(ctx context.Context, metaDataID string) ([]domain.MetaDataChangeRequest, error) {
	return s.changeRequests.ChangeRequestsFor(ctx, metaDataID)
}

func changeRequestNote(req domain.MetaDataChangeRequest) string {
	if note, ok := req.AuditData["notes"].(string); ok && note != "" {
		return note
	}
	return "Change request applied"
}

// setPath writes value at a dotted path, creating intermediate maps. A path
// segment that exists with a non-map value is overwritten.
func setPath(data map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := data
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[seg] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

func revisionNumber(md *domain.MetaData) int64 {
	if md.Revision == nil {
		return 0
	}
	return md.Revision.Number
}

func revisionCreated(md *domain.MetaData, fallback time.Time) time.Time {
	if md.Revision == nil || md.Revision.Created.IsZero() {
		return fallback
	}
	return md.Revision.Created
}

func revisionUpdatedBy(md *domain.MetaData) string {
	if md.Revision == nil {
		return ""
	}
	return md.Revision.UpdatedBy
}

// dataEqual compares two data maps via canonical JSON. encoding/json sorts
// map keys, so equal maps marshal to equal bytes.
func dataEqual(a, b map[string]any) (bool, error) {
	ab, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("marshal stored data: %w", err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("marshal new data: %w", err)
	}
	return bytes.Equal(ab, bb), nil
}
