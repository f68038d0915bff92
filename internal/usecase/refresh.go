package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/openfed/metaregistry/internal/domain"
)

var refreshTracer = otel.Tracer("refresh")

const (
	// RefreshUpdateUser is the system identity committing refreshed documents.
	RefreshUpdateUser = "Metadata reaper"
	// AutoRefreshRevisionNote tags revisions created by the scheduled refresh.
	AutoRefreshRevisionNote = "Metadata updated by auto refresh"
)

// RefreshUsecase reconciles stored metadata against its externally hosted
// source: per entity it resolves the allow-listed field set, imports fresh
// metadata, computes update/removal deltas and commits them through the
// revisioned update path. One entity's failure never aborts the sweep.
type RefreshUsecase struct {
	metaData *MetaDataService
	importer Importer
	catalog  SchemaCatalog
}

func NewRefreshUsecase(metaData *MetaDataService, importer Importer, catalog SchemaCatalog) *RefreshUsecase {
	return &RefreshUsecase{
		metaData: metaData,
		importer: importer,
		catalog:  catalog,
	}
}

// Sweep refreshes all service providers, then all identity providers, in
// store-returned order.
func (uc *RefreshUsecase) Sweep(ctx context.Context) error {
	ctx, span := refreshTracer.Start(ctx, "Refresh.Sweep")
	defer span.End()

	slog.Info("Start metadata auto refresh", slog.String("module", "refresh"))

	for _, entityType := range []domain.EntityType{domain.TypeSP, domain.TypeIDP} {
		slog.Info("Updating providers",
			slog.String("type", entityType.String()),
			slog.String("module", "refresh"),
		)
		all, err := uc.metaData.FindAllByType(ctx, entityType)
		if err != nil {
			span.RecordError(errors.Wrap(err, "listing providers failed"))
			return err
		}
		for _, md := range all {
			uc.RefreshOne(ctx, md)
		}
	}

	slog.Info("Metadata auto refresh finished", slog.String("module", "refresh"))
	return nil
}

// RefreshOne evaluates a single entity. Every early exit is a configuration
// skip logged at info level; storage faults are logged and swallowed so the
// remainder of the sweep proceeds.
func (uc *RefreshUsecase) RefreshOne(ctx context.Context, md *domain.MetaData) {
	ctx, span := refreshTracer.Start(ctx, "Refresh.RefreshOne")
	defer span.End()

	entityID := md.EntityID()

	if !md.MetadataRefreshEnabled() {
		slog.Info("Auto refresh is disabled - skipping",
			slog.String("type", md.Type),
			slog.String("entityid", entityID),
			slog.String("module", "refresh"),
		)
		return
	}

	metadataURL := md.MetadataURL()
	if metadataURL == "" {
		slog.Info("No metadata URL found - skipping",
			slog.String("type", md.Type),
			slog.String("entityid", entityID),
			slog.String("module", "refresh"),
		)
		return
	}

	slog.Info("Running auto refresh",
		slog.String("type", md.Type),
		slog.String("entityid", entityID),
		slog.String("module", "refresh"),
	)

	allowedFields, ok := uc.allowedFields(md, entityID)
	if !ok {
		return
	}

	entityType, err := domain.EntityTypeFromString(md.Type)
	if err != nil {
		slog.Info("Unknown entity type - skipping",
			slog.String("type", md.Type),
			slog.String("entityid", entityID),
			slog.String("module", "refresh"),
		)
		return
	}

	imported, err := uc.importer.ImportFromURL(ctx, entityType, metadataURL)
	if err != nil {
		span.RecordError(errors.Wrap(err, "import transport failure"))
		slog.Info("Failed to retrieve metadata from url - skipping",
			slog.String("type", md.Type),
			slog.String("entityid", entityID),
			slog.String("url", metadataURL),
			slog.String("error", err.Error()),
			slog.String("module", "refresh"),
		)
		return
	}
	if importErrors, failed := imported[ImportErrorsKey]; failed {
		slog.Info("Failed to parse metadata from url - skipping",
			slog.String("type", md.Type),
			slog.String("entityid", entityID),
			slog.String("url", metadataURL),
			slog.Any("error", importErrors),
			slog.String("module", "refresh"),
		)
		return
	}

	fieldsToUpdate := updatedFields(imported, allowedFields)
	fieldsToRemove := removedFields(imported, allowedFields)
	if len(fieldsToUpdate) == 0 && len(fieldsToRemove) == 0 {
		slog.Info("No fields in the retrieved metadata that contain enabled auto refresh fields - skipping",
			slog.String("type", md.Type),
			slog.String("entityid", entityID),
			slog.String("module", "refresh"),
		)
		return
	}

	updated := md.Clone()
	updated.SetRevisionNote(AutoRefreshRevisionNote)
	metaDataFields := updated.MetaDataFields()
	for key, value := range fieldsToUpdate {
		metaDataFields[key] = value
	}
	for _, key := range fieldsToRemove {
		delete(metaDataFields, key)
	}

	outcome, err := uc.metaData.Update(ctx, updated, RefreshUpdateUser)
	switch {
	case err != nil:
		span.RecordError(errors.Wrap(err, "refresh update failed"))
		slog.Info("Failed to save changes",
			slog.String("type", md.Type),
			slog.String("entityid", entityID),
			slog.String("error", err.Error()),
			slog.String("module", "refresh"),
		)
	case outcome == domain.ReplaceUnchanged:
		slog.Info("No changes",
			slog.String("type", md.Type),
			slog.String("entityid", entityID),
			slog.String("module", "refresh"),
		)
	}
}

// allowedFields resolves the allow-listed field names for one entity. The
// second return value is false when the entity must be skipped; the reason is
// already logged.
func (uc *RefreshUsecase) allowedFields(md *domain.MetaData, entityID string) ([]string, bool) {
	if md.MetadataRefreshAllowAllEnabled() {
		entityType, err := domain.EntityTypeFromString(md.Type)
		if err != nil {
			slog.Info("Unknown entity type - skipping",
				slog.String("type", md.Type),
				slog.String("entityid", entityID),
				slog.String("module", "refresh"),
			)
			return nil, false
		}
		rep, err := uc.catalog.SchemaRepresentation(entityType)
		if err != nil {
			slog.Info("No schema available - skipping",
				slog.String("type", md.Type),
				slog.String("entityid", entityID),
				slog.String("error", err.Error()),
				slog.String("module", "refresh"),
			)
			return nil, false
		}
		return schemaAutoRefreshFields(rep), true
	}

	configured, _ := md.AutoRefresh()[domain.FieldsKey].(map[string]any)
	if len(configured) == 0 {
		slog.Info("No fields configured for auto refresh and allow all is disabled - skipping",
			slog.String("type", md.Type),
			slog.String("entityid", entityID),
			slog.String("module", "refresh"),
		)
		return nil, false
	}

	allowed := make([]string, 0, len(configured))
	for field, enabled := range configured {
		if on, _ := enabled.(bool); on {
			allowed = append(allowed, field)
		}
	}
	sort.Strings(allowed)
	return allowed, true
}

// schemaAutoRefreshFields walks properties.autoRefresh.properties.fields.
// properties of a schema representation and returns the declared field names.
func schemaAutoRefreshFields(rep map[string]any) []string {
	properties, _ := rep[domain.PropertiesKey].(map[string]any)
	autoRefresh, _ := properties[domain.AutoRefreshKey].(map[string]any)
	refreshProps, _ := autoRefresh[domain.PropertiesKey].(map[string]any)
	fields, _ := refreshProps[domain.FieldsKey].(map[string]any)
	fieldProps, _ := fields[domain.PropertiesKey].(map[string]any)

	names := make([]string, 0, len(fieldProps))
	for name := range fieldProps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func updatedFields(imported map[string]any, allowedFields []string) map[string]any {
	metaDataFields, _ := imported[domain.MetaDataFieldsKey].(map[string]any)
	updates := map[string]any{}
	for _, field := range allowedFields {
		if value, ok := metaDataFields[field]; ok {
			updates[field] = value
		}
	}
	return updates
}

func removedFields(imported map[string]any, allowedFields []string) []string {
	metaDataFields, _ := imported[domain.MetaDataFieldsKey].(map[string]any)
	var removed []string
	for _, field := range allowedFields {
		if _, ok := metaDataFields[field]; !ok {
			removed = append(removed, field)
		}
	}
	return removed
}
