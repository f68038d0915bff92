package migration

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/openfed/metaregistry/internal/domain"
	"github.com/openfed/metaregistry/internal/infra/repository"
	"github.com/openfed/metaregistry/internal/usecase"
)

const changeSetAuthor = "admin@openfed.org"

// seedSequenceStart is the first legacy eid handed out after seeding.
const seedSequenceStart = 999

// Changelog declares the registry's schema change-sets. Actions are written
// create-if-absent so an aborted run can safely be retried.
type Changelog struct {
	store   *repository.DocumentStore
	catalog usecase.SchemaCatalog
}

func NewChangelog(store *repository.DocumentStore, catalog usecase.SchemaCatalog) *Changelog {
	return &Changelog{store: store, catalog: catalog}
}

// ChangeSets returns the full ordered registry.
func (c *Changelog) ChangeSets() []ChangeSet {
	return []ChangeSet{
		{Order: 1, ID: "createCollections", Author: changeSetAuthor, Action: c.createCollections},
		{Order: 2, ID: "addTextIndexes", Author: changeSetAuthor, Action: c.addTextIndexes},
		{Order: 3, ID: "addDefaultScopes", Author: changeSetAuthor, Action: c.addDefaultScopes},
		{Order: 4, ID: "removeSessions", Author: changeSetAuthor, RunAlways: true, Action: c.removeSessions},
		{Order: 5, ID: "revisionCreatedIndex", Author: changeSetAuthor, Action: c.revisionCreatedIndex},
		{Order: 5, ID: "revisionTerminatedIndex", Author: changeSetAuthor, Action: c.revisionTerminatedIndex},
		{Order: 6, ID: "caseInsensitiveIndexEntityID", Author: changeSetAuthor, Action: c.caseInsensitiveIndexEntityID},
		{Order: 7, ID: "moveResourceServers", Author: changeSetAuthor, RunAlways: true, Action: c.moveResourceServers},
	}
}

func (c *Changelog) createCollections(ctx context.Context) error {
	if err := c.createSchemas(ctx, []domain.EntityType{domain.TypeSP, domain.TypeIDP, domain.TypeRP}); err != nil {
		return err
	}

	exists, err := c.store.CollectionExists(ctx, repository.SequencesCollection)
	if err != nil {
		return err
	}
	if !exists {
		slog.Info("Creating sequence collection",
			slog.Int("start", seedSequenceStart),
			slog.String("module", "migration"),
		)
		if err := c.store.CreateCollection(ctx, repository.SequencesCollection); err != nil {
			return err
		}
		seq := domain.Sequence{Name: usecase.EIDSequence, Value: seedSequenceStart}
		if err := c.store.InsertDoc(ctx, repository.SequencesCollection, seq.Name, seq); err != nil {
			return err
		}
	}

	for _, collection := range []string{repository.ScopesCollection, repository.SessionsCollection, domain.ChangeRequestsCollection} {
		if err := c.store.CreateCollection(ctx, collection); err != nil {
			return err
		}
	}
	return nil
}

func (c *Changelog) addTextIndexes(ctx context.Context) error {
	for _, entityType := range domain.EntityTypes {
		collection := entityType.Collection()
		if err := c.store.CreateCollection(ctx, collection); err != nil {
			return err
		}
		err := c.store.EnsureIndex(ctx, collection, repository.IndexSpec{
			Name: collection + "_doc_text",
			Text: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Changelog) addDefaultScopes(ctx context.Context) error {
	count, err := c.store.Count(ctx, repository.ScopesCollection)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	names, err := c.store.Distinct(ctx, domain.TypeRP.Collection(), "data.metaDataFields.scopes")
	if err != nil {
		return err
	}
	for _, name := range names {
		scope := domain.Scope{Name: name, Titles: map[string]string{}}
		if err := c.store.InsertDoc(ctx, repository.ScopesCollection, uuid.NewString(), scope); err != nil {
			return err
		}
	}
	return nil
}

func (c *Changelog) removeSessions(ctx context.Context) error {
	return c.store.RemoveAll(ctx, repository.SessionsCollection)
}

func (c *Changelog) revisionCreatedIndex(ctx context.Context) error {
	for _, entityType := range domain.EntityTypes {
		collection := entityType.Collection()
		if err := c.store.CreateCollection(ctx, collection); err != nil {
			return err
		}
		err := c.store.EnsureIndex(ctx, collection, repository.IndexSpec{
			Name:       collection + "_revision_created_desc",
			Path:       "revision.created",
			Descending: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Changelog) revisionTerminatedIndex(ctx context.Context) error {
	for _, entityType := range domain.EntityTypes {
		collection := entityType.RevisionCollection()
		if err := c.store.CreateCollection(ctx, collection); err != nil {
			return err
		}
		err := c.store.EnsureIndex(ctx, collection, repository.IndexSpec{
			Name:       collection + "_terminated_desc",
			Path:       "revision.terminated",
			Descending: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Changelog) caseInsensitiveIndexEntityID(ctx context.Context) error {
	for _, entityType := range domain.EntityTypes {
		if entityType == domain.TypeSTT {
			continue
		}
		collection := entityType.Collection()
		if err := c.store.CreateCollection(ctx, collection); err != nil {
			return err
		}

		plain := collection + "_data_entityid_unique"
		has, err := c.store.HasIndex(ctx, collection, plain)
		if err != nil {
			return err
		}
		if has {
			if err := c.store.DropIndex(ctx, plain); err != nil {
				return err
			}
		}

		err = c.store.EnsureIndex(ctx, collection, repository.IndexSpec{
			Name:            collection + "_data_entityid_unique_ci",
			Path:            "data.entityid",
			Unique:          true,
			CaseInsensitive: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Changelog) moveResourceServers(ctx context.Context) error {
	if err := c.createSchemas(ctx, []domain.EntityType{domain.TypeRS}); err != nil {
		return err
	}

	resourceServers, err := c.store.FindAndRemove(ctx, domain.TypeRP.Collection(), repository.Filter{
		Path: "data.metaDataFields.isResourceServer",
		Eq:   true,
	})
	if err != nil {
		return err
	}

	rep, err := c.catalog.SchemaRepresentation(domain.TypeRS)
	if err != nil {
		return errors.Wrap(err, "loading resource server schema")
	}
	shape, err := resourceServerShape(rep)
	if err != nil {
		return err
	}

	for _, rs := range resourceServers {
		shape.apply(rs)
	}
	inserted, err := c.store.BulkInsert(ctx, domain.TypeRS.Collection(), resourceServers)
	if err != nil {
		return err
	}
	slog.Info("Migrated relying parties to resource server collection",
		slog.Int("count", inserted),
		slog.String("module", "migration"),
	)

	ids := make([]string, 0, len(resourceServers))
	for _, rs := range resourceServers {
		ids = append(ids, rs.ID)
	}
	revisions, err := c.store.FindAndRemove(ctx, domain.TypeRP.RevisionCollection(), repository.Filter{
		Path: "revision.parentId",
		In:   ids,
	})
	if err != nil {
		return err
	}
	for _, rev := range revisions {
		shape.apply(rev)
	}
	insertedRevisions, err := c.store.BulkInsert(ctx, domain.TypeRS.RevisionCollection(), revisions)
	if err != nil {
		return err
	}
	slog.Info("Migrated relying party revisions to resource server revisions collection",
		slog.Int("count", insertedRevisions),
		slog.String("module", "migration"),
	)
	return nil
}

// createSchemas creates a type's current and revision collections with the
// standard index set.
func (c *Changelog) createSchemas(ctx context.Context, entityTypes []domain.EntityType) error {
	for _, entityType := range entityTypes {
		collection := entityType.Collection()
		revisionCollection := entityType.RevisionCollection()

		for _, name := range []string{collection, revisionCollection} {
			if err := c.store.CreateCollection(ctx, name); err != nil {
				return err
			}
		}

		// Clean up superseded eid index definitions before rebuilding.
		stale, err := c.store.IndexNamesLike(ctx, collection, "%data_eid%")
		if err != nil {
			return err
		}
		for _, name := range stale {
			if name == collection+"_data_eid_unique" {
				continue
			}
			if err := c.store.DropIndex(ctx, name); err != nil {
				return err
			}
		}

		indexes := []repository.IndexSpec{
			{Name: collection + "_data_eid_unique", Path: "data.eid", Unique: true},
			{Name: collection + "_data_entityid_unique", Path: "data.entityid", Unique: true},
			{Name: collection + "_data_state", Path: "data.state"},
		}
		if entityType != domain.TypeRS {
			indexes = append(indexes,
				repository.IndexSpec{Name: collection + "_data_allowedall", Path: "data.allowedall"},
				repository.IndexSpec{Name: collection + "_data_allowed_entities_name", Path: "data.allowedEntities.name"},
				repository.IndexSpec{Name: collection + "_data_institution_id", Path: "data.metaDataFields.coin:institution_id"},
			)
		}
		for _, spec := range indexes {
			if err := c.store.EnsureIndex(ctx, collection, spec); err != nil {
				return err
			}
		}

		err = c.store.EnsureIndex(ctx, revisionCollection, repository.IndexSpec{
			Name: revisionCollection + "_parent_id",
			Path: "revision.parentId",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// rsShape is the field shape the resource server schema declares: exact
// top-level and metaDataFields names plus pattern-matched field names.
type rsShape struct {
	topLevel map[string]bool
	simple   map[string]bool
	patterns []*regexp.Regexp
}

func resourceServerShape(rep map[string]any) (*rsShape, error) {
	properties, ok := rep[domain.PropertiesKey].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resource server schema has no properties")
	}
	metaDataFields, _ := properties[domain.MetaDataFieldsKey].(map[string]any)
	simple, _ := metaDataFields[domain.PropertiesKey].(map[string]any)
	patternProperties, _ := metaDataFields["patternProperties"].(map[string]any)

	shape := &rsShape{
		topLevel: map[string]bool{},
		simple:   map[string]bool{},
	}
	for key := range properties {
		shape.topLevel[key] = true
	}
	for key := range simple {
		shape.simple[key] = true
	}
	for pattern := range patternProperties {
		// Schema patterns apply to the whole field name, not a substring.
		compiled, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, errors.Wrapf(err, "compiling schema pattern %q", pattern)
		}
		shape.patterns = append(shape.patterns, compiled)
	}
	return shape, nil
}

// apply retypes a moved document and strips every field the resource server
// schema does not declare.
func (s *rsShape) apply(md *domain.MetaData) {
	md.Type = domain.TypeRS.String()

	for key := range md.Data {
		if !s.topLevel[key] {
			delete(md.Data, key)
		}
	}

	fields, ok := md.Data[domain.MetaDataFieldsKey].(map[string]any)
	if !ok {
		return
	}
	for key := range fields {
		if s.simple[key] || s.matchesPattern(key) {
			continue
		}
		delete(fields, key)
	}
}

func (s *rsShape) matchesPattern(key string) bool {
	for _, pattern := range s.patterns {
		if pattern.MatchString(key) {
			return true
		}
	}
	return false
}
