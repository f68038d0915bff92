package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/openfed/metaregistry/internal/domain"
)

// Collection names outside the entity-type collections.
const (
	SequencesCollection        = "sequences"
	ScopesCollection           = "scopes"
	SessionsCollection         = "sessions"
	MigrationRecordsCollection = "migration_records"
)

var (
	collectionNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)
	indexNameRE      = regexp.MustCompile(`^[a-z0-9_]+$`)
	pathSegmentRE    = regexp.MustCompile(`^[a-zA-Z0-9:_\-]+$`)
)

// DocumentStore is a document store on Postgres: every collection is a table
// of (id text primary key, doc jsonb). All document fields are addressed by
// dotted jsonb paths, mirroring how the schemas describe them.
type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// IndexSpec describes a secondary index over a collection.
type IndexSpec struct {
	Name            string
	Path            string // dotted document path, ignored for Text indexes
	Unique          bool
	Descending      bool
	CaseInsensitive bool
	Text            bool // full-document text index
}

func (s *DocumentStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	if err := validCollection(collection); err != nil {
		return false, err
	}
	return s.db.WithContext(ctx).Migrator().HasTable(collection), nil
}

func (s *DocumentStore) CreateCollection(ctx context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id text PRIMARY KEY, doc jsonb NOT NULL)`, collection)).
		Error
}

func (s *DocumentStore) EnsureIndex(ctx context.Context, collection string, spec IndexSpec) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if !indexNameRE.MatchString(spec.Name) {
		return fmt.Errorf("invalid index name %q", spec.Name)
	}

	var stmt string
	if spec.Text {
		stmt = fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (to_tsvector('simple', doc::text))`,
			spec.Name, collection,
		)
	} else {
		expr, err := jsonbTextExpr(spec.Path)
		if err != nil {
			return err
		}
		if spec.CaseInsensitive {
			expr = "lower(" + expr + ")"
		}
		direction := ""
		if spec.Descending {
			direction = " DESC"
		}
		unique := ""
		if spec.Unique {
			unique = "UNIQUE "
		}
		stmt = fmt.Sprintf(
			`CREATE %sINDEX IF NOT EXISTS %s ON %s ((%s)%s)`,
			unique, spec.Name, collection, expr, direction,
		)
	}
	return s.db.WithContext(ctx).Exec(stmt).Error
}

func (s *DocumentStore) HasIndex(ctx context.Context, collection, name string) (bool, error) {
	if err := validCollection(collection); err != nil {
		return false, err
	}
	var count int64
	err := s.db.WithContext(ctx).
		Raw(`SELECT count(*) FROM pg_indexes WHERE tablename = ? AND indexname = ?`, collection, name).
		Scan(&count).Error
	return count > 0, err
}

// IndexNamesLike lists index names on a collection matching a SQL LIKE
// pattern, used to clean up superseded index definitions.
func (s *DocumentStore) IndexNamesLike(ctx context.Context, collection, pattern string) ([]string, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	var names []string
	err := s.db.WithContext(ctx).
		Raw(`SELECT indexname FROM pg_indexes WHERE tablename = ? AND indexname LIKE ? ORDER BY indexname`, collection, pattern).
		Scan(&names).Error
	return names, err
}

func (s *DocumentStore) DropIndex(ctx context.Context, name string) error {
	if !indexNameRE.MatchString(name) {
		return fmt.Errorf("invalid index name %q", name)
	}
	return s.db.WithContext(ctx).Exec(`DROP INDEX IF EXISTS ` + name).Error
}

func (s *DocumentStore) FindAll(ctx context.Context, collection string) ([]*domain.MetaData, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	var rows []docRow
	err := s.db.WithContext(ctx).
		Raw(`SELECT id, doc FROM ` + collection + ` ORDER BY id`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.MetaData, 0, len(rows))
	for _, row := range rows {
		md, err := decodeMetaData(row)
		if err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*domain.MetaData, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	var rows []docRow
	err := s.db.WithContext(ctx).
		Raw(`SELECT id, doc FROM `+collection+` WHERE id = ?`, id).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NotFoundError{Resource: collection + "/" + id}
	}
	return decodeMetaData(rows[0])
}

func (s *DocumentStore) Insert(ctx context.Context, collection string, md *domain.MetaData) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	doc, err := encodeMetaData(md)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Exec(`INSERT INTO `+collection+` (id, doc) VALUES (?, ?::jsonb)`, md.ID, doc).
		Error
}

// ReplaceIfChanged replaces a stored document inside a row-locked
// transaction. Identical data yields ReplaceUnchanged without a write; a
// version mismatch reports a ConflictError.
func (s *DocumentStore) ReplaceIfChanged(ctx context.Context, collection string, md *domain.MetaData, expectedVersion int64) (domain.ReplaceOutcome, error) {
	if err := validCollection(collection); err != nil {
		return domain.ReplaceUnchanged, err
	}

	outcome := domain.ReplaceUnchanged
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []docRow
		if err := tx.Raw(`SELECT id, doc FROM `+collection+` WHERE id = ? FOR UPDATE`, md.ID).Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return domain.NotFoundError{Resource: collection + "/" + md.ID}
		}
		stored, err := decodeMetaData(rows[0])
		if err != nil {
			return err
		}
		if stored.Version != expectedVersion {
			return domain.ConflictError{Collection: collection, ID: md.ID}
		}

		equal, err := jsonEqual(stored.Data, md.Data)
		if err != nil {
			return err
		}
		if equal {
			outcome = domain.ReplaceUnchanged
			return nil
		}

		doc, err := encodeMetaData(md)
		if err != nil {
			return err
		}
		if err := tx.Exec(`UPDATE `+collection+` SET doc = ?::jsonb WHERE id = ?`, doc, md.ID).Error; err != nil {
			return err
		}
		outcome = domain.ReplaceReplaced
		return nil
	})
	if err != nil {
		return domain.ReplaceUnchanged, err
	}
	return outcome, nil
}

// Filter selects documents by a dotted path; exactly one of Eq or In is set.
type Filter struct {
	Path string
	Eq   any
	In   []string
}

// FindAndRemove deletes all documents matching the filter and returns them,
// ordered by id. Zero matches is not an error.
func (s *DocumentStore) FindAndRemove(ctx context.Context, collection string, filter Filter) ([]*domain.MetaData, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	expr, err := jsonbTextExpr(filter.Path)
	if err != nil {
		return nil, err
	}

	var (
		condition string
		args      []any
	)
	switch {
	case filter.In != nil:
		if len(filter.In) == 0 {
			return nil, nil
		}
		condition = expr + ` IN ?`
		args = append(args, filter.In)
	default:
		condition = expr + ` = ?`
		args = append(args, fmt.Sprintf("%v", filter.Eq))
	}

	var rows []docRow
	query := `WITH removed AS (DELETE FROM ` + collection + ` WHERE ` + condition + ` RETURNING id, doc) SELECT id, doc FROM removed ORDER BY id`
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*domain.MetaData, 0, len(rows))
	for _, row := range rows {
		md, err := decodeMetaData(row)
		if err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, nil
}

// BulkInsert inserts documents in the given order. An empty batch is a no-op
// so run-always migrations stay idempotent.
func (s *DocumentStore) BulkInsert(ctx context.Context, collection string, docs []*domain.MetaData) (int, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, md := range docs {
			doc, err := encodeMetaData(md)
			if err != nil {
				return err
			}
			if err := tx.Exec(`INSERT INTO `+collection+` (id, doc) VALUES (?, ?::jsonb)`, md.ID, doc).Error; err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Distinct scans a dotted path across a collection and returns the distinct
// scalar values, flattening array-valued fields.
func (s *DocumentStore) Distinct(ctx context.Context, collection, path string) ([]string, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	expr, err := jsonbExpr(path)
	if err != nil {
		return nil, err
	}

	var raw []string
	query := `SELECT DISTINCT (` + expr + `)::text FROM ` + collection + ` WHERE ` + expr + ` IS NOT NULL`
	if err := s.db.WithContext(ctx).Raw(query).Scan(&raw).Error; err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var values []string
	add := func(v string) {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			values = append(values, v)
		}
	}
	for _, item := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(item), &decoded); err != nil {
			return nil, fmt.Errorf("distinct value %q: %w", item, err)
		}
		switch v := decoded.(type) {
		case string:
			add(v)
		case []any:
			for _, elem := range v {
				if str, ok := elem.(string); ok {
					add(str)
				}
			}
		}
	}
	sort.Strings(values)
	return values, nil
}

// Exists reports whether a document with the given id is present.
func (s *DocumentStore) Exists(ctx context.Context, collection, id string) (bool, error) {
	if err := validCollection(collection); err != nil {
		return false, err
	}
	var count int64
	err := s.db.WithContext(ctx).
		Raw(`SELECT count(*) FROM `+collection+` WHERE id = ?`, id).
		Scan(&count).Error
	return count > 0, err
}

func (s *DocumentStore) Count(ctx context.Context, collection string) (int64, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.WithContext(ctx).Raw(`SELECT count(*) FROM ` + collection).Scan(&count).Error
	return count, err
}

func (s *DocumentStore) RemoveAll(ctx context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(`DELETE FROM ` + collection).Error
}

// InsertDoc stores an arbitrary document under the given id.
func (s *DocumentStore) InsertDoc(ctx context.Context, collection, id string, doc any) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Exec(`INSERT INTO `+collection+` (id, doc) VALUES (?, ?::jsonb)`, id, string(payload)).
		Error
}

// NextSequenceValue atomically increments a counter document and returns the
// new value.
func (s *DocumentStore) NextSequenceValue(ctx context.Context, name string) (int64, error) {
	var values []int64
	query := `UPDATE ` + SequencesCollection +
		` SET doc = jsonb_set(doc, '{value}', to_jsonb((doc->>'value')::bigint + 1)) WHERE id = ? RETURNING (doc->>'value')::bigint`
	if err := s.db.WithContext(ctx).Raw(query, name).Scan(&values).Error; err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, domain.NotFoundError{Resource: SequencesCollection + "/" + name}
	}
	return values[0], nil
}

type docRow struct {
	ID  string
	Doc string
}

func encodeMetaData(md *domain.MetaData) (string, error) {
	// The id lives in its own column, not inside the document.
	stripped := *md
	stripped.ID = ""
	payload, err := json.Marshal(&stripped)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeMetaData(row docRow) (*domain.MetaData, error) {
	var md domain.MetaData
	if err := json.Unmarshal([]byte(row.Doc), &md); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", row.ID, err)
	}
	md.ID = row.ID
	return &md, nil
}

func jsonEqual(a, b map[string]any) (bool, error) {
	ab, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

func validCollection(collection string) error {
	if !collectionNameRE.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	return nil
}

// jsonbTextExpr renders a dotted path as a jsonb text extraction.
func jsonbTextExpr(path string) (string, error) {
	segments, err := pathSegments(path)
	if err != nil {
		return "", err
	}
	return `doc #>> '{` + strings.Join(segments, ",") + `}'`, nil
}

// jsonbExpr renders a dotted path as a jsonb value extraction.
func jsonbExpr(path string) (string, error) {
	segments, err := pathSegments(path)
	if err != nil {
		return "", err
	}
	return `doc #> '{` + strings.Join(segments, ",") + `}'`, nil
}

func pathSegments(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty document path")
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if !pathSegmentRE.MatchString(seg) {
			return nil, fmt.Errorf("invalid document path segment %q", seg)
		}
	}
	return segments, nil
}
