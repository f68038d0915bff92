package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openfed/metaregistry/internal/domain"
)

// Catalog loads the JSON schema document for each entity type from a
// configuration directory and caches the parsed representation. Files are
// named <type>.schema.json.
type Catalog struct {
	dir   string
	cache *cache.Cache
}

func NewCatalog(dir string) *Catalog {
	return &Catalog{
		dir:   dir,
		cache: cache.New(10*time.Minute, 15*time.Minute),
	}
}

// SchemaRepresentation returns the raw schema document for a type as nested
// maps, the shape the refresh and migration logic navigate.
func (c *Catalog) SchemaRepresentation(entityType domain.EntityType) (map[string]any, error) {
	key := entityType.String()
	if cached, ok := c.cache.Get(key); ok {
		return cached.(map[string]any), nil
	}

	path := filepath.Join(c.dir, key+".schema.json")
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema for %s: %w", key, err)
	}

	var rep map[string]any
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("parsing schema for %s: %w", key, err)
	}

	c.cache.Set(key, rep, cache.DefaultExpiration)
	return rep, nil
}
