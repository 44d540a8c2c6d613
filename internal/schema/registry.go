package schema

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kyleking/segmentsql/internal/cache"
	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/logging"
)

// Extensions lists the document extensions a DirSource looks for, in order
var Extensions = []string{".json", ".yaml", ".yml"}

// Source reads raw schema documents
type Source interface {
	Read(ctx context.Context, id string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}

// DirSource reads <dir>/<id>.{json,yaml,yml}
type DirSource struct {
	Dir string
}

// Read returns the first document found for id
func (s DirSource) Read(_ context.Context, id string) ([]byte, error) {
	if !validID(id) {
		return nil, errors.NewSchemaNotFound(id)
	}

	for _, ext := range Extensions {
		path := filepath.Join(s.Dir, id+ext)

		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}

		if !stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, errors.ErrTypeFileSystem, "failed to read schema %s", path)
		}
	}

	return nil, errors.NewSchemaNotFound(id)
}

// List returns the ids of all documents in the directory
func (s DirSource) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, errors.ErrTypeFileSystem, "failed to list schema directory %s", s.Dir)
	}

	var ids []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		for _, known := range Extensions {
			if ext == known {
				ids = append(ids, strings.TrimSuffix(entry.Name(), ext))
				break
			}
		}
	}

	return ids, nil
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// Registry resolves schema ids to immutable definitions, loading each at most
// once per process
type Registry struct {
	source Source
	cache  *cache.Memory[*Definition]
}

// NewRegistry creates a registry over source; a nil source serves only
// registered definitions
func NewRegistry(source Source) *Registry {
	return &Registry{
		source: source,
		cache:  cache.NewMemory[*Definition](),
	}
}

// NewDirRegistry creates a registry reading documents from dir
func NewDirRegistry(dir string) *Registry {
	return NewRegistry(DirSource{Dir: dir})
}

// Register adds a pre-built definition, replacing any loaded one with the same id
func (r *Registry) Register(def *Definition) {
	r.cache.Set(def.ID, def)
}

// Load resolves id, returning a SchemaNotFound error for unknown ids
func (r *Registry) Load(ctx context.Context, id string) (*Definition, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New(errors.ErrTypeValidation, "schema id is required")
	}

	return r.cache.GetOrLoad(ctx, id, r.load)
}

func (r *Registry) load(ctx context.Context, id string) (*Definition, error) {
	if r.source == nil {
		return nil, errors.NewSchemaNotFound(id)
	}

	data, err := r.source.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	def, err := Decode(id, data)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"schema": id,
		"tables": len(def.tables),
		"fields": def.FieldCount(),
	}).Debug("Loaded schema definition")

	return def, nil
}

// List returns every known schema id, sorted
func (r *Registry) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	for _, id := range r.cache.Keys() {
		seen[id] = struct{}{}
	}

	if r.source != nil {
		ids, err := r.source.List(ctx)
		if err != nil {
			return nil, err
		}

		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}
