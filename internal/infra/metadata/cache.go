// Package metadata caches class schemas for the lifetime of the process.
// Entries are loaded on first use and never invalidated; picking up class
// changes requires a restart. Concurrent misses for the same key collapse
// into a single upstream fetch.
package metadata

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"csmcp/internal/domain"
	"csmcp/internal/infra/gateway"
)

const subclassPageSize = 500

// Executor is the slice of the gateway the cache needs.
type Executor interface {
	Execute(ctx context.Context, op gateway.Operation) (json.RawMessage, error)
	ObjectStore() string
}

type Cache struct {
	exec    Executor
	logger  *zap.Logger
	metrics domain.Metrics

	mu sync.RWMutex
	// roots maps a system root class to the classes beneath it. A class
	// appears with an empty property list until its full schema is loaded.
	roots map[string]map[string]*domain.ClassSchema
	// loaded holds the classes whose full schema has been fetched. A class
	// can legitimately report zero property descriptors, so loadedness is
	// tracked here rather than inferred from the property list.
	loaded map[string]*domain.ClassSchema

	group singleflight.Group
}

func New(exec Executor, metrics domain.Metrics, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		exec:    exec,
		logger:  logger.Named("metadata"),
		metrics: metrics,
		roots:   make(map[string]map[string]*domain.ClassSchema),
		loaded:  make(map[string]*domain.ClassSchema),
	}
}

// RootClasses lists the valid arguments to ClassesUnderRoot.
func (c *Cache) RootClasses() []string {
	out := make([]string, len(domain.SystemRootClasses))
	copy(out, domain.SystemRootClasses)
	return out
}

func isSystemRoot(name string) bool {
	for _, r := range domain.SystemRootClasses {
		if r == name {
			return true
		}
	}
	return false
}

// ClassesUnderRoot returns the descriptions of every class under a system
// root, including the root itself, sorted by symbolic name.
func (c *Cache) ClassesUnderRoot(ctx context.Context, root string) ([]domain.ClassDescription, error) {
	const op = "metadata.ClassesUnderRoot"
	if !isSystemRoot(root) {
		return nil, domain.E(domain.CodeInvalidArgument, op, "unknown root class "+root, nil)
	}

	if list := c.describeRoot(root); list != nil {
		return list, nil
	}

	_, err, _ := c.group.Do("root:"+root, func() (any, error) {
		// Re-check under the flight: a racing caller may have loaded it.
		if list := c.describeRoot(root); list != nil {
			return nil, nil
		}
		return nil, c.loadRoot(ctx, root)
	})
	if err != nil {
		return nil, err
	}
	return c.describeRoot(root), nil
}

// PropertiesOf returns the full schema for a class, loading and caching it
// on first use. The schema includes the system root the class descends
// from, discovered by walking the superclass chain when unknown.
func (c *Cache) PropertiesOf(ctx context.Context, class string) (*domain.ClassSchema, error) {
	if s := c.lookupLoaded(class); s != nil {
		return s, nil
	}

	v, err, _ := c.group.Do("class:"+class, func() (any, error) {
		if s := c.lookupLoaded(class); s != nil {
			return s, nil
		}
		return c.loadClass(ctx, class)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ClassSchema), nil
}

func (c *Cache) describeRoot(root string) []domain.ClassDescription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	classes, ok := c.roots[root]
	if !ok || len(classes) == 0 {
		return nil
	}
	out := make([]domain.ClassDescription, 0, len(classes))
	for _, s := range classes {
		out = append(out, s.ClassDescription)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SymbolicName < out[j].SymbolicName })
	return out
}

// lookupLoaded returns the schema only when its full metadata has been
// fetched, not when the class is merely known from a root listing.
func (c *Cache) lookupLoaded(class string) *domain.ClassSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded[class]
}

// rootFor scans the cache for the root a class is already known under.
func (c *Cache) rootFor(class string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for root, classes := range c.roots {
		if _, ok := classes[class]; ok {
			return root
		}
	}
	return ""
}

const rootClassesQuery = `
query getClassAndSubclasses($object_store_name: String!, $root_class_name: String!, $page_size: Int!) {
    classDescription(
        repositoryIdentifier: $object_store_name
        identifier: $root_class_name
    ) {
        symbolicName
        displayName
        descriptiveText
    }
    subClassDescriptions(
        repositoryIdentifier: $object_store_name
        identifier: $root_class_name
        pageSize: $page_size
    ) {
        classDescriptions {
            symbolicName
            displayName
            descriptiveText
        }
    }
}`

func (c *Cache) loadRoot(ctx context.Context, root string) error {
	const op = "metadata.loadRoot"
	start := time.Now()

	data, err := c.exec.Execute(ctx, gateway.Operation{
		Name:  "getClassAndSubclasses",
		Query: rootClassesQuery,
		Variables: map[string]any{
			"object_store_name": c.exec.ObjectStore(),
			"root_class_name":   root,
			"page_size":         subclassPageSize,
		},
	})
	c.observe(root, start, err)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}

	var payload struct {
		ClassDescription     *domain.ClassDescription `json:"classDescription"`
		SubClassDescriptions struct {
			ClassDescriptions []domain.ClassDescription `json:"classDescriptions"`
		} `json:"subClassDescriptions"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.E(domain.CodeInternal, op, "decode class list", err)
	}
	if payload.ClassDescription == nil && len(payload.SubClassDescriptions.ClassDescriptions) == 0 {
		return domain.E(domain.CodeNotFound, op, "no classes found under root "+root, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	classes, ok := c.roots[root]
	if !ok {
		classes = make(map[string]*domain.ClassSchema)
		c.roots[root] = classes
	}
	insert := func(desc domain.ClassDescription) {
		if _, exists := classes[desc.SymbolicName]; exists {
			return
		}
		classes[desc.SymbolicName] = &domain.ClassSchema{
			ClassDescription:  desc,
			RootClass:         root,
			NamePropertyIndex: -1,
		}
	}
	if payload.ClassDescription != nil {
		insert(*payload.ClassDescription)
	}
	for _, desc := range payload.SubClassDescriptions.ClassDescriptions {
		insert(desc)
	}

	c.logger.Info("root class cache loaded",
		zap.String("root", root),
		zap.Int("classes", len(classes)),
	)
	return nil
}

type superClassNode struct {
	SymbolicName          string          `json:"symbolicName"`
	SuperClassDescription *superClassNode `json:"superClassDescription"`
}

const classMetadataQuery = `
query getClassMetadata($object_store_name: String!, $class_symbolic_name: String!) {
    classDescription(
        repositoryIdentifier: $object_store_name
        identifier: $class_symbolic_name
    ) {
        namePropertyIndex
        propertyDescriptions {
            symbolicName
            displayName
            descriptiveText
            dataType
            cardinality
            isSearchable
            isSystemOwned
            isHidden
        }
        superClassDescription {
            symbolicName
            superClassDescription {
                symbolicName
                superClassDescription {
                    symbolicName
                }
            }
        }
    }
}`

const superChainQuery = `
query getClassMetadata($object_store_name: String!, $class_symbolic_name: String!) {
    classDescription(
        repositoryIdentifier: $object_store_name
        identifier: $class_symbolic_name
    ) {
        superClassDescription {
            symbolicName
            superClassDescription {
                symbolicName
                superClassDescription {
                    symbolicName
                }
            }
        }
    }
}`

func (c *Cache) loadClass(ctx context.Context, class string) (*domain.ClassSchema, error) {
	const op = "metadata.loadClass"
	start := time.Now()

	data, err := c.exec.Execute(ctx, gateway.Operation{
		Name:  "getClassMetadata",
		Query: classMetadataQuery,
		Variables: map[string]any{
			"object_store_name":   c.exec.ObjectStore(),
			"class_symbolic_name": class,
		},
	})
	c.observe(class, start, err)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}

	var payload struct {
		ClassDescription *struct {
			NamePropertyIndex     *int                         `json:"namePropertyIndex"`
			PropertyDescriptions  []domain.PropertyDescription `json:"propertyDescriptions"`
			SuperClassDescription *superClassNode              `json:"superClassDescription"`
		} `json:"classDescription"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.E(domain.CodeInternal, op, "decode class metadata", err)
	}
	if payload.ClassDescription == nil {
		return nil, domain.E(domain.CodeNotFound, op, "class "+class+" not found", nil)
	}
	node := payload.ClassDescription

	root := c.rootFor(class)
	if root == "" {
		root, err = c.discoverRoot(ctx, class, node.SuperClassDescription)
		if err != nil {
			return nil, err
		}
	}
	// Make sure the class list for this root exists so the class gets a
	// description and siblings become enumerable.
	if _, err := c.ClassesUnderRoot(ctx, root); err != nil {
		return nil, err
	}

	nameIdx := -1
	if node.NamePropertyIndex != nil {
		nameIdx = *node.NamePropertyIndex
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	classes, ok := c.roots[root]
	if !ok {
		classes = make(map[string]*domain.ClassSchema)
		c.roots[root] = classes
	}
	desc := domain.ClassDescription{SymbolicName: class}
	if existing, ok := classes[class]; ok {
		desc = existing.ClassDescription
	}
	schema := &domain.ClassSchema{
		ClassDescription:  desc,
		RootClass:         root,
		NamePropertyIndex: nameIdx,
		Properties:        node.PropertyDescriptions,
	}
	classes[class] = schema
	c.loaded[class] = schema
	return schema, nil
}

// discoverRoot walks the superclass chain until it reaches one of the
// system roots, issuing further queries when the three-level selection
// the metadata query carries runs out.
func (c *Cache) discoverRoot(ctx context.Context, class string, chain *superClassNode) (string, error) {
	const op = "metadata.discoverRoot"
	if isSystemRoot(class) {
		return class, nil
	}

	for chain != nil {
		last := ""
		for n := chain; n != nil; n = n.SuperClassDescription {
			if isSystemRoot(n.SymbolicName) {
				return n.SymbolicName, nil
			}
			last = n.SymbolicName
		}
		if last == "" {
			break
		}

		data, err := c.exec.Execute(ctx, gateway.Operation{
			Name:  "getClassMetadata",
			Query: superChainQuery,
			Variables: map[string]any{
				"object_store_name":   c.exec.ObjectStore(),
				"class_symbolic_name": last,
			},
		})
		if err != nil {
			return "", domain.Wrap(domain.CodeInternal, op, err)
		}
		var payload struct {
			ClassDescription *struct {
				SuperClassDescription *superClassNode `json:"superClassDescription"`
			} `json:"classDescription"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", domain.E(domain.CodeInternal, op, "decode superclass chain", err)
		}
		if payload.ClassDescription == nil {
			break
		}
		chain = payload.ClassDescription.SuperClassDescription
	}
	return "", domain.E(domain.CodeNotFound, op, "no system root found for class "+class, nil)
}

func (c *Cache) observe(key string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveSchemaLoad(key, time.Since(start), err)
	}
}
