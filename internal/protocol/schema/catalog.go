package schema

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Catalog is every compiled schema of one document, addressable by name
// and numeric id.
type Catalog struct {
	trees  []*Tree
	byName map[string]*Tree
	byID   map[uint32]*Tree
}

// Compile builds every schema in doc. All validation failures across the
// document are returned together as one ValidationList.
func Compile(doc Document, opts ...Option) (*Catalog, error) {
	b := NewBuilder(doc.Types, opts...)
	var errs ValidationList
	errs = append(errs, b.declErrs...)
	for _, name := range sortedKeys(b.cycles) {
		errs = append(errs, ValidationError{
			Schema: name,
			Code:   ErrBlockCycle,
			Reason: fmt.Sprintf("block %q contains itself", name),
		})
	}

	c := &Catalog{
		byName: make(map[string]*Tree, len(doc.Schemas)),
		byID:   make(map[uint32]*Tree, len(doc.Schemas)),
	}
	names := make(map[string]bool, len(doc.Schemas))
	ids := make(map[uint32]string, len(doc.Schemas))
	for _, desc := range doc.Schemas {
		if names[desc.Name] {
			errs = append(errs, ValidationError{
				Schema: desc.Name,
				Code:   ErrDuplicateName,
				Reason: "schema name declared twice",
			})
			continue
		}
		names[desc.Name] = true
		if desc.ID != 0 {
			if prev, dup := ids[desc.ID]; dup {
				errs = append(errs, ValidationError{
					Schema: desc.Name,
					Code:   ErrDuplicateID,
					Reason: fmt.Sprintf("id %d already used by %q", desc.ID, prev),
				})
				continue
			}
			ids[desc.ID] = desc.Name
		}

		tree, err := b.Build(desc)
		if err != nil {
			if list, ok := AsValidations(err); ok {
				errs = append(errs, list...)
				continue
			}
			return nil, err
		}
		c.trees = append(c.trees, tree)
		c.byName[tree.Name()] = tree
		if tree.ID() != 0 {
			c.byID[tree.ID()] = tree
		}
	}
	if len(errs) > 0 {
		log.Warn().Int("errors", len(errs)).Msg("schema.Compile failed")
		return nil, errs
	}
	log.Debug().Int("schemas", len(c.trees)).Msg("schema.Compile ok")
	return c, nil
}

func (c *Catalog) ByName(name string) (*Tree, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// ByID looks up a schema by its numeric id. Schemas without an id are
// reachable by name only.
func (c *Catalog) ByID(id uint32) (*Tree, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Names returns schema names in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.trees))
	for i, t := range c.trees {
		out[i] = t.Name()
	}
	return out
}

func (c *Catalog) Trees() []*Tree {
	out := make([]*Tree, len(c.trees))
	copy(out, c.trees)
	return out
}

func (c *Catalog) Len() int { return len(c.trees) }

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
