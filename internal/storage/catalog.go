package storage

import (
	"fmt"
	"slices"

	"github.com/roach88/ground/internal/ir"
)

// Kind is a field's value kind.
type Kind int

const (
	KindInt Kind = iota + 1
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	}
	return "unknown"
}

// Field describes one column.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
}

// Collection describes one table. Unique lists field sets that must be
// unique together; Indexed lists fields adapters may index for Select.
type Collection struct {
	Name    string
	Fields  []Field
	Unique  [][]string
	Indexed []string
}

// Field returns the named field.
func (c Collection) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IsIndexed reports whether adapters keep an index on field.
func (c Collection) IsIndexed(field string) bool {
	if slices.Contains(c.Indexed, field) {
		return true
	}
	for _, u := range c.Unique {
		if len(u) == 1 && u[0] == field {
			return true
		}
	}
	return false
}

// CheckRecord validates r against c. A full record must carry every
// required field; a partial one (an Update set) need not.
func (c Collection) CheckRecord(r Record, full bool) error {
	for name, v := range r {
		f, ok := c.Field(name)
		if !ok {
			return fmt.Errorf("%w: %s has no field %q", ErrInvalidRecord, c.Name, name)
		}
		if err := checkKind(c.Name, f, v); err != nil {
			return err
		}
	}
	if !full {
		return nil
	}
	for _, f := range c.Fields {
		if _, ok := r[f.Name]; !ok && !f.Optional {
			return fmt.Errorf("%w: %s.%s is required", ErrInvalidRecord, c.Name, f.Name)
		}
	}
	return nil
}

// CheckPredicates validates predicate fields and value kinds.
func (c Collection) CheckPredicates(preds []Predicate) error {
	for _, p := range preds {
		f, ok := c.Field(p.Field)
		if !ok {
			return fmt.Errorf("%w: %s has no field %q", ErrInvalidRecord, c.Name, p.Field)
		}
		if err := checkKind(c.Name, f, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(coll string, f Field, v ir.IRValue) error {
	switch v.(type) {
	case ir.IRInt:
		if f.Kind == KindInt {
			return nil
		}
	case ir.IRString:
		if f.Kind == KindString {
			return nil
		}
	}
	return fmt.Errorf("%w: %s.%s wants %s, got %s", ErrInvalidRecord, coll, f.Name, f.Kind, ir.TypeName(v))
}

// Catalog is the set of collections an adapter serves.
type Catalog map[string]Collection

// Lookup returns the named collection or ErrUnknownCollection.
func (c Catalog) Lookup(name string) (Collection, error) {
	coll, ok := c[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return coll, nil
}

// Names returns the collection names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func newCatalog(colls ...Collection) Catalog {
	c := make(Catalog, len(colls))
	for _, coll := range colls {
		c[coll.Name] = coll
	}
	return c
}

func intField(name string) Field { return Field{Name: name, Kind: KindInt} }
func strField(name string) Field { return Field{Name: name, Kind: KindString} }
func optInt(name string) Field { return Field{Name: name, Kind: KindInt, Optional: true} }
func optString(name string) Field { return Field{Name: name, Kind: KindString, Optional: true} }
func unique(fields ...string) []string { return fields }

// itemKind builds the collection for a concrete item kind.
func itemKind(name string, extra ...Field) Collection {
	fields := append([]Field{intField("item_id"), strField("name"), strField("source_key")}, extra...)
	return Collection{
		Name:   name,
		Fields: fields,
		Unique: [][]string{unique("item_id"), unique("source_key")},
	}
}

// versionKind builds the collection for a concrete version kind owned by
// the item referenced in owner.
func versionKind(name, owner string, extra ...Field) Collection {
	fields := append([]Field{intField("id"), intField(owner)}, extra...)
	return Collection{
		Name:    name,
		Fields:  fields,
		Unique:  [][]string{unique("id")},
		Indexed: []string{owner},
	}
}

// membership builds a join collection between a version and its members.
func membership(name, owner, member string) Collection {
	return Collection{
		Name:    name,
		Fields:  []Field{intField(owner), intField(member)},
		Unique:  [][]string{unique(owner, member)},
		Indexed: []string{owner},
	}
}

// keyed builds a per-owner key/value collection.
func keyed(name, owner string, fields ...Field) Collection {
	return Collection{
		Name:    name,
		Fields:  append([]Field{intField(owner), strField("key")}, fields...),
		Unique:  [][]string{unique(owner, "key")},
		Indexed: []string{owner},
	}
}

// Collection names.
const (
	Items                    = "item"
	Versions                 = "version"
	VersionSuccessors        = "version_successor"
	ItemTags                 = "item_tag"
	RichVersions             = "rich_version"
	RichVersionTags          = "rich_version_tag"
	RichVersionParameters    = "rich_version_external_parameter"
	Nodes                    = "node"
	NodeVersions             = "node_version"
	Edges                    = "edge"
	EdgeVersions             = "edge_version"
	Graphs                   = "graph"
	GraphVersions            = "graph_version"
	GraphVersionEdges        = "graph_version_edge"
	Structures               = "structure"
	StructureVersions        = "structure_version"
	StructureAttributes      = "structure_version_attribute"
	LineageEdges             = "lineage_edge"
	LineageEdgeVersions      = "lineage_edge_version"
	LineageGraphs            = "lineage_graph"
	LineageGraphVersions     = "lineage_graph_version"
	LineageGraphVersionEdges = "lineage_graph_version_edge"
)

// Schema is the catalog every adapter serves.
var Schema = newCatalog(
	Collection{
		Name:   Items,
		Fields: []Field{intField("id"), strField("type")},
		Unique: [][]string{unique("id")},
	},
	Collection{
		Name:    Versions,
		Fields:  []Field{intField("id"), intField("item_id")},
		Unique:  [][]string{unique("id")},
		Indexed: []string{"item_id"},
	},
	Collection{
		Name: VersionSuccessors,
		Fields: []Field{
			intField("id"), intField("item_id"),
			intField("from_version_id"), intField("to_version_id"),
		},
		Unique: [][]string{
			unique("id"),
			unique("item_id", "from_version_id", "to_version_id"),
		},
		Indexed: []string{"item_id", "to_version_id"},
	},
	keyed(ItemTags, "item_id", optString("value"), optString("type")),
	Collection{
		Name: RichVersions,
		Fields: []Field{
			intField("id"), intField("item_id"),
			optInt("structure_version_id"), optString("reference"),
		},
		Unique:  [][]string{unique("id")},
		Indexed: []string{"item_id"},
	},
	keyed(RichVersionTags, "rich_version_id", optString("value"), optString("type")),
	keyed(RichVersionParameters, "rich_version_id", strField("value")),

	itemKind(Nodes),
	versionKind(NodeVersions, "node_id"),

	itemKind(Edges, intField("from_node_id"), intField("to_node_id")),
	versionKind(EdgeVersions, "edge_id",
		intField("from_node_version_start_id"), optInt("from_node_version_end_id"),
		intField("to_node_version_start_id"), optInt("to_node_version_end_id"),
	),

	itemKind(Graphs),
	versionKind(GraphVersions, "graph_id"),
	membership(GraphVersionEdges, "graph_version_id", "edge_version_id"),

	itemKind(Structures),
	versionKind(StructureVersions, "structure_id"),
	keyed(StructureAttributes, "structure_version_id", strField("type")),

	itemKind(LineageEdges),
	versionKind(LineageEdgeVersions, "lineage_edge_id",
		intField("from_rich_version_id"), intField("to_rich_version_id"), optInt("principal_id"),
	),

	itemKind(LineageGraphs),
	versionKind(LineageGraphVersions, "lineage_graph_id"),
	membership(LineageGraphVersionEdges, "lineage_graph_version_id", "lineage_edge_version_id"),
)
