package model

// RichVersion is the envelope every concrete version kind is built from.
// All fields are immutable once persisted.
type RichVersion struct {
	ID                 ID
	ItemID             ID
	Tags               map[string]Tag
	StructureVersionID OptionalID
	// Reference is optional free-form provenance (for example a URL).
	Reference           *string
	ReferenceParameters map[string]string
}

// RichVersionSpec is the caller-supplied part of a new rich version.
type RichVersionSpec struct {
	Tags                map[string]Tag
	StructureVersionID  OptionalID
	Reference           *string
	ReferenceParameters map[string]string
}

// NodeVersion is one state of a node.
type NodeVersion struct {
	RichVersion
	NodeID ID
}

// EdgeVersion is one state of an edge. Each endpoint records the node
// version at which this edge version starts being valid, and the node
// version at which it stopped (absent while still current).
type EdgeVersion struct {
	RichVersion
	EdgeID                 ID
	FromNodeVersionStartID ID
	FromNodeVersionEndID   OptionalID
	ToNodeVersionStartID   ID
	ToNodeVersionEndID     OptionalID
}

// GraphVersion is one state of a graph: a set of edge versions.
type GraphVersion struct {
	RichVersion
	GraphID        ID
	EdgeVersionIDs []ID
}

// StructureVersion is one state of a structure: typed attribute keys.
type StructureVersion struct {
	ID          ID
	StructureID ID
	Attributes  map[string]ValueType
}

// LineageEdgeVersion links two rich versions.
type LineageEdgeVersion struct {
	RichVersion
	LineageEdgeID     ID
	FromRichVersionID ID
	ToRichVersionID   ID
	PrincipalID       OptionalID
}

// LineageGraphVersion is one state of a lineage graph.
type LineageGraphVersion struct {
	RichVersion
	LineageGraphID        ID
	LineageEdgeVersionIDs []ID
}

// Ref returns a pointer to s, for optional references.
func Ref(s string) *string { return &s }

// EdgeVersionSpec is the caller-supplied part of a new edge version.
// End ids are normally left absent and closed by later versions.
type EdgeVersionSpec struct {
	RichVersionSpec
	FromNodeVersionStartID ID
	FromNodeVersionEndID   OptionalID
	ToNodeVersionStartID   ID
	ToNodeVersionEndID     OptionalID
}

// GraphVersionSpec is the caller-supplied part of a new graph version.
type GraphVersionSpec struct {
	RichVersionSpec
	EdgeVersionIDs []ID
}

// LineageEdgeVersionSpec is the caller-supplied part of a new lineage edge
// version.
type LineageEdgeVersionSpec struct {
	RichVersionSpec
	FromRichVersionID ID
	ToRichVersionID   ID
	PrincipalID       OptionalID
}

// LineageGraphVersionSpec is the caller-supplied part of a new lineage
// graph version.
type LineageGraphVersionSpec struct {
	RichVersionSpec
	LineageEdgeVersionIDs []ID
}
