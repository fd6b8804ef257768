// Package model defines the items, versions and tags tracked by the store.
//
// Types here are plain values. They carry no storage handles and no
// behaviour beyond validation, so they can be passed freely between
// goroutines and compared in tests.
package model

import (
	"fmt"
	"strconv"
)

// ID identifies an item, a version or a version successor. The three id
// spaces are disjoint (see package ids).
type ID int64

// RootID is the sentinel parent of the first version of every item.
const RootID ID = 0

// IsRoot reports whether id is the start-of-history sentinel.
func (id ID) IsRoot() bool { return id == RootID }

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// OptionalID is an ID that may be absent. The zero value is absent.
type OptionalID struct {
	ID    ID
	Valid bool
}

// Some returns a present OptionalID.
func Some(id ID) OptionalID { return OptionalID{ID: id, Valid: true} }

// None returns an absent OptionalID.
func None() OptionalID { return OptionalID{} }

// Get returns the id and whether it is present.
func (o OptionalID) Get() (ID, bool) { return o.ID, o.Valid }

func (o OptionalID) String() string {
	if !o.Valid {
		return "none"
	}
	return o.ID.String()
}

// ItemType names the kind of a versioned entity.
type ItemType string

const (
	ItemNode         ItemType = "node"
	ItemEdge         ItemType = "edge"
	ItemGraph        ItemType = "graph"
	ItemStructure    ItemType = "structure"
	ItemLineageEdge  ItemType = "lineage_edge"
	ItemLineageGraph ItemType = "lineage_graph"
)

// ItemTypes lists every item type in a stable order.
var ItemTypes = []ItemType{
	ItemNode, ItemEdge, ItemGraph, ItemStructure, ItemLineageEdge, ItemLineageGraph,
}

// ParseItemType validates s as an ItemType.
func ParseItemType(s string) (ItemType, error) {
	for _, t := range ItemTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown item type %q", s)
}

// Item is the generic envelope shared by every versioned entity.
type Item struct {
	ID        ID
	Type      ItemType
	Name      string
	SourceKey string
	Tags      map[string]Tag
}

// Node is a vertex in the user's metadata graph.
type Node struct {
	Item
}

// Edge connects two nodes. Its versions track which node versions they
// are valid for.
type Edge struct {
	Item
	FromNodeID ID
	ToNodeID   ID
}

// Graph groups edges; its versions reference edge-version sets.
type Graph struct {
	Item
}

// Structure declares a tag schema; its versions carry typed attributes.
type Structure struct {
	Item
}

// LineageEdge records that one rich version was derived from another.
type LineageEdge struct {
	Item
}

// LineageGraph groups lineage edges.
type LineageGraph struct {
	Item
}

// VersionSuccessor records that To is a direct child of From within one
// item's history. From may be RootID.
type VersionSuccessor struct {
	ID     ID
	ItemID ID
	From   ID
	To     ID
}
