package ground

import (
	"context"

	"github.com/roach88/ground/internal/dag"
	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
)

// CreateEdge creates an edge between two existing nodes.
func (s *Store) CreateEdge(ctx context.Context, name, sourceKey string, fromNodeID, toNodeID model.ID, tags map[string]model.Tag) (model.Edge, error) {
	item, err := s.CreateItem(ctx, ItemSpec{
		Type:       model.ItemEdge,
		Name:       name,
		SourceKey:  sourceKey,
		Tags:       tags,
		FromNodeID: fromNodeID,
		ToNodeID:   toNodeID,
	})
	if err != nil {
		return model.Edge{}, err
	}
	return model.Edge{Item: item, FromNodeID: fromNodeID, ToNodeID: toNodeID}, nil
}

// RetrieveEdge returns an edge by source key.
func (s *Store) RetrieveEdge(ctx context.Context, sourceKey string) (model.Edge, error) {
	return s.retrieveEdge(ctx, BySourceKey(model.ItemEdge, sourceKey))
}

// RetrieveEdgeByID returns an edge by item id.
func (s *Store) RetrieveEdgeByID(ctx context.Context, id model.ID) (model.Edge, error) {
	return s.retrieveEdge(ctx, ItemRef{ID: model.Some(id), Type: model.ItemEdge})
}

func (s *Store) retrieveEdge(ctx context.Context, ref ItemRef) (model.Edge, error) {
	item, row, err := s.retrieveItem(ctx, "retrieve_edge", ref)
	if err != nil {
		return model.Edge{}, err
	}
	return model.Edge{
		Item:       item,
		FromNodeID: recordID(row, "from_node_id"),
		ToNodeID:   recordID(row, "to_node_id"),
	}, nil
}

// GetEdgeLeaves returns the leaf versions of an edge.
func (s *Store) GetEdgeLeaves(ctx context.Context, sourceKey string) ([]model.ID, error) {
	return s.GetLeaves(ctx, BySourceKey(model.ItemEdge, sourceKey))
}

// CreateEdgeVersion creates a version of an edge valid from the given
// versions of its two nodes. Parent edge versions whose endpoints are
// still open are closed when this version moves an endpoint to a newer
// node version.
func (s *Store) CreateEdgeVersion(ctx context.Context, edgeID model.ID, spec model.EdgeVersionSpec, parentIDs []model.ID) (model.EdgeVersion, error) {
	var (
		out    model.EdgeVersion
		nodes  [2]model.ID
		closed int
	)
	_, err := s.createVersion(ctx, versionWrite{
		op:       "create_edge_version",
		itemID:   edgeID,
		itemType: model.ItemEdge,
		parents:  parentIDs,
		persist: func(tx storage.Tx, id model.ID) error {
			edge, ok, err := selectOne(ctx, tx, storage.Edges, byID("item_id", edgeID))
			if err != nil {
				return err
			}
			if !ok {
				return Consistency(edgeID, "edge item has no %s row", storage.Edges)
			}
			nodes = [2]model.ID{recordID(edge, "from_node_id"), recordID(edge, "to_node_id")}

			refs := []struct {
				node model.ID
				id   model.OptionalID
			}{
				{nodes[0], model.Some(spec.FromNodeVersionStartID)},
				{nodes[0], spec.FromNodeVersionEndID},
				{nodes[1], model.Some(spec.ToNodeVersionStartID)},
				{nodes[1], spec.ToNodeVersionEndID},
			}
			for _, ref := range refs {
				if v, ok := ref.id.Get(); ok {
					if err := checkVersionOf(ctx, tx, ref.node, v); err != nil {
						return err
					}
				}
			}

			rv, err := s.insertRichVersion(ctx, tx, edgeID, id, spec.RichVersionSpec)
			if err != nil {
				return err
			}
			out = model.EdgeVersion{
				RichVersion:            rv,
				EdgeID:                 edgeID,
				FromNodeVersionStartID: spec.FromNodeVersionStartID,
				FromNodeVersionEndID:   spec.FromNodeVersionEndID,
				ToNodeVersionStartID:   spec.ToNodeVersionStartID,
				ToNodeVersionEndID:     spec.ToNodeVersionEndID,
			}
			return tx.Insert(ctx, storage.EdgeVersions, edgeVersionRecord(out))
		},
		placed: func(tx storage.Tx, id model.ID, parents []model.ID) error {
			n, err := s.resolveEndpoints(ctx, tx, out, nodes, parents)
			closed = n
			return err
		},
	})
	if err != nil {
		return model.EdgeVersion{}, err
	}
	for range closed {
		s.metrics.RecordEndpointClosed()
	}
	return out, nil
}

// RetrieveEdgeVersion returns an edge version with its current end ids.
func (s *Store) RetrieveEdgeVersion(ctx context.Context, id model.ID) (model.EdgeVersion, error) {
	rv, row, err := s.retrieveKindVersion(ctx, "retrieve_edge_version", storage.EdgeVersions, id, nil)
	if err != nil {
		return model.EdgeVersion{}, err
	}
	return model.EdgeVersion{
		RichVersion:            rv,
		EdgeID:                 recordID(row, "edge_id"),
		FromNodeVersionStartID: recordID(row, "from_node_version_start_id"),
		FromNodeVersionEndID:   recordOptionalID(row, "from_node_version_end_id"),
		ToNodeVersionStartID:   recordID(row, "to_node_version_start_id"),
		ToNodeVersionEndID:     recordOptionalID(row, "to_node_version_end_id"),
	}, nil
}

// endpoint is one side of an edge version.
type endpoint struct {
	side       string
	node       model.ID
	start      model.ID
	startField string
	endField   string
}

// resolveEndpoints closes the open endpoints of child's parent edge
// versions. For each parent, an endpoint that is open and starts at a
// different node version than child's is closed at the node-history
// parent of child's start. It returns how many endpoints were closed.
func (s *Store) resolveEndpoints(ctx context.Context, tx storage.Tx, child model.EdgeVersion, nodes [2]model.ID, parents []model.ID) (int, error) {
	sides := []endpoint{
		{"from", nodes[0], child.FromNodeVersionStartID, "from_node_version_start_id", "from_node_version_end_id"},
		{"to", nodes[1], child.ToNodeVersionStartID, "to_node_version_start_id", "to_node_version_end_id"},
	}
	histories := make(map[model.ID]*dag.DAG, 2)
	closed := 0

	for _, p := range parents {
		if p.IsRoot() {
			continue
		}
		parent, ok, err := selectOne(ctx, tx, storage.EdgeVersions, byID("id", p))
		if err != nil {
			return closed, err
		}
		if !ok {
			return closed, Consistency(child.EdgeID, "parent %d of edge version %d has no edge version row", p, child.ID)
		}

		for _, ep := range sides {
			if _, isClosed := parent.Int(ep.endField); isClosed {
				continue
			}
			// Same start as the child: the parent is still valid there, so
			// its end stays open rather than closing at the root sentinel.
			if recordID(parent, ep.startField) == ep.start {
				continue
			}

			h, ok := histories[ep.node]
			if !ok {
				if h, err = loadDAG(ctx, tx, ep.node); err != nil {
					return closed, err
				}
				histories[ep.node] = h
			}
			end, err := endpointEnd(h, child, ep)
			if err != nil {
				return closed, err
			}

			n, err := tx.Update(ctx, storage.EdgeVersions, storage.Record{ep.endField: idValue(end)}, byID("id", p))
			if err != nil {
				return closed, err
			}
			if n != 1 {
				return closed, Consistency(child.EdgeID, "closing %s endpoint of edge version %d updated %d rows", ep.side, p, n)
			}
			closed++
			s.log.Debug().
				Int64("edge_version_id", int64(p)).
				Str("endpoint", ep.side).
				Int64("end_id", int64(end)).
				Msg("endpoint closed")
		}
	}
	return closed, nil
}

// endpointEnd returns the node version at which a superseded endpoint
// stops being valid: the first parent of the new start in the node's
// history.
func endpointEnd(h *dag.DAG, child model.EdgeVersion, ep endpoint) (model.ID, error) {
	for _, p := range h.ParentsOf(ep.start) {
		if !p.IsRoot() {
			return p, nil
		}
	}
	return 0, Consistency(child.EdgeID,
		"%s node version %d of edge version %d has no ancestor in node %d's history",
		ep.side, ep.start, child.ID, ep.node)
}

func edgeVersionRecord(ev model.EdgeVersion) storage.Record {
	r := storage.Record{
		"id":                         idValue(ev.ID),
		"edge_id":                    idValue(ev.EdgeID),
		"from_node_version_start_id": idValue(ev.FromNodeVersionStartID),
		"to_node_version_start_id":   idValue(ev.ToNodeVersionStartID),
	}
	setOptionalID(r, "from_node_version_end_id", ev.FromNodeVersionEndID)
	setOptionalID(r, "to_node_version_end_id", ev.ToNodeVersionEndID)
	return r
}
