package ground

import (
	"context"
	"slices"

	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
)

// CreateGraph creates a graph item.
func (s *Store) CreateGraph(ctx context.Context, name, sourceKey string, tags map[string]model.Tag) (model.Graph, error) {
	item, err := s.CreateItem(ctx, ItemSpec{Type: model.ItemGraph, Name: name, SourceKey: sourceKey, Tags: tags})
	if err != nil {
		return model.Graph{}, err
	}
	return model.Graph{Item: item}, nil
}

// RetrieveGraph returns a graph by source key.
func (s *Store) RetrieveGraph(ctx context.Context, sourceKey string) (model.Graph, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_graph", BySourceKey(model.ItemGraph, sourceKey))
	return model.Graph{Item: item}, err
}

// RetrieveGraphByID returns a graph by item id.
func (s *Store) RetrieveGraphByID(ctx context.Context, id model.ID) (model.Graph, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_graph", ItemRef{ID: model.Some(id), Type: model.ItemGraph})
	return model.Graph{Item: item}, err
}

// GetGraphLeaves returns the leaf versions of a graph.
func (s *Store) GetGraphLeaves(ctx context.Context, sourceKey string) ([]model.ID, error) {
	return s.GetLeaves(ctx, BySourceKey(model.ItemGraph, sourceKey))
}

// CreateGraphVersion creates a version of a graph holding a set of edge
// versions. The set may be empty.
func (s *Store) CreateGraphVersion(ctx context.Context, graphID model.ID, spec model.GraphVersionSpec, parentIDs []model.ID) (model.GraphVersion, error) {
	members := memberSet(spec.EdgeVersionIDs)
	var out model.GraphVersion
	_, err := s.createVersion(ctx, versionWrite{
		op:       "create_graph_version",
		itemID:   graphID,
		itemType: model.ItemGraph,
		parents:  parentIDs,
		persist: func(tx storage.Tx, id model.ID) error {
			if err := checkMembers(ctx, tx, storage.EdgeVersions, members); err != nil {
				return err
			}
			rv, err := s.insertRichVersion(ctx, tx, graphID, id, spec.RichVersionSpec)
			if err != nil {
				return err
			}
			if err := tx.Insert(ctx, storage.GraphVersions, storage.Record{
				"id":       idValue(id),
				"graph_id": idValue(graphID),
			}); err != nil {
				return err
			}
			if err := insertMembers(ctx, tx, storage.GraphVersionEdges, "graph_version_id", "edge_version_id", id, members); err != nil {
				return err
			}
			out = model.GraphVersion{RichVersion: rv, GraphID: graphID, EdgeVersionIDs: members}
			return nil
		},
	})
	if err != nil {
		return model.GraphVersion{}, err
	}
	return out, nil
}

// RetrieveGraphVersion returns a graph version with its edge versions,
// sorted ascending.
func (s *Store) RetrieveGraphVersion(ctx context.Context, id model.ID) (model.GraphVersion, error) {
	var members []model.ID
	rv, row, err := s.retrieveKindVersion(ctx, "retrieve_graph_version", storage.GraphVersions, id,
		func(tx storage.Tx) (err error) {
			members, err = loadMembers(ctx, tx, storage.GraphVersionEdges, "graph_version_id", "edge_version_id", id)
			return err
		})
	if err != nil {
		return model.GraphVersion{}, err
	}
	return model.GraphVersion{RichVersion: rv, GraphID: recordID(row, "graph_id"), EdgeVersionIDs: members}, nil
}

// memberSet sorts and dedupes member ids.
func memberSet(members []model.ID) []model.ID {
	out := slices.Clone(members)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []model.ID{}
	}
	return out
}

// checkMembers verifies that every member is a stored version in
// collection.
func checkMembers(ctx context.Context, tx storage.Tx, collection string, members []model.ID) error {
	for _, m := range members {
		_, ok, err := selectOne(ctx, tx, collection, byID("id", m))
		if err != nil {
			return err
		}
		if !ok {
			return VersionNotFound(m)
		}
	}
	return nil
}

func insertMembers(ctx context.Context, tx storage.Tx, collection, ownerField, memberField string, owner model.ID, members []model.ID) error {
	for _, m := range members {
		if err := tx.Insert(ctx, collection, storage.Record{
			ownerField:  idValue(owner),
			memberField: idValue(m),
		}); err != nil {
			return err
		}
	}
	return nil
}

func loadMembers(ctx context.Context, tx storage.Tx, collection, ownerField, memberField string, owner model.ID) ([]model.ID, error) {
	rows, err := tx.Select(ctx, collection, byID(ownerField, owner))
	if err != nil {
		return nil, err
	}
	return idList(rows, memberField), nil
}
