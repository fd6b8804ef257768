package ground

import (
	"context"

	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
)

// CreateLineageEdge creates a lineage edge item.
func (s *Store) CreateLineageEdge(ctx context.Context, name, sourceKey string, tags map[string]model.Tag) (model.LineageEdge, error) {
	item, err := s.CreateItem(ctx, ItemSpec{Type: model.ItemLineageEdge, Name: name, SourceKey: sourceKey, Tags: tags})
	if err != nil {
		return model.LineageEdge{}, err
	}
	return model.LineageEdge{Item: item}, nil
}

// RetrieveLineageEdge returns a lineage edge by source key.
func (s *Store) RetrieveLineageEdge(ctx context.Context, sourceKey string) (model.LineageEdge, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_lineage_edge", BySourceKey(model.ItemLineageEdge, sourceKey))
	return model.LineageEdge{Item: item}, err
}

// RetrieveLineageEdgeByID returns a lineage edge by item id.
func (s *Store) RetrieveLineageEdgeByID(ctx context.Context, id model.ID) (model.LineageEdge, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_lineage_edge", ItemRef{ID: model.Some(id), Type: model.ItemLineageEdge})
	return model.LineageEdge{Item: item}, err
}

// GetLineageEdgeLeaves returns the leaf versions of a lineage edge.
func (s *Store) GetLineageEdgeLeaves(ctx context.Context, sourceKey string) ([]model.ID, error) {
	return s.GetLeaves(ctx, BySourceKey(model.ItemLineageEdge, sourceKey))
}

// CreateLineageEdgeVersion creates a version of a lineage edge linking two
// rich versions of any kind.
func (s *Store) CreateLineageEdgeVersion(ctx context.Context, lineageEdgeID model.ID, spec model.LineageEdgeVersionSpec, parentIDs []model.ID) (model.LineageEdgeVersion, error) {
	var out model.LineageEdgeVersion
	_, err := s.createVersion(ctx, versionWrite{
		op:       "create_lineage_edge_version",
		itemID:   lineageEdgeID,
		itemType: model.ItemLineageEdge,
		parents:  parentIDs,
		persist: func(tx storage.Tx, id model.ID) error {
			for _, v := range []model.ID{spec.FromRichVersionID, spec.ToRichVersionID} {
				if err := checkRichVersionExists(ctx, tx, v); err != nil {
					return err
				}
			}
			rv, err := s.insertRichVersion(ctx, tx, lineageEdgeID, id, spec.RichVersionSpec)
			if err != nil {
				return err
			}
			row := storage.Record{
				"id":                   idValue(id),
				"lineage_edge_id":      idValue(lineageEdgeID),
				"from_rich_version_id": idValue(spec.FromRichVersionID),
				"to_rich_version_id":   idValue(spec.ToRichVersionID),
			}
			setOptionalID(row, "principal_id", spec.PrincipalID)
			out = model.LineageEdgeVersion{
				RichVersion:       rv,
				LineageEdgeID:     lineageEdgeID,
				FromRichVersionID: spec.FromRichVersionID,
				ToRichVersionID:   spec.ToRichVersionID,
				PrincipalID:       spec.PrincipalID,
			}
			return tx.Insert(ctx, storage.LineageEdgeVersions, row)
		},
	})
	if err != nil {
		return model.LineageEdgeVersion{}, err
	}
	return out, nil
}

// RetrieveLineageEdgeVersion returns a lineage edge version.
func (s *Store) RetrieveLineageEdgeVersion(ctx context.Context, id model.ID) (model.LineageEdgeVersion, error) {
	rv, row, err := s.retrieveKindVersion(ctx, "retrieve_lineage_edge_version", storage.LineageEdgeVersions, id, nil)
	if err != nil {
		return model.LineageEdgeVersion{}, err
	}
	return model.LineageEdgeVersion{
		RichVersion:       rv,
		LineageEdgeID:     recordID(row, "lineage_edge_id"),
		FromRichVersionID: recordID(row, "from_rich_version_id"),
		ToRichVersionID:   recordID(row, "to_rich_version_id"),
		PrincipalID:       recordOptionalID(row, "principal_id"),
	}, nil
}

// CreateLineageGraph creates a lineage graph item.
func (s *Store) CreateLineageGraph(ctx context.Context, name, sourceKey string, tags map[string]model.Tag) (model.LineageGraph, error) {
	item, err := s.CreateItem(ctx, ItemSpec{Type: model.ItemLineageGraph, Name: name, SourceKey: sourceKey, Tags: tags})
	if err != nil {
		return model.LineageGraph{}, err
	}
	return model.LineageGraph{Item: item}, nil
}

// RetrieveLineageGraph returns a lineage graph by source key.
func (s *Store) RetrieveLineageGraph(ctx context.Context, sourceKey string) (model.LineageGraph, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_lineage_graph", BySourceKey(model.ItemLineageGraph, sourceKey))
	return model.LineageGraph{Item: item}, err
}

// RetrieveLineageGraphByID returns a lineage graph by item id.
func (s *Store) RetrieveLineageGraphByID(ctx context.Context, id model.ID) (model.LineageGraph, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_lineage_graph", ItemRef{ID: model.Some(id), Type: model.ItemLineageGraph})
	return model.LineageGraph{Item: item}, err
}

// GetLineageGraphLeaves returns the leaf versions of a lineage graph.
func (s *Store) GetLineageGraphLeaves(ctx context.Context, sourceKey string) ([]model.ID, error) {
	return s.GetLeaves(ctx, BySourceKey(model.ItemLineageGraph, sourceKey))
}

// CreateLineageGraphVersion creates a version of a lineage graph holding a
// set of lineage edge versions. The set may be empty.
func (s *Store) CreateLineageGraphVersion(ctx context.Context, lineageGraphID model.ID, spec model.LineageGraphVersionSpec, parentIDs []model.ID) (model.LineageGraphVersion, error) {
	members := memberSet(spec.LineageEdgeVersionIDs)
	var out model.LineageGraphVersion
	_, err := s.createVersion(ctx, versionWrite{
		op:       "create_lineage_graph_version",
		itemID:   lineageGraphID,
		itemType: model.ItemLineageGraph,
		parents:  parentIDs,
		persist: func(tx storage.Tx, id model.ID) error {
			if err := checkMembers(ctx, tx, storage.LineageEdgeVersions, members); err != nil {
				return err
			}
			rv, err := s.insertRichVersion(ctx, tx, lineageGraphID, id, spec.RichVersionSpec)
			if err != nil {
				return err
			}
			if err := tx.Insert(ctx, storage.LineageGraphVersions, storage.Record{
				"id":               idValue(id),
				"lineage_graph_id": idValue(lineageGraphID),
			}); err != nil {
				return err
			}
			if err := insertMembers(ctx, tx, storage.LineageGraphVersionEdges,
				"lineage_graph_version_id", "lineage_edge_version_id", id, members); err != nil {
				return err
			}
			out = model.LineageGraphVersion{RichVersion: rv, LineageGraphID: lineageGraphID, LineageEdgeVersionIDs: members}
			return nil
		},
	})
	if err != nil {
		return model.LineageGraphVersion{}, err
	}
	return out, nil
}

// RetrieveLineageGraphVersion returns a lineage graph version with its
// lineage edge versions, sorted ascending.
func (s *Store) RetrieveLineageGraphVersion(ctx context.Context, id model.ID) (model.LineageGraphVersion, error) {
	var members []model.ID
	rv, row, err := s.retrieveKindVersion(ctx, "retrieve_lineage_graph_version", storage.LineageGraphVersions, id,
		func(tx storage.Tx) (err error) {
			members, err = loadMembers(ctx, tx, storage.LineageGraphVersionEdges,
				"lineage_graph_version_id", "lineage_edge_version_id", id)
			return err
		})
	if err != nil {
		return model.LineageGraphVersion{}, err
	}
	return model.LineageGraphVersion{
		RichVersion:           rv,
		LineageGraphID:        recordID(row, "lineage_graph_id"),
		LineageEdgeVersionIDs: members,
	}, nil
}
