package ground

import (
	"context"

	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
)

// CreateNode creates a node item.
func (s *Store) CreateNode(ctx context.Context, name, sourceKey string, tags map[string]model.Tag) (model.Node, error) {
	item, err := s.CreateItem(ctx, ItemSpec{Type: model.ItemNode, Name: name, SourceKey: sourceKey, Tags: tags})
	if err != nil {
		return model.Node{}, err
	}
	return model.Node{Item: item}, nil
}

// RetrieveNode returns a node by source key.
func (s *Store) RetrieveNode(ctx context.Context, sourceKey string) (model.Node, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_node", BySourceKey(model.ItemNode, sourceKey))
	return model.Node{Item: item}, err
}

// RetrieveNodeByID returns a node by item id.
func (s *Store) RetrieveNodeByID(ctx context.Context, id model.ID) (model.Node, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_node", ItemRef{ID: model.Some(id), Type: model.ItemNode})
	return model.Node{Item: item}, err
}

// GetNodeLeaves returns the leaf versions of a node.
func (s *Store) GetNodeLeaves(ctx context.Context, sourceKey string) ([]model.ID, error) {
	return s.GetLeaves(ctx, BySourceKey(model.ItemNode, sourceKey))
}

// CreateNodeVersion creates a version of a node under parentIDs.
func (s *Store) CreateNodeVersion(ctx context.Context, nodeID model.ID, spec model.RichVersionSpec, parentIDs []model.ID) (model.NodeVersion, error) {
	var out model.NodeVersion
	_, err := s.createVersion(ctx, versionWrite{
		op:       "create_node_version",
		itemID:   nodeID,
		itemType: model.ItemNode,
		parents:  parentIDs,
		persist: func(tx storage.Tx, id model.ID) error {
			rv, err := s.insertRichVersion(ctx, tx, nodeID, id, spec)
			if err != nil {
				return err
			}
			out = model.NodeVersion{RichVersion: rv, NodeID: nodeID}
			return tx.Insert(ctx, storage.NodeVersions, storage.Record{
				"id":      idValue(id),
				"node_id": idValue(nodeID),
			})
		},
	})
	if err != nil {
		return model.NodeVersion{}, err
	}
	return out, nil
}

// RetrieveNodeVersion returns a node version.
func (s *Store) RetrieveNodeVersion(ctx context.Context, id model.ID) (model.NodeVersion, error) {
	rv, row, err := s.retrieveKindVersion(ctx, "retrieve_node_version", storage.NodeVersions, id, nil)
	if err != nil {
		return model.NodeVersion{}, err
	}
	return model.NodeVersion{RichVersion: rv, NodeID: recordID(row, "node_id")}, nil
}
