package harness

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/ground/internal/dag"
	"github.com/roach88/ground/internal/ground"
	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/model"
)

// outcome is what a step produced. id is the created id, ids the list a
// read returned, result the rendered read output for the trace.
type outcome struct {
	id     model.ID
	ids    []model.ID
	result ir.IRValue
}

type opFunc func(ctx context.Context, r *runner, a args) (outcome, error)

var ops = map[string]opFunc{
	"create_node":          createItem(model.ItemNode),
	"create_edge":          createItem(model.ItemEdge),
	"create_graph":         createItem(model.ItemGraph),
	"create_structure":     createItem(model.ItemStructure),
	"create_lineage_edge":  createItem(model.ItemLineageEdge),
	"create_lineage_graph": createItem(model.ItemLineageGraph),

	"create_node_version":          createNodeVersion,
	"create_edge_version":          createEdgeVersion,
	"create_graph_version":         createGraphVersion,
	"create_structure_version":     createStructureVersion,
	"create_lineage_edge_version":  createLineageEdgeVersion,
	"create_lineage_graph_version": createLineageGraphVersion,

	"update_item":   updateItem,
	"add_successor": addSuccessor,

	"get_leaves":            getLeaves,
	"parents_of":            parentsOf,
	"retrieve_dag":          retrieveDAG,
	"retrieve_item":         retrieveItem,
	"retrieve_item_tags":    retrieveItemTags,
	"retrieve_version":      retrieveVersion,
	"retrieve_edge_version": retrieveEdgeVersion,
	"retrieve_successor":    retrieveSuccessor,
}

func createItem(t model.ItemType) opFunc {
	return func(ctx context.Context, r *runner, a args) (outcome, error) {
		spec := ground.ItemSpec{Type: t}
		var err error
		if spec.Name, err = a.str("name"); err != nil {
			return outcome{}, err
		}
		if spec.SourceKey, err = a.str("source_key"); err != nil {
			return outcome{}, err
		}
		if spec.Tags, err = a.tags("tags"); err != nil {
			return outcome{}, err
		}
		if t == model.ItemEdge {
			if spec.FromNodeID, err = a.ref(r, "from"); err != nil {
				return outcome{}, err
			}
			if spec.ToNodeID, err = a.ref(r, "to"); err != nil {
				return outcome{}, err
			}
		}
		item, err := r.store.CreateItem(ctx, spec)
		return outcome{id: item.ID}, err
	}
}

// versionArgs reads the arguments shared by every version op.
func versionArgs(r *runner, a args) (item model.ID, spec model.RichVersionSpec, parents []model.ID, err error) {
	if item, err = a.ref(r, "item"); err != nil {
		return
	}
	if parents, err = a.refs(r, "parents"); err != nil {
		return
	}
	if spec.Tags, err = a.tags("tags"); err != nil {
		return
	}
	if spec.StructureVersionID, err = a.optRef(r, "structure_version"); err != nil {
		return
	}
	if ref, ok := a["reference"]; ok {
		s, ok := ref.(string)
		if !ok {
			return 0, spec, nil, &argError{key: "reference", msg: "must be a string"}
		}
		spec.Reference = &s
	}
	spec.ReferenceParameters, err = a.stringMap("reference_parameters")
	return
}

func createNodeVersion(ctx context.Context, r *runner, a args) (outcome, error) {
	item, spec, parents, err := versionArgs(r, a)
	if err != nil {
		return outcome{}, err
	}
	v, err := r.store.CreateNodeVersion(ctx, item, spec, parents)
	return outcome{id: v.ID}, err
}

func createEdgeVersion(ctx context.Context, r *runner, a args) (outcome, error) {
	item, rich, parents, err := versionArgs(r, a)
	if err != nil {
		return outcome{}, err
	}
	spec := model.EdgeVersionSpec{RichVersionSpec: rich}
	if spec.FromNodeVersionStartID, err = a.ref(r, "from_start"); err != nil {
		return outcome{}, err
	}
	if spec.ToNodeVersionStartID, err = a.ref(r, "to_start"); err != nil {
		return outcome{}, err
	}
	if spec.FromNodeVersionEndID, err = a.optRef(r, "from_end"); err != nil {
		return outcome{}, err
	}
	if spec.ToNodeVersionEndID, err = a.optRef(r, "to_end"); err != nil {
		return outcome{}, err
	}
	v, err := r.store.CreateEdgeVersion(ctx, item, spec, parents)
	return outcome{id: v.ID}, err
}

func createGraphVersion(ctx context.Context, r *runner, a args) (outcome, error) {
	item, rich, parents, err := versionArgs(r, a)
	if err != nil {
		return outcome{}, err
	}
	spec := model.GraphVersionSpec{RichVersionSpec: rich}
	if spec.EdgeVersionIDs, err = a.refs(r, "edge_versions"); err != nil {
		return outcome{}, err
	}
	v, err := r.store.CreateGraphVersion(ctx, item, spec, parents)
	return outcome{id: v.ID}, err
}

func createStructureVersion(ctx context.Context, r *runner, a args) (outcome, error) {
	item, err := a.ref(r, "item")
	if err != nil {
		return outcome{}, err
	}
	parents, err := a.refs(r, "parents")
	if err != nil {
		return outcome{}, err
	}
	attrs, err := a.stringMap("attributes")
	if err != nil {
		return outcome{}, err
	}
	typed := make(map[string]model.ValueType, len(attrs))
	for k, t := range attrs {
		typed[k] = model.ValueType(t)
	}
	v, err := r.store.CreateStructureVersion(ctx, item, typed, parents)
	return outcome{id: v.ID}, err
}

func createLineageEdgeVersion(ctx context.Context, r *runner, a args) (outcome, error) {
	item, rich, parents, err := versionArgs(r, a)
	if err != nil {
		return outcome{}, err
	}
	spec := model.LineageEdgeVersionSpec{RichVersionSpec: rich}
	if spec.FromRichVersionID, err = a.ref(r, "from"); err != nil {
		return outcome{}, err
	}
	if spec.ToRichVersionID, err = a.ref(r, "to"); err != nil {
		return outcome{}, err
	}
	if spec.PrincipalID, err = a.optRef(r, "principal"); err != nil {
		return outcome{}, err
	}
	v, err := r.store.CreateLineageEdgeVersion(ctx, item, spec, parents)
	return outcome{id: v.ID}, err
}

func createLineageGraphVersion(ctx context.Context, r *runner, a args) (outcome, error) {
	item, rich, parents, err := versionArgs(r, a)
	if err != nil {
		return outcome{}, err
	}
	spec := model.LineageGraphVersionSpec{RichVersionSpec: rich}
	if spec.LineageEdgeVersionIDs, err = a.refs(r, "lineage_edge_versions"); err != nil {
		return outcome{}, err
	}
	v, err := r.store.CreateLineageGraphVersion(ctx, item, spec, parents)
	return outcome{id: v.ID}, err
}

func updateItem(ctx context.Context, r *runner, a args) (outcome, error) {
	item, err := a.ref(r, "item")
	if err != nil {
		return outcome{}, err
	}
	version, err := a.ref(r, "version")
	if err != nil {
		return outcome{}, err
	}
	parents, err := a.refs(r, "parents")
	if err != nil {
		return outcome{}, err
	}
	succ, err := r.store.UpdateItem(ctx, item, version, parents)
	if err != nil {
		return outcome{}, err
	}
	from := make([]model.ID, len(succ))
	for i, s := range succ {
		from[i] = s.From
	}
	return outcome{ids: from, result: r.idList(from)}, nil
}

func addSuccessor(ctx context.Context, r *runner, a args) (outcome, error) {
	item, err := a.ref(r, "item")
	if err != nil {
		return outcome{}, err
	}
	from, err := a.ref(r, "from")
	if err != nil {
		return outcome{}, err
	}
	to, err := a.ref(r, "to")
	if err != nil {
		return outcome{}, err
	}
	succ, err := r.store.AddSuccessor(ctx, item, from, to)
	return outcome{id: succ.ID}, err
}

// itemRef reads "item", or "type" plus "source_key".
func itemRef(r *runner, a args) (ground.ItemRef, error) {
	if _, ok := a["source_key"]; ok {
		key, err := a.str("source_key")
		if err != nil {
			return ground.ItemRef{}, err
		}
		typ, err := a.str("type")
		if err != nil {
			return ground.ItemRef{}, err
		}
		t, err := model.ParseItemType(typ)
		if err != nil {
			return ground.ItemRef{}, &argError{key: "type", msg: err.Error()}
		}
		return ground.BySourceKey(t, key), nil
	}
	id, err := a.ref(r, "item")
	if err != nil {
		return ground.ItemRef{}, err
	}
	return ground.ByID(id), nil
}

func getLeaves(ctx context.Context, r *runner, a args) (outcome, error) {
	ref, err := itemRef(r, a)
	if err != nil {
		return outcome{}, err
	}
	leaves, err := r.store.GetLeaves(ctx, ref)
	return outcome{ids: leaves, result: r.idList(leaves)}, err
}

func parentsOf(ctx context.Context, r *runner, a args) (outcome, error) {
	item, err := a.ref(r, "item")
	if err != nil {
		return outcome{}, err
	}
	version, err := a.ref(r, "version")
	if err != nil {
		return outcome{}, err
	}
	parents, err := r.store.ParentsOf(ctx, item, version)
	return outcome{ids: parents, result: r.idList(parents)}, err
}

func retrieveDAG(ctx context.Context, r *runner, a args) (outcome, error) {
	item, err := a.ref(r, "item")
	if err != nil {
		return outcome{}, err
	}
	d, err := r.store.RetrieveDAG(ctx, item)
	if err != nil {
		return outcome{}, err
	}
	edges := d.Edges()
	slices.SortFunc(edges, func(x, y dag.Edge) int {
		return cmp.Or(cmp.Compare(x.From, y.From), cmp.Compare(x.To, y.To))
	})
	rendered := make(ir.IRArray, len(edges))
	for i, e := range edges {
		rendered[i] = ir.IRArray{ir.IRString(r.label(e.From)), ir.IRString(r.label(e.To))}
	}
	return outcome{ids: d.Leaves(), result: rendered}, nil
}

func retrieveItem(ctx context.Context, r *runner, a args) (outcome, error) {
	ref, err := itemRef(r, a)
	if err != nil {
		return outcome{}, err
	}
	item, err := r.store.RetrieveItem(ctx, ref)
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: item.ID, result: ir.IRObject{
		"name":       ir.IRString(item.Name),
		"source_key": ir.IRString(item.SourceKey),
		"tags":       renderTags(item.Tags),
		"type":       ir.IRString(item.Type),
	}}, nil
}

func retrieveItemTags(ctx context.Context, r *runner, a args) (outcome, error) {
	id, err := a.ref(r, "id")
	if err != nil {
		return outcome{}, err
	}
	tags, err := r.store.RetrieveItemTags(ctx, id)
	return outcome{result: renderTags(tags)}, err
}

func retrieveVersion(ctx context.Context, r *runner, a args) (outcome, error) {
	id, err := a.ref(r, "id")
	if err != nil {
		return outcome{}, err
	}
	v, err := r.store.RetrieveVersion(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	out := ir.IRObject{
		"item": ir.IRString(r.label(v.ItemID)),
		"tags": renderTags(v.Tags),
	}
	if sv, ok := v.StructureVersionID.Get(); ok {
		out["structure_version"] = ir.IRString(r.label(sv))
	}
	if v.Reference != nil {
		out["reference"] = ir.IRString(*v.Reference)
	}
	return outcome{id: v.ID, result: out}, nil
}

func retrieveEdgeVersion(ctx context.Context, r *runner, a args) (outcome, error) {
	id, err := a.ref(r, "id")
	if err != nil {
		return outcome{}, err
	}
	v, err := r.store.RetrieveEdgeVersion(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	out := ir.IRObject{
		"edge":       ir.IRString(r.label(v.EdgeID)),
		"from_start": ir.IRString(r.label(v.FromNodeVersionStartID)),
		"to_start":   ir.IRString(r.label(v.ToNodeVersionStartID)),
	}
	if end, ok := v.FromNodeVersionEndID.Get(); ok {
		out["from_end"] = ir.IRString(r.label(end))
	}
	if end, ok := v.ToNodeVersionEndID.Get(); ok {
		out["to_end"] = ir.IRString(r.label(end))
	}
	return outcome{id: v.ID, result: out}, nil
}

func retrieveSuccessor(ctx context.Context, r *runner, a args) (outcome, error) {
	id, err := a.ref(r, "id")
	if err != nil {
		return outcome{}, err
	}
	s, err := r.store.RetrieveSuccessor(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: s.ID, result: ir.IRObject{
		"from": ir.IRString(r.label(s.From)),
		"item": ir.IRString(r.label(s.ItemID)),
		"to":   ir.IRString(r.label(s.To)),
	}}, nil
}

func (r *runner) idList(list []model.ID) ir.IRArray {
	sorted := slices.Clone(list)
	slices.Sort(sorted)
	out := make(ir.IRArray, len(sorted))
	for i, id := range sorted {
		out[i] = ir.IRString(r.label(id))
	}
	return out
}

// renderTags shows each tag as {type, value}; a tag without a value is {}.
func renderTags(tags map[string]model.Tag) ir.IRObject {
	out := make(ir.IRObject, len(tags))
	for k, t := range tags {
		obj := ir.IRObject{}
		if t.Value != nil {
			obj["type"] = ir.IRString(t.Type)
			obj["value"] = t.Value
		}
		out[k] = obj
	}
	return out
}

// args are the decoded arguments of one step.
type args map[string]any

// argError reports a malformed step argument.
type argError struct {
	key string
	msg string
}

func (e *argError) Error() string {
	return fmt.Sprintf("arg %q: %s", e.key, e.msg)
}

func (a args) str(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", &argError{key: key, msg: "is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &argError{key: key, msg: fmt.Sprintf("must be a string, got %T", v)}
	}
	return s, nil
}

func (a args) ref(r *runner, key string) (model.ID, error) {
	v, ok := a[key]
	if !ok {
		return 0, &argError{key: key, msg: "is required"}
	}
	id, err := r.resolve(v)
	if err != nil {
		return 0, &argError{key: key, msg: err.Error()}
	}
	return id, nil
}

func (a args) optRef(r *runner, key string) (model.OptionalID, error) {
	if _, ok := a[key]; !ok {
		return model.None(), nil
	}
	id, err := a.ref(r, key)
	if err != nil {
		return model.None(), err
	}
	return model.Some(id), nil
}

func (a args) refs(r *runner, key string) ([]model.ID, error) {
	v, ok := a[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &argError{key: key, msg: fmt.Sprintf("must be a list, got %T", v)}
	}
	out := make([]model.ID, 0, len(list))
	for i, elem := range list {
		id, err := r.resolve(elem)
		if err != nil {
			return nil, &argError{key: fmt.Sprintf("%s[%d]", key, i), msg: err.Error()}
		}
		out = append(out, id)
	}
	return out, nil
}

func (a args) object(key string) (map[string]any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &argError{key: key, msg: fmt.Sprintf("must be a mapping, got %T", v)}
	}
	return m, nil
}

// tags decodes a mapping of tag key to value. A null value is a tag
// without a value; other values get their type inferred.
func (a args) tags(key string) (map[string]model.Tag, error) {
	m, err := a.object(key)
	if err != nil || m == nil {
		return nil, err
	}
	out := make(map[string]model.Tag, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = model.Tag{Key: k}
			continue
		}
		val, err := ir.FromAny(v)
		if err != nil {
			return nil, &argError{key: key + "." + k, msg: err.Error()}
		}
		out[k] = model.NewTag(k, val)
	}
	return out, nil
}

func (a args) stringMap(key string) (map[string]string, error) {
	m, err := a.object(key)
	if err != nil || m == nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, &argError{key: key + "." + k, msg: fmt.Sprintf("must be a string, got %T", v)}
		}
		out[k] = s
	}
	return out, nil
}
