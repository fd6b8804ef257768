package cli

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ground/internal/dag"
	"github.com/roach88/ground/internal/ground"
	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/model"
)

// parseID parses a decimal id argument.
func parseID(arg string) (model.ID, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || n <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q: must be a positive integer", arg))
	}
	return model.ID(n), nil
}

// inspect opens the store, runs fn and closes the store again.
func inspect(opts *RootOptions, cmd *cobra.Command, fn func(s *ground.Store) error) error {
	sess, err := openSession(opts.Config, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			sess.log.Error().Err(closeErr).Msg("error closing store")
		}
	}()
	return fn(sess.store)
}

// LeavesOptions holds flags for the leaves command.
type LeavesOptions struct {
	*RootOptions

	// Type, when set, makes the argument a source key of that item type.
	Type string
}

// leavesResult is the output of the leaves command.
type leavesResult struct {
	Item   string  `json:"item"`
	Leaves []int64 `json:"leaves"`
}

func (r leavesResult) String() string {
	if len(r.Leaves) == 0 {
		return fmt.Sprintf("%s has no versions", r.Item)
	}
	parts := make([]string, len(r.Leaves))
	for i, id := range r.Leaves {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s leaves: %s", r.Item, strings.Join(parts, " "))
}

// NewLeavesCommand creates the leaves command.
func NewLeavesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LeavesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "leaves <item-id>",
		Short: "List the current versions of an item",
		Long: `List the leaves of an item's version history: the versions no other
version was derived from.

Examples:
  ground leaves --db ./ground.db 4
  ground leaves --db ./ground.db --type edge xy1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := opts.itemRef(args[0])
			if err != nil {
				return err
			}
			formatter := opts.formatter(cmd)
			return inspect(opts.RootOptions, cmd, func(s *ground.Store) error {
				leaves, err := s.GetLeaves(cmd.Context(), ref)
				if err != nil {
					return formatter.StoreError("failed to get leaves", err)
				}
				return formatter.Success(leavesResult{Item: ref.String(), Leaves: int64s(leaves)})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "treat the argument as a source key of this item type")

	return cmd
}

func (o *LeavesOptions) itemRef(arg string) (ground.ItemRef, error) {
	if o.Type == "" {
		id, err := parseID(arg)
		if err != nil {
			return ground.ItemRef{}, err
		}
		return ground.ByID(id), nil
	}
	t, err := model.ParseItemType(o.Type)
	if err != nil {
		return ground.ItemRef{}, WrapExitError(ExitCommandError, "invalid --type", err)
	}
	return ground.BySourceKey(t, arg), nil
}

// dagResult is the output of the dag command.
type dagResult struct {
	Item   int64      `json:"item"`
	Edges  [][2]int64 `json:"edges"`
	Leaves []int64    `json:"leaves"`
}

func (r dagResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "item %d: %d edges\n", r.Item, len(r.Edges))
	for _, e := range r.Edges {
		from := strconv.FormatInt(e[0], 10)
		if e[0] == int64(model.RootID) {
			from = "root"
		}
		fmt.Fprintf(&b, "  %s -> %d\n", from, e[1])
	}
	fmt.Fprintf(&b, "leaves: %v", r.Leaves)
	return b.String()
}

// NewDAGCommand creates the dag command.
func NewDAGCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dag <item-id>",
		Short: "Show the version history of an item",
		Long: `Print every parent -> child edge of an item's version history, then
its leaves. Versions created without parents hang off "root".

Example:
  ground dag --db ./ground.db 4 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			formatter := rootOpts.formatter(cmd)
			return inspect(rootOpts, cmd, func(s *ground.Store) error {
				d, err := s.RetrieveDAG(cmd.Context(), id)
				if err != nil {
					return formatter.StoreError("failed to retrieve dag", err)
				}
				edges := d.Edges()
				slices.SortFunc(edges, func(a, b dag.Edge) int {
					return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
				})
				out := dagResult{Item: int64(id), Edges: make([][2]int64, len(edges)), Leaves: int64s(d.Leaves())}
				for i, e := range edges {
					out.Edges[i] = [2]int64{int64(e.From), int64(e.To)}
				}
				return formatter.Success(out)
			})
		},
	}
}

// versionResult is the output of the version command.
type versionResult struct {
	ID                  int64             `json:"id"`
	Item                int64             `json:"item"`
	Parents             []int64           `json:"parents"`
	StructureVersion    *int64            `json:"structure_version,omitempty"`
	Reference           *string           `json:"reference,omitempty"`
	ReferenceParameters map[string]string `json:"reference_parameters,omitempty"`
	Tags                map[string]any    `json:"tags"`
}

func (r versionResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version %d of item %d\n", r.ID, r.Item)
	fmt.Fprintf(&b, "  parents: %v\n", r.Parents)
	if r.StructureVersion != nil {
		fmt.Fprintf(&b, "  structure version: %d\n", *r.StructureVersion)
	}
	if r.Reference != nil {
		fmt.Fprintf(&b, "  reference: %s\n", *r.Reference)
	}
	for _, k := range slices.Sorted(maps.Keys(r.ReferenceParameters)) {
		fmt.Fprintf(&b, "  reference %s=%s\n", k, r.ReferenceParameters[k])
	}
	keys := slices.Sorted(maps.Keys(r.Tags))
	fmt.Fprintf(&b, "  tags: %d", len(keys))
	for _, k := range keys {
		if v := r.Tags[k]; v != nil {
			fmt.Fprintf(&b, "\n    %s = %v", k, v)
		} else {
			fmt.Fprintf(&b, "\n    %s", k)
		}
	}
	return b.String()
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version <version-id>",
		Short: "Show one version",
		Long: `Print a rich version: its item, direct parents, structure version,
reference and tags.

Example:
  ground version --db ./ground.db 8`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			formatter := rootOpts.formatter(cmd)
			return inspect(rootOpts, cmd, func(s *ground.Store) error {
				v, err := s.RetrieveVersion(cmd.Context(), id)
				if err != nil {
					return formatter.StoreError("failed to retrieve version", err)
				}
				parents, err := s.ParentsOf(cmd.Context(), v.ItemID, v.ID)
				if err != nil {
					return formatter.StoreError("failed to retrieve parents", err)
				}
				return formatter.Success(newVersionResult(v, parents))
			})
		},
	}
}

func newVersionResult(v model.RichVersion, parents []model.ID) versionResult {
	out := versionResult{
		ID:                  int64(v.ID),
		Item:                int64(v.ItemID),
		Parents:             int64s(parents),
		Reference:           v.Reference,
		ReferenceParameters: v.ReferenceParameters,
		Tags:                make(map[string]any, len(v.Tags)),
	}
	if sv, ok := v.StructureVersionID.Get(); ok {
		n := int64(sv)
		out.StructureVersion = &n
	}
	for k, t := range v.Tags {
		out.Tags[k] = ir.ToAny(t.Value)
	}
	return out
}

func int64s(list []model.ID) []int64 {
	out := make([]int64, len(list))
	for i, id := range list {
		out[i] = int64(id)
	}
	return out
}
