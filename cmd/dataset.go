package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-zdb/internal/services"
)

var (
	// Dataset subviews (dataset command only)
	dsChildren  bool
	dsObjset    bool
	dsSnapshots bool
	dsLineage   bool
	dsMaxPrev   int
	dsMaxNext   int
)

var datasetCmd = &cobra.Command{
	Use:   "dataset [image-path] <object-id>",
	Short: "Walk datasets, snapshots, and clone lineage",
	Long: `Decode DSL directory and dataset objects. The default view shows the
directory's head dataset; flags select child directories, the object set
header, the snapshot list, or the snapshot lineage chain.

Examples:
  # Head dataset of a DSL directory
  zdb-browse dataset tank.img 12

  # Child directories
  zdb-browse dataset tank.img 12 --children

  # Snapshots of a dataset
  zdb-browse dataset tank.img 21 --snapshots

  # Lineage around a dataset, 10 steps each way
  zdb-browse dataset tank.img 21 --lineage --max-prev 10 --max-next 10`,

	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		image, id, err := imageAndID(args)
		if err == nil {
			err = runDataset(cmd, image, id)
		}
		cobra.CheckErr(err)
	},
}

var rootdirCmd = &cobra.Command{
	Use:   "rootdir [image-path]",
	Short: "Resolve the pool's root DSL directory",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		image := ""
		if len(args) > 0 {
			image = args[0]
		}
		if err := runRootdir(cmd, image); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(rootdirCmd)

	datasetCmd.Flags().BoolVar(&dsChildren, "children", false, "list child DSL directories")
	datasetCmd.Flags().BoolVar(&dsObjset, "objset", false, "show the dataset's object set header")
	datasetCmd.Flags().BoolVar(&dsSnapshots, "snapshots", false, "list the dataset's snapshots")
	datasetCmd.Flags().BoolVar(&dsLineage, "lineage", false, "walk the snapshot chain around the dataset")
	datasetCmd.Flags().IntVar(&dsMaxPrev, "max-prev", 0, "lineage steps backward (default 64, max 4096)")
	datasetCmd.Flags().IntVar(&dsMaxNext, "max-next", 0, "lineage steps forward (default 64, max 4096)")

	datasetCmd.MarkFlagsMutuallyExclusive("children", "objset", "snapshots", "lineage")
}

func runRootdir(cmd *cobra.Command, image string) error {
	session, cleanup, err := openSession(cmd.Context(), image)
	if err != nil {
		return err
	}
	defer cleanup()

	dirObj, err := session.Datasets.RootDir(cmd.Context())
	if err != nil {
		return err
	}
	if emitJSON(map[string]uint64{"root_dir": dirObj}) {
		return nil
	}
	fmt.Printf("root DSL directory: object %d\n", dirObj)
	return nil
}

func runDataset(cmd *cobra.Command, image string, id uint64) error {
	session, cleanup, err := openSession(cmd.Context(), image)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := cmd.Context()

	switch {
	case dsChildren:
		children, err := session.Datasets.DirChildren(ctx, id)
		if err != nil {
			return err
		}
		if emitJSON(children) {
			return nil
		}
		for _, c := range children {
			fmt.Printf("%8d  %s\n", c.DirObj, c.Name)
		}
		return nil

	case dsObjset:
		info, err := session.Datasets.DatasetObjset(ctx, id)
		if err != nil {
			return err
		}
		if emitJSON(info) {
			return nil
		}
		fmt.Printf("Dataset %d object set: %s\n", info.Dataset, info.TypeName)
		printBlkptr(info.RootBp)
		if info.MetaDnode != nil {
			fmt.Printf("    Metadnode:    %s, %d levels, block size %d, max blkid %d\n",
				info.MetaDnode.TypeName, info.MetaDnode.Levels,
				info.MetaDnode.DataBlockSize, info.MetaDnode.MaxBlockID)
		}
		return nil

	case dsSnapshots:
		snaps, err := session.Datasets.Snapshots(ctx, id)
		if err != nil {
			return err
		}
		if emitJSON(snaps) {
			return nil
		}
		for _, s := range snaps {
			if s.Error != "" {
				fmt.Printf("%-30s <error: %s>\n", s.Name, s.Error)
				continue
			}
			fmt.Printf("%-30s object %-8d txg %-10d unique %d\n",
				s.Name, s.Object, s.CreationTxg, s.UniqueBytes)
		}
		return nil

	case dsLineage:
		lin, err := session.Datasets.Lineage(ctx, id, dsMaxPrev, dsMaxNext)
		if lin == nil {
			return err
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: partial lineage: %v\n", err)
		}
		if emitJSON(lin) {
			return nil
		}
		for i := len(lin.Prev) - 1; i >= 0; i-- {
			printLineageNode("  ", lin.Prev[i])
		}
		printLineageNode("* ", lin.Anchor)
		for _, n := range lin.Next {
			printLineageNode("  ", n)
		}
		if lin.TruncatedPrev {
			fmt.Println("(older snapshots truncated)")
		}
		if lin.TruncatedNext {
			fmt.Println("(newer snapshots truncated)")
		}
		return nil

	default:
		node, err := session.Datasets.DirHead(ctx, id)
		if err != nil {
			return err
		}
		if emitJSON(node) {
			return nil
		}
		fmt.Printf("Head dataset of directory %d:\n", id)
		fmt.Printf("    Object:       %d\n", node.Object)
		fmt.Printf("    Creation txg: %d\n", node.CreationTxg)
		fmt.Printf("    Guid:         %#x\n", node.Guid)
		fmt.Printf("    Prev snap:    %d\n", node.PrevSnapObj)
		fmt.Printf("    Children:     %d\n", node.NumChildren)
		return nil
	}
}

func printLineageNode(prefix string, n services.DatasetNode) {
	name := n.Name
	if name == "" {
		name = "-"
	}
	if n.Error != "" {
		fmt.Printf("%sobject %-8d %-24s <error: %s>\n", prefix, n.Object, name, n.Error)
		return
	}
	fmt.Printf("%sobject %-8d %-24s txg %d\n", prefix, n.Object, name, n.CreationTxg)
}
