package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-zdb/internal/services"
)

var (
	// List paging and filtering (objects command only)
	listType   int
	listCursor uint64
	listLimit  int
)

var objectCmd = &cobra.Command{
	Use:   "object [image-path] <object-id>",
	Short: "Decode one object's dnode and bonus buffer",
	Long: `Decode an object's dnode fields, its typed bonus buffer, and the
semantic references recovered from it.

Examples:
  # The object directory
  zdb-browse object tank.img 1

  # JSON output
  zdb-browse object tank.img 21 -o json`,

	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		image, id, err := imageAndID(args)
		if err == nil {
			err = runObject(cmd, image, id)
		}
		cobra.CheckErr(err)
	},
}

var objectsCmd = &cobra.Command{
	Use:   "objects [image-path]",
	Short: "List objects in the meta object set",
	Long: `List allocated objects in id order, one page at a time.

Examples:
  # First page
  zdb-browse objects tank.img

  # All space maps
  zdb-browse objects tank.img --type 26

  # Continue from a cursor
  zdb-browse objects tank.img --cursor 201 --limit 50`,

	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		image := ""
		if len(args) > 0 {
			image = args[0]
		}
		if err := runObjects(cmd, image); err != nil {
			cobra.CheckErr(err)
		}
	},
}

var blkptrsCmd = &cobra.Command{
	Use:   "blkptrs [image-path] <object-id>",
	Short: "Show an object's block pointers",
	Long: `Decode every block pointer slot of an object's dnode, including the
spill pointer when present.

Examples:
  zdb-browse blkptrs tank.img 32`,

	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		image, id, err := imageAndID(args)
		if err == nil {
			err = runBlkptrs(cmd, image, id)
		}
		cobra.CheckErr(err)
	},
}

func init() {
	rootCmd.AddCommand(objectCmd)
	rootCmd.AddCommand(objectsCmd)
	rootCmd.AddCommand(blkptrsCmd)

	objectsCmd.Flags().IntVar(&listType, "type", -1, "only objects of this DMU type")
	objectsCmd.Flags().Uint64Var(&listCursor, "cursor", 0, "object id to resume from")
	objectsCmd.Flags().IntVar(&listLimit, "limit", 0, "page size (default 200, max 2000)")
}

// imageAndID splits the optional image path from the trailing object
// id argument.
func imageAndID(args []string) (string, uint64, error) {
	image := ""
	idArg := args[0]
	if len(args) == 2 {
		image = args[0]
		idArg = args[1]
	}
	id, err := strconv.ParseUint(idArg, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid object id %q: %w", idArg, err)
	}
	return image, id, nil
}

func runObject(cmd *cobra.Command, image string, id uint64) error {
	session, cleanup, err := openSession(cmd.Context(), image)
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := session.Objects.GetObject(cmd.Context(), id)
	if err != nil {
		return err
	}
	if emitJSON(info) {
		return nil
	}

	fmt.Printf("Object %d: %s\n", info.Object, info.TypeName)
	fmt.Printf("    Bonus type:   %s (%d bytes)\n", info.BonusTypeName, info.BonusLen)
	fmt.Printf("    Levels:       %d\n", info.Levels)
	fmt.Printf("    Blkptrs:      %d\n", info.NumBlkptrs)
	fmt.Printf("    Block size:   %d\n", info.DataBlockSize)
	fmt.Printf("    Max blkid:    %d\n", info.MaxBlockID)
	fmt.Printf("    Used bytes:   %d\n", info.UsedBytes)
	fmt.Printf("    Checksum:     %s\n", info.Checksum)
	fmt.Printf("    Compression:  %s\n", info.Compression)
	if info.HasSpill {
		fmt.Println("    Spill:        present")
	}
	if info.IsZap {
		fmt.Println("    ZAP:          yes")
	}
	if info.Bonus != nil && info.Bonus.Kind != "" {
		fmt.Printf("    Bonus kind:   %s\n", info.Bonus.Kind)
	}
	for _, e := range info.Edges {
		fmt.Printf("    Edge:         %s -> object %d\n", e.Label, e.To)
	}
	return nil
}

func runObjects(cmd *cobra.Command, image string) error {
	session, cleanup, err := openSession(cmd.Context(), image)
	if err != nil {
		return err
	}
	defer cleanup()

	page, err := session.Objects.ListObjects(cmd.Context(), services.ListQuery{
		TypeFilter: listType,
		Start:      listCursor,
		Limit:      listLimit,
	})
	if err != nil {
		return err
	}
	if emitJSON(page) {
		return nil
	}

	for _, o := range page.Objects {
		if o.Error != "" {
			fmt.Printf("%8d  <error: %s>\n", o.Object, o.Error)
			continue
		}
		fmt.Printf("%8d  %-28s bonus=%-24s used=%d\n",
			o.Object, o.TypeName, o.BonusTypeName, o.UsedBytes)
	}
	if page.NextCursor != 0 {
		fmt.Printf("next cursor: %d\n", page.NextCursor)
	}
	return nil
}

func runBlkptrs(cmd *cobra.Command, image string, id uint64) error {
	session, cleanup, err := openSession(cmd.Context(), image)
	if err != nil {
		return err
	}
	defer cleanup()

	list, err := session.Objects.GetBlkptrs(cmd.Context(), id)
	if err != nil {
		return err
	}
	if emitJSON(list) {
		return nil
	}

	for _, bp := range list.Blkptrs {
		printBlkptr(bp)
	}
	return nil
}

func printBlkptr(bp services.BlkptrInfo) {
	label := fmt.Sprintf("bp[%d]", bp.Index)
	if bp.IsSpill {
		label = "spill"
	}
	switch {
	case bp.Error != "":
		fmt.Printf("%-7s <error: %s>\n", label, bp.Error)
	case bp.IsHole:
		fmt.Printf("%-7s <hole> birth %d\n", label, bp.BirthTxg)
	case bp.IsEmbedded:
		fmt.Printf("%-7s <embedded> %s lsize %d psize %d\n", label, bp.TypeName, bp.Lsize, bp.Psize)
	default:
		fmt.Printf("%-7s L%d %s lsize %d psize %d birth %d cksum %s comp %s",
			label, bp.Level, bp.TypeName, bp.Lsize, bp.Psize, bp.BirthTxg, bp.Checksum, bp.Compression)
		for _, dva := range bp.Dvas {
			gang := ""
			if dva.IsGang {
				gang = " gang"
			}
			fmt.Printf(" dva %d:%#x:%#x%s", dva.Vdev, dva.Offset, dva.Asize, gang)
		}
		fmt.Println()
	}
}
