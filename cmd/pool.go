package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var poolCmd = &cobra.Command{
	Use:   "pool [image-path]",
	Short: "Show the active uberblock and meta object set",
	Long: `Scan a vdev label's uberblock ring, pick the slot with the highest
txg, and summarize the meta object set it points at.

Examples:
  # Summarize a pool image
  zdb-browse pool tank.img

  # Scan a backup label instead
  zdb-browse pool tank.img --label 3`,

	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		image := ""
		if len(args) > 0 {
			image = args[0]
		}
		if err := runPool(cmd, image); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(poolCmd)
}

func runPool(cmd *cobra.Command, image string) error {
	session, cleanup, err := openSession(cmd.Context(), image)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := session.Pool.Summary(cmd.Context())
	if err != nil {
		return err
	}
	if emitJSON(summary) {
		return nil
	}

	fmt.Printf("Pool image: %s\n", session.Image)
	fmt.Printf("    Label:        %d\n", summary.LabelIndex)
	fmt.Printf("    Txg:          %d\n", summary.Txg)
	fmt.Printf("    Version:      %d\n", summary.Version)
	fmt.Printf("    Timestamp:    %d\n", summary.Timestamp)
	fmt.Printf("    Guid sum:     %#x\n", summary.GuidSum)
	fmt.Printf("    Endian:       %s\n", summary.Endian)
	fmt.Printf("    Objset type:  %s\n", summary.ObjsetType)
	fmt.Printf("    Max object:   %d\n", summary.MaxObjectID)
	fmt.Printf("    Root bp:      level %d type %s lsize %d psize %d birth %d\n",
		summary.RootBp.Level, summary.RootBp.TypeName,
		summary.RootBp.Lsize, summary.RootBp.Psize, summary.RootBp.BirthTxg)
	return nil
}
