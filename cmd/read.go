package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var readVdev uint64

var readCmd = &cobra.Command{
	Use:   "read [image-path] <offset> <length>",
	Short: "Read raw bytes at a physical offset",
	Long: `Read bytes straight off the image with no decompression or checksum
handling and print a hex dump. Length is capped at 1 MiB. Offsets accept
0x prefixes.

Examples:
  # First label's uberblock ring
  zdb-browse read tank.img 0x20000 1024`,

	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRead(cmd, args); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().Uint64Var(&readVdev, "vdev", 0, "vdev to read from")
}

func runRead(cmd *cobra.Command, args []string) error {
	image := ""
	if len(args) == 3 {
		image = args[0]
		args = args[1:]
	}
	offset, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", args[0], err)
	}
	length, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid length %q: %w", args[1], err)
	}

	session, cleanup, err := openSession(cmd.Context(), image)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := session.Blocks.ReadRaw(cmd.Context(), readVdev, offset, length)
	if err != nil {
		return err
	}
	if emitJSON(map[string]any{"offset": offset, "length": length, "data": data}) {
		return nil
	}
	fmt.Print(hex.Dump(data))
	return nil
}
