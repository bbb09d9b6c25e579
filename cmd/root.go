package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global output flags only
	verbose      bool
	quiet        bool
	outputFormat string

	// Pool open flags, overriding config file values
	imageFlag       string
	labelIndex      int
	verifyChecksums bool
)

var rootCmd = &cobra.Command{
	Use:   "zdb-browse",
	Short: "Read-only ZFS pool metadata browser",
	Long: `zdb-browse is a read-only command-line tool for exploring the on-disk
metadata of ZFS pool images: objects, block pointers, ZAP directories,
space maps, datasets, and snapshots.

Works directly with raw pool image files without importing the pool or
relying on the ZFS kernel modules. Ideal for forensic analysis, damage
assessment, and learning the on-disk format.

Commands:
  pool        Show the active uberblock and meta object set
  object      Decode one object's dnode and bonus buffer
  objects     List objects in the meta object set
  blkptrs     Show an object's block pointers
  zap         Show a ZAP object's header and entries
  spacemap    Summarize or list a space map's ranges
  dataset     Walk datasets, snapshots, and clone lineage
  graph       Show semantic edges or the block indirection tree
  read        Read raw bytes at a physical offset
  types       Print the DMU object type catalog`,
	Version: "0.1.0-dev",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global output control flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json)")

	// Pool open flags
	rootCmd.PersistentFlags().StringVarP(&imageFlag, "image", "i", "", "path to the pool image file")
	rootCmd.PersistentFlags().IntVar(&labelIndex, "label", 0, "vdev label to scan (0-3)")
	rootCmd.PersistentFlags().BoolVar(&verifyChecksums, "verify-checksums", false, "verify fletcher4 checksums on reads")
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
