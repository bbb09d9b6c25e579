package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-zdb/internal/services"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "Print the DMU object type catalog",
	Long: `Print every known DMU object type with its numeric value and whether
it is a ZAP or metadata type. Needs no pool image.

Examples:
  zdb-browse types
  zdb-browse types -o json`,

	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTypes(); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
}

func runTypes() error {
	entries := services.ListDmuTypes()
	if emitJSON(entries) {
		return nil
	}
	for _, e := range entries {
		flags := ""
		if e.IsZap {
			flags += " zap"
		}
		if e.Metadata {
			flags += " metadata"
		}
		fmt.Printf("%4d  %-28s%s\n", e.Value, e.Name, flags)
	}
	return nil
}
