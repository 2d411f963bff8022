package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for mrcpctl",
	Long:  `Generate documentation for mrcpctl`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
