package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rawcopy/pkg/app/browse"
)

var (
	listPath     string
	listRecord   string
	listDOSNames bool
)

var listCmd = &cobra.Command{
	Use:   "list <volume>",
	Short: "List a directory from its index",
	Long: `List the entries of a directory by walking its $I30 index on disk.

Examples:
  # Root directory of a volume image
  rawcopy list evidence.img

  # A directory by path, with 8.3 aliases
  rawcopy list C: --path /Windows/System32/config --dos-names

  # A directory by MFT record
  rawcopy list /dev/sdb1 --record 5 -o json`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listPath, "path", "p", "", "directory path (default: root)")
	listCmd.Flags().StringVarP(&listRecord, "record", "r", "", "directory MFT record, N or N-SEQ")
	listCmd.Flags().BoolVar(&listDOSNames, "dos-names", false, "include DOS 8.3 alias entries")

	listCmd.MarkFlagsMutuallyExclusive("path", "record")
}

func runList(cmd *cobra.Command, volume string) error {
	ctx := newContext(cmd)

	response, err := browse.Handle(ctx, &browse.Request{
		Source:          volumeSource(volume),
		Path:            listPath,
		Record:          listRecord,
		IncludeDOSNames: listDOSNames,
	})
	if err != nil {
		return err
	}
	return browse.FormatOutput(ctx.Stdout, response, ctx.OutputFormat)
}
