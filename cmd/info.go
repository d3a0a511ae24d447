package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rawcopy/pkg/app/inspect"
)

var infoRecord string

var infoCmd = &cobra.Command{
	Use:   "info <volume>",
	Short: "Show volume geometry and metadata",
	Long: `Show the boot sector geometry, MFT layout, label and NTFS version of a
volume. With --record the attributes of one MFT record are described too.

Examples:
  rawcopy info C:
  rawcopy info disk.img --partition 2
  rawcopy info /dev/sdb1 --record 0 -o yaml`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().StringVarP(&infoRecord, "record", "r", "", "also describe this MFT record, N or N-SEQ")
}

func runInfo(cmd *cobra.Command, volume string) error {
	ctx := newContext(cmd)

	response, err := inspect.Handle(ctx, &inspect.Request{
		Source: volumeSource(volume),
		Record: infoRecord,
	})
	if err != nil {
		return err
	}
	return inspect.FormatOutput(ctx.Stdout, response, ctx.OutputFormat)
}
