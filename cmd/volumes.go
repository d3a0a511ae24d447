package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rawcopy/pkg/app/volumes"
)

var volumesImage string

var volumesCmd = &cobra.Command{
	Use:   "volumes",
	Short: "List NTFS volumes or partitions of a disk image",
	Long: `List the host's mounted NTFS volumes with the raw device path to pass to
the other commands, or the partition table of a whole-disk image.

Examples:
  rawcopy volumes
  rawcopy volumes --image disk.img`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := newContext(cmd)
		response, err := volumes.Handle(ctx, &volumes.Request{Image: volumesImage})
		if err != nil {
			return err
		}
		return volumes.FormatOutput(ctx.Stdout, response, ctx.OutputFormat)
	},
}

func init() {
	rootCmd.AddCommand(volumesCmd)

	volumesCmd.Flags().StringVar(&volumesImage, "image", "", "whole-disk image whose partition table to list")
}
