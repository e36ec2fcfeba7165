package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listImagesCmd = &cobra.Command{
	Use:   "list-images",
	Short: "List every vm-* and base-* volume visible in this storage namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		o, ctx, err := buildOrchestrator(ctx, "list_images")
		if err != nil {
			return err
		}

		images, err := o.ListImages(ctx)
		if err != nil {
			return err
		}
		for _, img := range images {
			fmt.Printf("%s vmid=%d provisioned=%d used=%d\n", img.Volname, img.VMID, img.Provisioned, img.Used)
		}
		return nil
	},
}
