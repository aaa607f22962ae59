package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-twolink/pkg/plot"
)

func newPlotCmd(c *cli) *cobra.Command {
	var (
		mf   moveFlags
		out  string
		size = plot.DefaultSize()
	)

	cmd := &cobra.Command{
		Use:     "plot",
		Short:   "Plan a move and write q1/q2 joint-angle plots as PNG",
		Example: `  armplan plot --x 0.10 --y 0.15 --out plots`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := mf.run(cmd, c)
			if err != nil {
				return err
			}
			paths, err := plot.SaveAll(out, res.Samples, size)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", ".", "output directory")
	cmd.Flags().Float64Var(&size.Width, "width", size.Width, "image width in inches")
	cmd.Flags().Float64Var(&size.Height, "height", size.Height, "image height in inches")
	cmd.Flags().IntVar(&size.DPI, "dpi", size.DPI, "image resolution")
	return cmd
}
