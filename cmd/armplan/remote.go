package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-twolink/pkg/client"
	"github.com/teslashibe/go-twolink/pkg/protocol"
)

func newRemoteCmd(c *cli) *cobra.Command {
	var server string

	newClient := func(cmd *cobra.Command) (*client.Client, error) {
		cc := c.cfg.Client
		if cmd.Flags().Changed("server") {
			cc.Server = server
		}
		return client.New(cc.Server,
			client.WithTimeout(cc.Timeout),
			client.WithMaxElapsed(cc.Retry),
			client.WithWaitBusy(cc.WaitBusy),
		)
	}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Drive a running armplan server over HTTP",
		Example: `  armplan remote state
  armplan remote --server http://arm.local:8080 plan --x 0.1 --y 0.15 --no-animate`,
	}
	cmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "state",
			Short: "Print the server's arm state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cl, err := newClient(cmd)
				if err != nil {
					return err
				}
				st, err := cl.State(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			},
		},
		&cobra.Command{
			Use:   "home",
			Short: "Move the arm back to its home position",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cl, err := newClient(cmd)
				if err != nil {
					return err
				}
				res, err := cl.Home(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			},
		},
		&cobra.Command{
			Use:       "gripper on|off",
			Short:     "Toggle gripper-offset mode",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"on", "off"},
			RunE: func(cmd *cobra.Command, args []string) error {
				enabled, err := parseSwitch(args[0])
				if err != nil {
					return err
				}
				cl, err := newClient(cmd)
				if err != nil {
					return err
				}
				st, err := cl.SetGripper(cmd.Context(), enabled)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			},
		},
		newRemotePlanCmd(newClient),
		newRemotePlotCmd(newClient),
	)
	return cmd
}

func newRemotePlanCmd(newClient func(*cobra.Command) (*client.Client, error)) *cobra.Command {
	var (
		req       protocol.PlanRequest
		duration  float64
		dt        float64
		noAnimate bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Request a move from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := cmd.Flags()
			if fl.Changed("duration") {
				req.Duration = &duration
			}
			if fl.Changed("dt") {
				req.Dt = &dt
			}
			if fl.Changed("no-animate") {
				animate := !noAnimate
				req.Animate = &animate
			}
			if err := req.Validate(); err != nil {
				return err
			}

			cl, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := cl.Plan(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&req.ID, "id", "", "request id echoed in the result")
	fl.Float64Var(&req.X, "x", 0, "target x (m)")
	fl.Float64Var(&req.Y, "y", 0, "target y (m)")
	fl.StringVar(&req.Elbow, "elbow", "", "elbow branch: up or down (default from server)")
	fl.Float64Var(&duration, "duration", 0, "move duration in seconds (default from server)")
	fl.Float64Var(&dt, "dt", 0, "sampling step in seconds (default from server)")
	fl.BoolVar(&noAnimate, "no-animate", false, "jump to the goal instead of playing back")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")
	return cmd
}

func newRemotePlotCmd(newClient func(*cobra.Command) (*client.Client, error)) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "plot q1|q2",
		Short: "Download a joint curve of the server's last plan as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := newClient(cmd)
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = args[0] + ".png"
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := cl.Plot(cmd.Context(), args[0], f); err != nil {
				f.Close()
				os.Remove(path)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <joint>.png)")
	return cmd
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return b, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
