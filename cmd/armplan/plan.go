package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/protocol"
	"github.com/teslashibe/go-twolink/pkg/sampler"
	"github.com/teslashibe/go-twolink/pkg/session"
)

// moveFlags are shared by plan and plot.
type moveFlags struct {
	x, y         float64
	fromX, fromY float64
	elbow        string
	duration     float64
	dt           float64
	gripper      bool
}

func (f *moveFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.Float64Var(&f.x, "x", 0, "target x (m)")
	fl.Float64Var(&f.y, "y", 0, "target y (m)")
	fl.Float64Var(&f.fromX, "from-x", 0, "start x (m), defaults to the configured home")
	fl.Float64Var(&f.fromY, "from-y", 0, "start y (m), defaults to the configured home")
	fl.StringVar(&f.elbow, "elbow", "", "elbow branch: up or down (default from config)")
	fl.Float64Var(&f.duration, "duration", 0, "move duration in seconds (default from config)")
	fl.Float64Var(&f.dt, "dt", 0, "sampling step in seconds (default from config)")
	fl.BoolVar(&f.gripper, "gripper", false, "add gripper tip points")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")
}

// run plans the move described by the flags, starting at the home position
// (or --from-x/--from-y) with the configured defaults for unset flags.
func (f *moveFlags) run(cmd *cobra.Command, c *cli) (*session.Result, error) {
	cfg := c.cfg
	fl := cmd.Flags()

	start := cfg.Arm.Home()
	if fl.Changed("from-x") || fl.Changed("from-y") {
		start = geometry.Pt(f.fromX, f.fromY)
	}

	elbowName := cfg.Motion.Elbow
	if fl.Changed("elbow") {
		elbowName = f.elbow
	}
	elbow, err := kinematics.ParseElbowMode(elbowName)
	if err != nil {
		return nil, err
	}

	mr := session.MoveRequest{
		Target:   geometry.Pt(f.x, f.y),
		Elbow:    elbow,
		Duration: cfg.Motion.Duration,
		Dt:       cfg.Motion.Dt,
	}
	if fl.Changed("duration") {
		mr.Duration = f.duration
	}
	if fl.Changed("dt") {
		mr.Dt = f.dt
	}

	sess, err := session.NewAtHome(cfg.Arm.Workspace(), start, elbow)
	if err != nil {
		return nil, fmt.Errorf("start position: %w", err)
	}
	sess.SetGripper(cfg.Motion.Gripper || f.gripper)

	return sess.Move(mr)
}

func newPlanCmd(c *cli) *cobra.Command {
	var (
		mf     moveFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a move and print the sampled trajectory",
		Example: `  armplan plan --x 0.10 --y 0.15
  armplan plan --x 0.2 --y 0 --elbow down --duration 5 --format csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := mf.run(cmd, c)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "table":
				return writeTable(out, res.Samples)
			case "csv":
				return writeCSV(out, res.Samples)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(protocol.PlanResult(res, "", false))
			default:
				return fmt.Errorf("unknown format %q (want table, csv or json)", format)
			}
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, csv or json")
	return cmd
}

var sampleHeader = []string{"t", "q1", "dq1", "ddq1", "q2", "dq2", "ddq2", "x", "y", "tip_x", "tip_y"}

func sampleRow(s sampler.Sample, prec int) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', prec, 64) }
	row := []string{f(s.T), f(s.Q1), f(s.DQ1), f(s.DDQ1), f(s.Q2), f(s.DQ2), f(s.DDQ2), f(s.X), f(s.Y), "", ""}
	if s.Tip != nil {
		row[9], row[10] = f(s.Tip.X), f(s.Tip.Y)
	}
	return row
}

func writeCSV(w io.Writer, samples []sampler.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sampleHeader); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write(sampleRow(s, -1)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, samples []sampler.Sample) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	line := func(cols []string) {
		for _, c := range cols {
			fmt.Fprint(tw, c, "\t")
		}
		fmt.Fprintln(tw)
	}
	line(sampleHeader)
	for _, s := range samples {
		line(sampleRow(s, 4))
	}
	return tw.Flush()
}
