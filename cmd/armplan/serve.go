package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-twolink/internal/log"
	"github.com/teslashibe/go-twolink/pkg/arm"
	"github.com/teslashibe/go-twolink/pkg/hub"
	"github.com/teslashibe/go-twolink/pkg/session"
	"github.com/teslashibe/go-twolink/pkg/web"
)

func newServeCmd(c *cli) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and websocket streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			elbow, err := cfg.Motion.ElbowMode()
			if err != nil {
				return err
			}
			sess, err := session.NewAtHome(cfg.Arm.Workspace(), cfg.Arm.Home(), elbow)
			if err != nil {
				return err
			}
			sess.SetGripper(cfg.Motion.Gripper)

			stream := hub.New("stream")
			op := arm.NewController(sess, stream, arm.Defaults{
				Duration:  cfg.Motion.Duration,
				Dt:        cfg.Motion.Dt,
				Elbow:     elbow,
				Animate:   cfg.Motion.Animate,
				Home:      cfg.Arm.Home(),
				FrameRate: cfg.Motion.FrameRate,
			})
			defer op.Close()

			srv := web.NewServer(web.Config{
				Port:      cfg.Server.Port,
				RateLimit: cfg.Server.RateLimit,
				Burst:     cfg.Server.Burst,
				Static:    cfg.Server.Static,
				AccessLog: cfg.Server.AccessLog || cfg.Logger.Level == "debug",
				Workspace: cfg.Arm.Workspace(),
			}, op, stream)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log.Info("armplan serving", "port", cfg.Server.Port, "animate", cfg.Motion.Animate)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default from config)")
	return cmd
}
