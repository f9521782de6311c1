package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/isdelr/lab-portal/internal/docker"
)

// containerRuntime is the slice of the Docker client the console drives.
type containerRuntime interface {
	Status(ctx context.Context, name string) (docker.ContainerStatus, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Logs(ctx context.Context, name string, tail int, follow bool, stdout, stderr io.Writer) error
	Close() error
}

var newRuntime = func() (containerRuntime, error) {
	return docker.New()
}

func newServiceCmd(opts *rootOptions) *cobra.Command {
	var container string

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Operate the portal container",
	}
	cmd.PersistentFlags().StringVar(&container, "container", "", "container name (default: docker.container from config)")

	name := func() string {
		if container != "" {
			return container
		}
		return opts.cfg.Docker.Container
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show container state and resource usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(func(rt containerRuntime) error {
				st, err := rt.Status(cmd.Context(), name())
				if err != nil {
					return err
				}
				printf(cmd, "Container: %s\nImage:     %s\nState:     %s\n", st.Name, st.Image, st.State)
				if st.Health != "" {
					printf(cmd, "Health:    %s\n", st.Health)
				}
				if st.Running && !st.StartedAt.IsZero() {
					printf(cmd, "Started:   %s (up %s)\n", st.StartedAt.Local().Format(time.RFC3339),
						time.Since(st.StartedAt).Truncate(time.Second))
				}
				if st.Running {
					printf(cmd, "CPU:       %.1f%%\nMemory:    %.1f%%\n", st.CPUPercent, st.RAMPercent)
				}
				return nil
			})
		},
	})

	lifecycle := []struct {
		use, short, done string
		op               func(containerRuntime, context.Context, string) error
	}{
		{"start", "Start the container", "Started", containerRuntime.Start},
		{"stop", "Stop the container", "Stopped", containerRuntime.Stop},
		{"restart", "Restart the container", "Restarted", containerRuntime.Restart},
	}
	for _, lc := range lifecycle {
		lc := lc // per-iteration copy: go.mod targets go 1.21, before per-iteration loop variables
		cmd.AddCommand(&cobra.Command{
			Use:   lc.use,
			Short: lc.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRuntime(func(rt containerRuntime) error {
					if err := lc.op(rt, cmd.Context(), name()); err != nil {
						return err
					}
					printf(cmd, "%s %s\n", lc.done, name())
					return nil
				})
			},
		})
	}

	var (
		tail   int
		follow bool
	)
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print container logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(func(rt containerRuntime) error {
				return rt.Logs(cmd.Context(), name(), tail, follow, cmd.OutOrStdout(), cmd.ErrOrStderr())
			})
		},
	}
	logsCmd.Flags().IntVar(&tail, "tail", 50, "number of lines from the end, 0 for all")
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new output")
	cmd.AddCommand(logsCmd)

	return cmd
}

func withRuntime(fn func(containerRuntime) error) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
