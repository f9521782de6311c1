package cli

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/isdelr/lab-portal/internal/monitoring"
)

var collectHost = monitoring.CollectHost

func newSystemCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system",
		Short: "Inspect the host",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show host CPU, memory, disk and load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := collectHost(cmd.Context(), filepath.Dir(opts.cfg.DatabasePath))
			if err != nil {
				return err
			}
			printf(cmd, "Host:    %s (%s)\n", snap.Hostname, snap.Platform)
			printf(cmd, "Uptime:  %s\n", (time.Duration(snap.Uptime) * time.Second).String())
			printf(cmd, "CPU:     %.1f%%\n", snap.CPUPercent)
			printf(cmd, "Memory:  %.1f%% (%d / %d MiB)\n", snap.MemoryPercent, snap.MemoryUsed>>20, snap.MemoryTotal>>20)
			printf(cmd, "Disk:    %.1f%%\n", snap.DiskPercent)
			printf(cmd, "Load:    %.2f %.2f %.2f\n", snap.Load1, snap.Load5, snap.Load15)
			return nil
		},
	})
	return cmd
}
