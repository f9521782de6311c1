package docker

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/samber/oops"
)

// API is the subset of the Docker engine client the portal uses.
type API interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStats(ctx context.Context, containerID string, stream bool) (container.StatsResponseReader, error)
	Close() error
}

// Client wraps the official Docker client to manage the portal's own container.
type Client struct {
	cli API
}

// ContainerStatus is a summary of a container's state.
type ContainerStatus struct {
	Name       string    `json:"name"`
	Image      string    `json:"image"`
	State      string    `json:"state"`
	Running    bool      `json:"running"`
	Health     string    `json:"health,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	CPUPercent float64   `json:"cpuPercent"`
	RAMPercent float64   `json:"ramPercent"`
}

// New creates a new Docker client wrapper from the environment.
func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, oops.Code("DOCKER_UNAVAILABLE").Wrap(err)
	}
	return &Client{cli: cli}, nil
}

// NewWithAPI wraps an existing engine client.
func NewWithAPI(cli API) *Client {
	return &Client{cli: cli}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.cli.Close()
}

// Status inspects a container. Resource usage is filled in only while it runs.
func (c *Client) Status(ctx context.Context, name string) (ContainerStatus, error) {
	info, err := c.cli.ContainerInspect(ctx, name)
	if err != nil {
		return ContainerStatus{}, wrap(err, "inspect", name)
	}

	status := ContainerStatus{Name: name}
	if info.ContainerJSONBase != nil {
		if info.Name != "" {
			status.Name = trimSlash(info.Name)
		}
		if st := info.State; st != nil {
			status.State = string(st.Status)
			status.Running = st.Running
			if started, err := time.Parse(time.RFC3339Nano, st.StartedAt); err == nil {
				status.StartedAt = started
			}
			if st.Health != nil {
				status.Health = string(st.Health.Status)
			}
		}
	}
	if info.Config != nil {
		status.Image = info.Config.Image
	}

	if status.Running {
		stats, err := c.stats(ctx, name)
		if err == nil {
			status.CPUPercent = CalculateCPUPercent(stats)
			status.RAMPercent = CalculateRAMPercent(stats)
		}
	}
	return status, nil
}

// Start starts a container by name or id.
func (c *Client) Start(ctx context.Context, name string) error {
	return wrap(c.cli.ContainerStart(ctx, name, container.StartOptions{}), "start", name)
}

// Stop stops a container, allowing it 10 seconds to shut down gracefully.
func (c *Client) Stop(ctx context.Context, name string) error {
	timeout := 10
	return wrap(c.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}), "stop", name)
}

// Restart restarts a container.
func (c *Client) Restart(ctx context.Context, name string) error {
	return wrap(c.cli.ContainerRestart(ctx, name, container.StopOptions{}), "restart", name)
}

// Logs copies the last tail lines of the container's output to stdout and
// stderr. With follow it keeps streaming until ctx is cancelled.
func (c *Client) Logs(ctx context.Context, name string, tail int, follow bool, stdout, stderr io.Writer) error {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: true,
		Tail:       "all",
	}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}

	rc, err := c.cli.ContainerLogs(ctx, name, opts)
	if err != nil {
		return wrap(err, "logs", name)
	}
	defer rc.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, rc); err != nil && ctx.Err() == nil {
		return wrap(err, "logs", name)
	}
	return nil
}

func (c *Client) stats(ctx context.Context, name string) (*container.StatsResponse, error) {
	resp, err := c.cli.ContainerStats(ctx, name, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// CalculateCPUPercent calculates the CPU usage percentage from Docker stats.
func CalculateCPUPercent(stats *container.StatsResponse) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	onlineCPUs := float64(stats.CPUStats.OnlineCPUs)
	if onlineCPUs == 0.0 {
		onlineCPUs = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}

	if systemDelta > 0.0 && cpuDelta > 0.0 {
		return (cpuDelta / systemDelta) * onlineCPUs * 100.0
	}
	return 0.0
}

// CalculateRAMPercent calculates the RAM usage percentage from Docker stats.
func CalculateRAMPercent(stats *container.StatsResponse) float64 {
	if stats.MemoryStats.Limit > 0 {
		return float64(stats.MemoryStats.Usage) / float64(stats.MemoryStats.Limit) * 100.0
	}
	return 0.0
}

func wrap(err error, op, name string) error {
	if err == nil {
		return nil
	}
	code := "DOCKER_" + strings.ToUpper(op) + "_FAILED"
	if client.IsErrNotFound(err) {
		code = "DOCKER_CONTAINER_NOT_FOUND"
	}
	return oops.Code(code).With("container", name).With("operation", op).Wrap(err)
}

func trimSlash(name string) string {
	return strings.TrimPrefix(name, "/")
}
