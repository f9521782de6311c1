package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	inspect  container.InspectResponse
	stats    string
	logs     []byte
	calls    []string
	logsOpts container.LogsOptions
	err      error
}

func (f *fakeAPI) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	f.calls = append(f.calls, "inspect:"+id)
	return f.inspect, f.err
}

func (f *fakeAPI) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.calls = append(f.calls, "start:"+id)
	return f.err
}

func (f *fakeAPI) ContainerStop(_ context.Context, id string, opts container.StopOptions) error {
	f.calls = append(f.calls, "stop:"+id)
	if opts.Timeout == nil || *opts.Timeout != 10 {
		return errors.New("unexpected stop timeout")
	}
	return f.err
}

func (f *fakeAPI) ContainerRestart(_ context.Context, id string, _ container.StopOptions) error {
	f.calls = append(f.calls, "restart:"+id)
	return f.err
}

func (f *fakeAPI) ContainerLogs(_ context.Context, id string, opts container.LogsOptions) (io.ReadCloser, error) {
	f.calls = append(f.calls, "logs:"+id)
	f.logsOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.logs)), nil
}

func (f *fakeAPI) ContainerStats(_ context.Context, id string, _ bool) (container.StatsResponseReader, error) {
	f.calls = append(f.calls, "stats:"+id)
	return container.StatsResponseReader{Body: io.NopCloser(strings.NewReader(f.stats))}, nil
}

func (f *fakeAPI) Close() error { return nil }

func TestClient_StatusRunning(t *testing.T) {
	api := &fakeAPI{
		inspect: container.InspectResponse{
			ContainerJSONBase: &container.ContainerJSONBase{
				Name: "/lab-portal",
				State: &container.State{
					Status:    "running",
					Running:   true,
					StartedAt: "2026-01-02T03:04:05Z",
				},
			},
			Config: &container.Config{Image: "lab-portal:latest"},
		},
		stats: `{"cpu_stats":{"cpu_usage":{"total_usage":200},"system_cpu_usage":1000,"online_cpus":2},` +
			`"precpu_stats":{"cpu_usage":{"total_usage":100},"system_cpu_usage":500},` +
			`"memory_stats":{"usage":256,"limit":1024}}`,
	}
	c := NewWithAPI(api)

	status, err := c.Status(context.Background(), "lab-portal")
	require.NoError(t, err)
	assert.Equal(t, "lab-portal", status.Name)
	assert.Equal(t, "lab-portal:latest", status.Image)
	assert.Equal(t, "running", status.State)
	assert.True(t, status.Running)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), status.StartedAt.UTC())
	assert.InDelta(t, 40.0, status.CPUPercent, 0.001)
	assert.InDelta(t, 25.0, status.RAMPercent, 0.001)
	assert.Equal(t, []string{"inspect:lab-portal", "stats:lab-portal"}, api.calls)
}

func TestClient_StatusStoppedSkipsStats(t *testing.T) {
	api := &fakeAPI{
		inspect: container.InspectResponse{
			ContainerJSONBase: &container.ContainerJSONBase{
				Name:  "/lab-portal",
				State: &container.State{Status: "exited"},
			},
		},
	}

	status, err := NewWithAPI(api).Status(context.Background(), "lab-portal")
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, "exited", status.State)
	assert.True(t, status.StartedAt.IsZero())
	assert.Equal(t, []string{"inspect:lab-portal"}, api.calls)
}

func TestClient_Lifecycle(t *testing.T) {
	api := &fakeAPI{}
	c := NewWithAPI(api)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, "portal"))
	require.NoError(t, c.Stop(ctx, "portal"))
	require.NoError(t, c.Restart(ctx, "portal"))
	assert.Equal(t, []string{"start:portal", "stop:portal", "restart:portal"}, api.calls)

	api.err = errors.New("daemon down")
	err := c.Restart(ctx, "portal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon down")
}

func TestClient_LogsDemultiplexes(t *testing.T) {
	var stream bytes.Buffer
	_, err := stdcopy.NewStdWriter(&stream, stdcopy.Stdout).Write([]byte("listening on :8080\n"))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&stream, stdcopy.Stderr).Write([]byte("warning: cookie domain unset\n"))
	require.NoError(t, err)

	api := &fakeAPI{logs: stream.Bytes()}
	var stdout, stderr bytes.Buffer

	require.NoError(t, NewWithAPI(api).Logs(context.Background(), "portal", 50, false, &stdout, &stderr))
	assert.Equal(t, "listening on :8080\n", stdout.String())
	assert.Equal(t, "warning: cookie domain unset\n", stderr.String())
	assert.Equal(t, "50", api.logsOpts.Tail)
	assert.False(t, api.logsOpts.Follow)

	require.NoError(t, NewWithAPI(&fakeAPI{}).Logs(context.Background(), "portal", 0, true, &stdout, &stderr))
}

func TestCalculatePercentages_ZeroValues(t *testing.T) {
	var stats container.StatsResponse
	assert.Zero(t, CalculateCPUPercent(&stats))
	assert.Zero(t, CalculateRAMPercent(&stats))
}
