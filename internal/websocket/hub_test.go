package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/isdelr/lab-portal/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T, origins ...string) *Hub {
	t.Helper()
	hub := NewHub(origins)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send():
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHub_BroadcastByTopic(t *testing.T) {
	hub := startHub(t)

	audit := NewClient(hub, nil, TopicAudit)
	host := NewClient(hub, nil, TopicHost)
	require.True(t, hub.Register(audit))
	require.True(t, hub.Register(host))

	hub.PublishAudit(models.AuditEntry{ID: 7, ActorLabel: "alice", Action: models.ActionLogout})
	hub.PublishHostStats(HostStats{CPUPercent: 12.5})

	var msg Message
	require.NoError(t, json.Unmarshal(receive(t, audit), &msg))
	assert.Equal(t, "audit_entry", msg.Action)
	payload, ok := msg.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", payload["actor"])
	assert.Equal(t, "logout", payload["action"])

	require.NoError(t, json.Unmarshal(receive(t, host), &msg))
	assert.Equal(t, "host_stats", msg.Action)

	select {
	case extra := <-audit.Send():
		t.Fatalf("audit client got unexpected message %s", extra)
	default:
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := startHub(t)

	c := NewClient(hub, nil, TopicAudit)
	require.True(t, hub.Register(c))
	hub.Unregister(c)

	select {
	case _, ok := <-c.Send():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed")
	}

	// A second unregister is harmless.
	hub.Unregister(c)
}

func TestHub_SlowConsumerDropped(t *testing.T) {
	hub := startHub(t)

	slow := NewClient(hub, nil, TopicAudit)
	require.True(t, hub.Register(slow))

	// Nobody reads slow, so the last entry overflows its buffer.
	for i := 0; i < sendBufferSize+1; i++ {
		hub.PublishAudit(models.AuditEntry{ID: int64(i)})
	}

	// Broadcasts are handled in order: once a fresh client sees the marker,
	// every earlier entry has been delivered or dropped.
	const marker = int64(1000)
	watcher := NewClient(hub, nil, TopicAudit)
	require.True(t, hub.Register(watcher))
	hub.PublishAudit(models.AuditEntry{ID: marker})
	for {
		var msg struct {
			Payload models.AuditEntry `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(receive(t, watcher), &msg))
		if msg.Payload.ID == marker {
			break
		}
	}

	for i := 0; i < sendBufferSize; i++ {
		var msg struct {
			Payload models.AuditEntry `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(receive(t, slow), &msg))
		assert.Equal(t, int64(i), msg.Payload.ID)
	}
	select {
	case _, ok := <-slow.Send():
		assert.False(t, ok, "slow consumer was not dropped")
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestHub_StopClosesClientsAndUnblocksPublishers(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := NewClient(hub, nil, TopicAudit)
	require.True(t, hub.Register(c))

	cancel()
	<-hub.Done()

	_, ok := <-c.Send()
	assert.False(t, ok)

	assert.False(t, hub.Register(NewClient(hub, nil, TopicAudit)))
	for i := 0; i < 100; i++ {
		hub.PublishAudit(models.AuditEntry{ID: int64(i)})
	}
	hub.Unregister(c)
}

func TestHub_ServeWS(t *testing.T) {
	hub := startHub(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, TopicAudit)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration is asynchronous; publish until the entry arrives.
	got := make(chan []byte, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := conn.ReadMessage()
		if err == nil {
			got <- data
		}
		close(got)
	}()

	var data []byte
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for data == nil {
		select {
		case d, ok := <-got:
			require.True(t, ok, "no message received")
			data = d
		case <-ticker.C:
			hub.PublishAudit(models.AuditEntry{ID: 1, ActorLabel: "bob", Action: models.ActionLoginFailure})
		}
	}

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "audit_entry", msg.Action)
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub([]string{"https://wiki.lab.example"})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"same host", "https://portal.lab.example", true},
		{"allowed sibling", "https://wiki.lab.example", true},
		{"foreign", "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "https://portal.lab.example/admin/audit/stream", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, hub.checkOrigin(r))
		})
	}
}
