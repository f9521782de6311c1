package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/lab-portal/internal/models"
)

// Topics a client can subscribe to.
const (
	TopicAudit = "audit"
	TopicHost  = "host"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

// HostStats is the payload of a host_stats message.
type HostStats struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	Load1         float64 `json:"load1"`
}

// NewAuditMessage wraps a committed audit entry.
func NewAuditMessage(entry models.AuditEntry) []byte {
	return encode(Message{Action: "audit_entry", Payload: entry})
}

// NewHostStatsMessage wraps a host resource snapshot.
func NewHostStatsMessage(stats HostStats) []byte {
	return encode(Message{Action: "host_stats", Payload: stats})
}

// NewErrorMessage creates an error message for the client.
func NewErrorMessage(text string) []byte {
	return encode(Message{Action: "error", Payload: map[string]string{"message": text}})
}

func encode(msg Message) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("action", msg.Action).Msg("Failed to encode websocket message")
		return nil
	}
	return b
}
