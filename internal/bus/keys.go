package bus

import (
	"fmt"
	"strconv"
	"strings"
)

// Stream entry types carried in the per-event status stream. The field
// name of each entry encodes the type plus event and session ids.
const (
	TypeRMonitor       = "rmon"
	TypeMultiloop      = "multiloop"
	TypePassings       = "x2pass"
	TypeLoops          = "x2loops"
	TypeFlags          = "flags"
	TypeCompetitors    = "competitors"
	TypeSessionChanged = "session_changed"
	TypeDriverEvent    = "driver_event"
	TypeDriverTrans    = "driver_trans"
	TypeVideo          = "video"
	TypeConfigChanged  = "config_changed"
)

// Pub/sub channels.
const (
	ChannelFullStatus = "send_full_status"
	ChannelRelayReset = "relay_reset"
)

// Hash keys for the connection registries.
const (
	KeyStatusConnections     = "status_connections"
	KeyRelayEventConnections = "relay_event_connections"
)

func EventStream(eventID int) string {
	return fmt.Sprintf("event_status_stream:%d", eventID)
}

func EventEndpoint(eventID int) string {
	return fmt.Sprintf("event_service_endpoint:%d", eventID)
}

func EventPayload(eventID int) string {
	return fmt.Sprintf("event_payload:%d", eventID)
}

func StatusEventConnections(eventID int) string {
	return fmt.Sprintf("status_event_connections:%d", eventID)
}

func RelayConnectionField(connectionID string) string {
	return fmt.Sprintf("relay_connection:%s", connectionID)
}

func RelayHeartbeatField(eventID int) string {
	return fmt.Sprintf("relay_heartbeat:%d", eventID)
}

func ClientIDKey(clientID string) string {
	return fmt.Sprintf("client_id:%s", clientID)
}

func CompetitorMetadataKey(carNumber string, eventID int) string {
	return fmt.Sprintf("competitor_metadata:%s:%d", carNumber, eventID)
}

// FieldTag builds the stream field name for a message: {type}-{eventId}-{sessionId}.
func FieldTag(msgType string, eventID, sessionID int) string {
	return fmt.Sprintf("%s-%d-%d", msgType, eventID, sessionID)
}

// ParseFieldTag splits a stream field name back into its three tags.
func ParseFieldTag(field string) (msgType string, eventID, sessionID int, err error) {
	parts := strings.Split(field, "-")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("malformed field tag %q", field)
	}
	eventID, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("field tag %q: bad event id: %w", field, err)
	}
	sessionID, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("field tag %q: bad session id: %w", field, err)
	}
	return parts[0], eventID, sessionID, nil
}
