package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/paddockcloud/lt-engine/internal/database"
	"github.com/paddockcloud/lt-engine/internal/registry"
	"github.com/paddockcloud/lt-engine/internal/state"
)

// snapshotPath is the internal route peers hit when proxying a
// session-state read to the event's owner. The body is msgpack.
const snapshotPath = "/internal/v1/events/%d/session-state"

// SessionStateHandler serves current-session-state reads. When this
// process owns the event the snapshot comes straight from memory;
// otherwise the request is proxied to the owner resolved through the
// endpoint registry.
type SessionStateHandler struct {
	ownedEventID int
	store        *state.Store
	registry     *registry.Registry
	db           *database.DB
	client       *http.Client
}

func NewSessionStateHandler(ownedEventID int, store *state.Store, reg *registry.Registry, db *database.DB) *SessionStateHandler {
	return &SessionStateHandler{
		ownedEventID: ownedEventID,
		store:        store,
		registry:     reg,
		db:           db,
		client:       &http.Client{Timeout: 5 * time.Second},
	}
}

func eventIDParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "eventID"))
}

// GetCurrentState returns the live snapshot for an event as JSON.
func (h *SessionStateHandler) GetCurrentState(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	if h.store != nil && eventID == h.ownedEventID {
		WriteJSON(w, http.StatusOK, h.store.Snapshot())
		return
	}

	snapshot, err := h.fetchRemote(r, eventID)
	if err != nil {
		if errors.Is(err, registry.ErrNoEndpoint) {
			WriteError(w, http.StatusNotFound, "no live session for event")
			return
		}
		hlog.FromRequest(r).Warn().Err(err).Int("event_id", eventID).Msg("snapshot proxy failed")
		WriteError(w, http.StatusBadGateway, "owner unreachable")
		return
	}
	WriteJSON(w, http.StatusOK, snapshot)
}

// GetSnapshotMsgpack serves the msgpack snapshot peers fetch when
// proxying. Only meaningful on the owning process.
func (h *SessionStateHandler) GetSnapshotMsgpack(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil || h.store == nil || eventID != h.ownedEventID {
		WriteError(w, http.StatusNotFound, "event not owned by this instance")
		return
	}

	data, err := msgpack.Marshal(h.store.Snapshot())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "snapshot encode failed")
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.Write(data)
}

func (h *SessionStateHandler) fetchRemote(r *http.Request, eventID int) (*state.SessionState, error) {
	base, err := h.registry.Resolve(r.Context(), eventID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet,
		base+fmt.Sprintf(snapshotPath, eventID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("owner returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var snapshot state.SessionState
	if err := msgpack.Unmarshal(body, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListResults returns the archived session ids for an event.
func (h *SessionStateHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	sessions, err := h.db.SessionResults(r.Context(), eventID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("result list query failed")
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"eventId":  eventID,
		"sessions": sessions,
	})
}

// GetResult returns one archived result payload. The payload is the
// same base64(gzip(json)) encoding clients receive live.
func (h *SessionStateHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	sessionID, err := strconv.Atoi(chi.URLParam(r, "sessionID"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	payload, ok, err := h.db.SessionResult(r.Context(), eventID, sessionID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("result query failed")
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if !ok {
		WriteError(w, http.StatusNotFound, "no archived result")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"eventId":   eventID,
		"sessionId": sessionID,
		"payload":   payload,
	})
}

// GetCarLaps returns the recorded lap history for one car.
func (h *SessionStateHandler) GetCarLaps(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	sessionID, err := strconv.Atoi(chi.URLParam(r, "sessionID"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	car := chi.URLParam(r, "car")

	laps, err := h.db.CarLaps(r.Context(), eventID, sessionID, car)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("lap query failed")
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"eventId":   eventID,
		"sessionId": sessionID,
		"carNumber": car,
		"laps":      laps,
	})
}
