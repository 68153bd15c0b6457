package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"fleet-dispatch/dispatch"
	"fleet-dispatch/models"
)

// Webhook payloads arrive from heterogeneous callers. They are parsed into a
// strict two-shape union; anything matching neither shape is rejected rather
// than probed field by field.

// directInvocation asks for an operation on a trip by id.
type directInvocation struct {
	Action string `json:"action"`
	TripID int64  `json:"trip_id"`
}

// recordChangeEvent mirrors a store-level change feed entry for the trips
// table.
type recordChangeEvent struct {
	Type   string          `json:"type"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

type webhookPayload struct {
	direct *directInvocation
	change *recordChangeEvent
}

var errUnknownShape = errors.New("payload matches neither DirectInvocation nor RecordChangeEvent")

func parseWebhookPayload(body []byte) (*webhookPayload, error) {
	var direct directInvocation
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&direct); err == nil && direct.Action != "" && direct.TripID > 0 {
		return &webhookPayload{direct: &direct}, nil
	}

	var change recordChangeEvent
	dec = json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&change); err == nil &&
		(change.Type == "INSERT" || change.Type == "UPDATE") &&
		change.Table == "trips" && len(change.Record) > 0 {
		return &webhookPayload{change: &change}, nil
	}

	return nil, errUnknownShape
}

// TripWebhook accepts dispatch requests from external callers: either a
// direct invocation or a change-feed event for a freshly inserted trip.
func (s *Server) TripWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, fmt.Errorf("%w: unreadable body", dispatch.ErrInvalidInput))
		return
	}
	payload, err := parseWebhookPayload(body)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", dispatch.ErrInvalidInput, err))
		return
	}

	var tripID int64
	switch {
	case payload.direct != nil:
		if payload.direct.Action != "dispatch" {
			writeError(w, fmt.Errorf("%w: unsupported action %q", dispatch.ErrInvalidInput, payload.direct.Action))
			return
		}
		tripID = payload.direct.TripID
	case payload.change != nil:
		var record struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(payload.change.Record, &record); err != nil || record.ID <= 0 {
			writeError(w, fmt.Errorf("%w: record is missing a trip id", dispatch.ErrInvalidInput))
			return
		}
		if record.Status != "" && record.Status != models.StatusPending {
			// Change events for non-pending trips are acknowledged, not
			// dispatched.
			writeJSON(w, http.StatusOK, map[string]string{"outcome": "ignored"})
			return
		}
		tripID = record.ID
	}

	assignment, err := s.engine.Dispatch(r.Context(), tripID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"outcome":    "assigned",
			"trip_id":    assignment.TripID,
			"driver_id":  assignment.DriverID,
			"distance_m": assignment.DistanceM,
		})
	case errors.Is(err, dispatch.ErrNoCandidates):
		writeJSON(w, http.StatusOK, map[string]string{"outcome": "no_candidates"})
	case errors.Is(err, dispatch.ErrConflict):
		writeJSON(w, http.StatusOK, map[string]string{"outcome": "already_resolved"})
	default:
		writeError(w, err)
	}
}
