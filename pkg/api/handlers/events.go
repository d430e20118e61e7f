package handlers

import (
	"net/http"

	"github.com/rNintendoSwitch/Parakarry/pkg/events"
	"github.com/rNintendoSwitch/Parakarry/pkg/gateway"
	"github.com/rNintendoSwitch/Parakarry/pkg/utils"
)

// Events accepts platform events pushed by the bridge.
type Events struct {
	Dispatcher *events.Dispatcher
}

// Push handles POST /v1/events. Accepted events are queued; 202 means the
// event will be processed, not that it already was.
func (e *Events) Push(w http.ResponseWriter, r *http.Request) {
	var ev gateway.Event
	if !decode(w, r, &ev) {
		return
	}
	if ev.Type == "" {
		utils.JSONError(w, http.StatusBadRequest, "event type missing")
		return
	}
	if err := e.Dispatcher.Enqueue(r.Context(), ev); err != nil {
		utils.JSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
