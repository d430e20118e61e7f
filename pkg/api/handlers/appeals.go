package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rNintendoSwitch/Parakarry/pkg/appeal"
	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/utils"
)

// Appeals exposes ban-appeal decisions over HTTP.
type Appeals struct {
	Service *appeal.Service
}

type decisionRequest struct {
	Decider models.UserRef `json:"decider"`
	Reason  string         `json:"reason,omitempty"`
	// NextAttempt applies to denials only: schedule-delay syntax or
	// "permanent" for a final denial.
	NextAttempt string `json:"next_attempt,omitempty"`
}

// Accept handles POST /v1/appeals/{id}/accept.
func (a *Appeals) Accept(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := a.Service.Accept(r.Context(), id, req.Decider, req.Reason)
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, d)
}

// Deny handles POST /v1/appeals/{id}/deny.
func (a *Appeals) Deny(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := a.Service.Deny(r.Context(), id, req.Decider, req.Reason, req.NextAttempt)
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, d)
}

// UserDecisions handles GET /v1/users/{id}/decisions.
func (a *Appeals) UserDecisions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	ds, err := appeal.DecisionsFor(userID)
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		User      string            `json:"user"`
		Decisions []appeal.Decision `json:"decisions"`
	}{User: userID, Decisions: ds})
}
