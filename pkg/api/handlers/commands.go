package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rNintendoSwitch/Parakarry/pkg/mail"
	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/utils"
)

// Commands exposes the moderator command surface over HTTP. The bridge
// process translates slash commands into these calls.
type Commands struct {
	Engine *mail.Engine
}

type openRequest struct {
	User      models.UserRef `json:"user"`
	Moderator models.UserRef `json:"moderator"`
	Content   string         `json:"content"`
	Anonymous bool           `json:"anonymous"`
}

// Open handles POST /v1/threads: a moderator-initiated thread.
func (c *Commands) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decode(w, r, &req) {
		return
	}
	if req.User.ID == "" || req.Moderator.ID == "" {
		utils.JSONError(w, http.StatusBadRequest, "user and moderator are required")
		return
	}
	th, err := c.Engine.OpenByModerator(r.Context(), req.User, req.Moderator, req.Content, req.Anonymous)
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, th)
}

type replyRequest struct {
	Moderator   models.UserRef `json:"moderator"`
	Content     string         `json:"content"`
	Attachments []string       `json:"attachments,omitempty"`
	Anonymous   bool           `json:"anonymous"`
}

type replyResponse struct {
	Thread    string `json:"thread"`
	Delivered bool   `json:"delivered"`
	Warning   string `json:"warning,omitempty"`
}

// Reply handles POST /v1/threads/{id}/reply. An unreachable recipient
// still gets the entry recorded; the response carries delivered=false so
// the bridge can tell staff.
func (c *Commands) Reply(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req replyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := c.Engine.RelayOutbound(r.Context(), id, req.Moderator, req.Content, req.Attachments, req.Anonymous)
	if err != nil {
		if errors.Is(err, mail.ErrRecipientUnreachable) && res.Appended {
			_ = utils.JSONWrite(w, http.StatusOK, replyResponse{
				Thread:    res.ThreadID,
				Delivered: false,
				Warning:   "recipient unreachable; reply recorded but not delivered",
			})
			return
		}
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, replyResponse{Thread: res.ThreadID, Delivered: res.Delivered})
}

type internalRequest struct {
	Author      models.UserRef `json:"author"`
	Content     string         `json:"content"`
	Attachments []string       `json:"attachments,omitempty"`
}

// Internal handles POST /v1/threads/{id}/internal: staff-only notes.
func (c *Commands) Internal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req internalRequest
	if !decode(w, r, &req) {
		return
	}
	if err := c.Engine.RelayInternal(r.Context(), id, req.Author, req.Content, req.Attachments); err != nil {
		writeMailError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type closeRequest struct {
	Closer models.UserRef `json:"closer"`
	Reason string         `json:"reason,omitempty"`
}

// Close handles POST /v1/threads/{id}/close.
func (c *Commands) Close(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req closeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := c.Engine.Close(r.Context(), id, req.Closer, req.Reason); err != nil {
		writeMailError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scheduleRequest struct {
	Closer models.UserRef `json:"closer"`
	Delay  string         `json:"delay"`
}

type scheduleResponse struct {
	Thread   string          `json:"thread"`
	FireAt   time.Time       `json:"fire_at"`
	Replaced *models.UserRef `json:"replaced,omitempty"`
}

// ScheduleClose handles POST /v1/threads/{id}/schedule_close.
func (c *Commands) ScheduleClose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req scheduleRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := c.Engine.ScheduleClose(r.Context(), id, req.Delay, req.Closer)
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, scheduleResponse{Thread: id, FireAt: res.FireAt, Replaced: res.Replaced})
}

// CancelClose handles POST /v1/threads/{id}/cancel_close.
func (c *Commands) CancelClose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	canceled, err := c.Engine.CancelClose(r.Context(), id, "Thread closure has been canceled by a moderator")
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Thread   string `json:"thread"`
		Canceled bool   `json:"canceled"`
	}{Thread: id, Canceled: canceled})
}
