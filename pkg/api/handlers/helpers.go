package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rNintendoSwitch/Parakarry/pkg/appeal"
	"github.com/rNintendoSwitch/Parakarry/pkg/mail"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
	"github.com/rNintendoSwitch/Parakarry/pkg/utils"
)

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// writeMailError maps core errors onto HTTP status codes.
func writeMailError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "thread not found")
	case errors.Is(err, mail.ErrNotAModmailChannel):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mail.ErrAlreadyOpen),
		errors.Is(err, mail.ErrAlreadyClosed),
		errors.Is(err, mail.ErrAlreadyScheduled):
		utils.JSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, mail.ErrInvalidDuration),
		errors.Is(err, mail.ErrEmptyMessage),
		errors.Is(err, mail.ErrReplyTooLong),
		errors.Is(err, appeal.ErrNotAppeal):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mail.ErrAppealThread):
		utils.JSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, mail.ErrRecipientUnreachable):
		utils.JSONError(w, http.StatusBadGateway, "recipient unreachable")
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
