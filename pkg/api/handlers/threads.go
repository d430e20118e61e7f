package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
	"github.com/rNintendoSwitch/Parakarry/pkg/utils"
)

// ListThreads handles GET /v1/threads with optional recipient and open
// query filters.
func ListThreads(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "true"
	recipient := r.URL.Query().Get("recipient")

	var (
		threads []models.Thread
		err     error
	)
	if recipient != "" {
		threads, err = store.ListThreadsByRecipient(recipient, openOnly)
	} else {
		threads, err = store.ListThreads()
		if err == nil && openOnly {
			filtered := threads[:0]
			for _, th := range threads {
				if th.Open {
					filtered = append(filtered, th)
				}
			}
			threads = filtered
		}
	}
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Threads []models.Thread `json:"threads"`
	}{Threads: threads})
}

// GetThread handles GET /v1/threads/{id}.
func GetThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	th, err := store.GetThread(id)
	if err != nil {
		writeMailError(w, err)
		return
	}
	n, err := store.CountMessages(id)
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		models.Thread
		MessageCount int `json:"message_count"`
	}{Thread: th, MessageCount: n})
}

// ListThreadMessages handles GET /v1/threads/{id}/messages with an
// optional limit on the most recent entries.
func ListThreadMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := store.GetThread(id); err != nil {
		writeMailError(w, err)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := store.ListMessages(id, limit)
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Thread   string           `json:"thread"`
		Messages []models.Message `json:"messages"`
	}{Thread: id, Messages: msgs})
}

// ListUserThreads handles GET /v1/users/{id}/threads.
func ListUserThreads(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	openOnly := r.URL.Query().Get("open") == "true"
	threads, err := store.ListThreadsByRecipient(userID, openOnly)
	if err != nil {
		writeMailError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		User    string          `json:"user"`
		Threads []models.Thread `json:"threads"`
	}{User: userID, Threads: threads})
}
