package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rNintendoSwitch/Parakarry/pkg/appeal"
	"github.com/rNintendoSwitch/Parakarry/pkg/events"
	"github.com/rNintendoSwitch/Parakarry/pkg/gateway"
	"github.com/rNintendoSwitch/Parakarry/pkg/mail"
	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
)

const testGuild = "g1"

type fixture struct {
	srv    *httptest.Server
	engine *mail.Engine
	fake   *gateway.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	fake := gateway.NewFake()
	engine := mail.NewEngine(fake, mail.NewRegistry(), mail.Options{GuildID: testGuild})
	t.Cleanup(engine.Scheduler().Stop)

	dispatcher := events.NewDispatcher(engine, events.Options{PrimaryGuildID: testGuild})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go dispatcher.Run(ctx)

	router := Router(Deps{
		Engine:     engine,
		Dispatcher: dispatcher,
		Appeals:    appeal.NewService(engine),
		Feed:       NewFeed(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, engine: engine, fake: fake}
}

func (f *fixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *fixture) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

// openThread creates a thread directly through the engine so HTTP tests
// don't depend on dispatcher timing.
func (f *fixture) openThread(t *testing.T, userID string) models.Thread {
	t.Helper()
	f.fake.AddMember(testGuild, gateway.Member{ID: userID, Name: "user-" + userID})
	user := models.UserRef{ID: userID, Name: "user-" + userID}
	res, err := f.engine.RelayInbound(context.Background(), user, mail.InboundMessage{Content: "hello"})
	if err != nil {
		t.Fatalf("RelayInbound: %v", err)
	}
	th, err := store.GetThread(res.ThreadID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	return th
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	if resp := f.get(t, "/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
	if resp := f.get(t, "/readyz", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz = %d", resp.StatusCode)
	}
}

func TestEventPushCreatesThread(t *testing.T) {
	f := newFixture(t)
	f.fake.AddMember(testGuild, gateway.Member{ID: "u1", Name: "alice"})

	ev := gateway.Event{
		Type: gateway.EventDirectMessage,
		DirectMessage: &gateway.InboundMessage{
			MessageID:  "m1",
			AuthorID:   "u1",
			AuthorName: "alice",
			Content:    "help",
		},
	}
	resp := f.post(t, "/v1/events", ev)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("push = %d", resp.StatusCode)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok, _ := store.FindOpenByRecipient("u1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("thread never created")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestThreadReadEndpoints(t *testing.T) {
	f := newFixture(t)
	th := f.openThread(t, "u1")

	var got struct {
		models.Thread
		MessageCount int `json:"message_count"`
	}
	if resp := f.get(t, "/v1/threads/"+th.ID, &got); resp.StatusCode != http.StatusOK {
		t.Fatalf("get thread = %d", resp.StatusCode)
	}
	if got.ID != th.ID || got.MessageCount != 1 {
		t.Fatalf("thread = %+v", got)
	}

	var list struct {
		Threads []models.Thread `json:"threads"`
	}
	if resp := f.get(t, "/v1/threads?recipient=u1&open=true", &list); resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	if len(list.Threads) != 1 {
		t.Fatalf("threads = %+v", list.Threads)
	}

	var msgs struct {
		Messages []models.Message `json:"messages"`
	}
	if resp := f.get(t, fmt.Sprintf("/v1/threads/%s/messages", th.ID), &msgs); resp.StatusCode != http.StatusOK {
		t.Fatalf("messages = %d", resp.StatusCode)
	}
	if len(msgs.Messages) != 1 || msgs.Messages[0].Content != "hello" {
		t.Fatalf("messages = %+v", msgs.Messages)
	}

	if resp := f.get(t, "/v1/threads/unknown", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown thread = %d", resp.StatusCode)
	}
}

func TestReplyEndpoint(t *testing.T) {
	f := newFixture(t)
	th := f.openThread(t, "u1")

	body := map[string]any{
		"moderator": models.UserRef{ID: "m1", Name: "carol"},
		"content":   "on it",
	}
	resp := f.post(t, "/v1/threads/"+th.ID+"/reply", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reply = %d", resp.StatusCode)
	}
	var out struct {
		Delivered bool   `json:"delivered"`
		Warning   string `json:"warning"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if !out.Delivered {
		t.Fatalf("delivered = false: %+v", out)
	}

	// empty reply is a client error
	resp = f.post(t, "/v1/threads/"+th.ID+"/reply", map[string]any{"moderator": models.UserRef{ID: "m1"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty reply = %d", resp.StatusCode)
	}
}

func TestReplyUnreachableReports(t *testing.T) {
	f := newFixture(t)
	th := f.openThread(t, "u1")
	f.fake.UnreachableUsers["u1"] = true

	resp := f.post(t, "/v1/threads/"+th.ID+"/reply", map[string]any{
		"moderator": models.UserRef{ID: "m1", Name: "carol"},
		"content":   "hello?",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reply = %d", resp.StatusCode)
	}
	var out struct {
		Delivered bool   `json:"delivered"`
		Warning   string `json:"warning"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if out.Delivered || out.Warning == "" {
		t.Fatalf("out = %+v", out)
	}
	// the entry is still on record
	msgs, _ := store.ListMessages(th.ID)
	if msgs[len(msgs)-1].Content != "hello?" {
		t.Fatalf("entry not recorded")
	}
}

func TestCloseAndScheduleEndpoints(t *testing.T) {
	f := newFixture(t)
	th := f.openThread(t, "u1")

	resp := f.post(t, "/v1/threads/"+th.ID+"/schedule_close", map[string]any{
		"closer": models.UserRef{ID: "m1", Name: "carol"},
		"delay":  "nonsense",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad delay = %d", resp.StatusCode)
	}

	resp = f.post(t, "/v1/threads/"+th.ID+"/schedule_close", map[string]any{
		"closer": models.UserRef{ID: "m1", Name: "carol"},
		"delay":  "4h",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schedule = %d", resp.StatusCode)
	}

	resp = f.post(t, "/v1/threads/"+th.ID+"/cancel_close", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel = %d", resp.StatusCode)
	}

	resp = f.post(t, "/v1/threads/"+th.ID+"/close", map[string]any{
		"closer": models.UserRef{ID: "m1", Name: "carol"},
		"reason": "resolved",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("close = %d", resp.StatusCode)
	}
	resp = f.post(t, "/v1/threads/"+th.ID+"/close", map[string]any{
		"closer": models.UserRef{ID: "m1", Name: "carol"},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double close = %d", resp.StatusCode)
	}
}

func TestAppealEndpointsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	// a DM from a non-member opens a ban appeal
	user := models.UserRef{ID: "u9", Name: "banned"}
	res, err := f.engine.RelayInbound(context.Background(), user, mail.InboundMessage{Content: "unban me"})
	if err != nil {
		t.Fatalf("RelayInbound: %v", err)
	}

	// without the admin role the decision endpoints are forbidden
	resp := f.post(t, "/v1/appeals/"+res.ThreadID+"/accept", map[string]any{
		"decider": models.UserRef{ID: "m1", Name: "carol"},
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("accept without admin = %d", resp.StatusCode)
	}

	b, _ := json.Marshal(map[string]any{"decider": models.UserRef{ID: "m1", Name: "carol"}})
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/v1/appeals/"+res.ThreadID+"/accept", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role-Name", "admin")
	adminResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer adminResp.Body.Close()
	if adminResp.StatusCode != http.StatusOK {
		t.Fatalf("accept with admin = %d", adminResp.StatusCode)
	}
	var d appeal.Decision
	_ = json.NewDecoder(adminResp.Body).Decode(&d)
	if d.Verdict != "accepted" {
		t.Fatalf("decision = %+v", d)
	}
}
