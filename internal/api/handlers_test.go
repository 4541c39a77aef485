package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medschedule/booking-engine/internal/appointment"
)

type fakeEngine struct {
	lastSession string
	lastID      uuid.UUID
	lastChannel string
	lastMessage string
	reply       string
	err         error
}

func (f *fakeEngine) HandleTurn(ctx context.Context, sessionKey string, practitionerID uuid.UUID, channel, message string) (string, error) {
	f.lastSession = sessionKey
	f.lastID = practitionerID
	f.lastChannel = channel
	f.lastMessage = message
	return f.reply, f.err
}

type fakeDirectory struct {
	p *appointment.Practitioner
}

func (f *fakeDirectory) GetPractitionerBySlug(ctx context.Context, slug string) (*appointment.Practitioner, error) {
	if f.p != nil && f.p.Slug == slug {
		return f.p, nil
	}
	return nil, appointment.ErrPractitionerNotFound
}

func (f *fakeDirectory) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*appointment.Practitioner, error) {
	if f.p != nil && f.p.ID == id {
		return f.p, nil
	}
	return nil, appointment.ErrPractitionerNotFound
}

func newTestServer(engine *fakeEngine, dir *fakeDirectory) *httptest.Server {
	router := NewRouter(RouterConfig{
		Engine:    engine,
		Directory: dir,
		Env:       "test",
		Version:   "test",
		Logger:    zap.NewNop(),
	})
	return httptest.NewServer(router)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func TestChatEndpoint(t *testing.T) {
	p := &appointment.Practitioner{ID: uuid.New(), Slug: "dr-rao"}
	engine := &fakeEngine{reply: "What date would you like to book?"}
	srv := newTestServer(engine, &fakeDirectory{p: p})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/chat", ChatRequest{
		SessionID:    "s1",
		Practitioner: "dr-rao",
		Message:      "book an appointment",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "s1", out.SessionID)
	assert.Equal(t, engine.reply, out.Reply)
	assert.Equal(t, p.ID, engine.lastID)
	assert.Equal(t, "web", engine.lastChannel)
}

func TestChatGeneratesSessionID(t *testing.T) {
	p := &appointment.Practitioner{ID: uuid.New(), Slug: "dr-rao"}
	engine := &fakeEngine{reply: "hello"}
	srv := newTestServer(engine, &fakeDirectory{p: p})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/chat", ChatRequest{
		Practitioner: p.ID.String(),
		Message:      "hi",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	_, err := uuid.Parse(out.SessionID)
	assert.NoError(t, err, "generated session id should be a UUID")
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	p := &appointment.Practitioner{ID: uuid.New(), Slug: "dr-rao"}
	srv := newTestServer(&fakeEngine{}, &fakeDirectory{p: p})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/chat", ChatRequest{Practitioner: "dr-rao", Message: "   "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatUnknownPractitioner(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeDirectory{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/chat", ChatRequest{Practitioner: "nobody", Message: "hi"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var out ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "practitioner_not_found", out.Error)
}

func TestMenuGatewayExpandsShortcuts(t *testing.T) {
	p := &appointment.Practitioner{ID: uuid.New(), Slug: "dr-rao"}
	engine := &fakeEngine{reply: "What date would you like to book?"}
	srv := newTestServer(engine, &fakeDirectory{p: p})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/gateway/menu", MenuRequest{
		SessionID:    "s1",
		Practitioner: "dr-rao",
		Text:         "1",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "book an appointment", engine.lastMessage)
	assert.Equal(t, "menu", engine.lastChannel)

	var out MenuResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Reply, engine.reply)
	assert.Contains(t, out.Reply, "1. Book an appointment")
}

func TestMenuGatewayPassesFreeTextThrough(t *testing.T) {
	p := &appointment.Practitioner{ID: uuid.New(), Slug: "dr-rao"}
	engine := &fakeEngine{reply: "ok"}
	srv := newTestServer(engine, &fakeDirectory{p: p})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/gateway/menu", MenuRequest{
		Practitioner: "dr-rao",
		Text:         "tomorrow at 3pm",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tomorrow at 3pm", engine.lastMessage)
}

func TestLivenessAndRequestID(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeDirectory{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var out LivenessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out.Status)
}
