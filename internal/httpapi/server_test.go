package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/switchboard/internal/auth"
	"github.com/antoniostano/switchboard/internal/call"
	"github.com/antoniostano/switchboard/internal/events"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/provider"
	"github.com/antoniostano/switchboard/internal/registry"
	"github.com/antoniostano/switchboard/internal/store"
	"github.com/antoniostano/switchboard/internal/stream"
)

const (
	callbackTpl = "https://bot.example.com/communicationservices/callback/{call_id}/{secret}"
	streamTpl   = "wss://bot.example.com/communicationservices/wss/{call_id}/{secret}"
)

func testMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetrics(fmt.Sprintf("test_httpapi_%s_%d", time.Now().Format("150405"), time.Now().UnixNano()))
}

type fakeTokens struct{ err error }

func (f fakeTokens) Validate(string) error { return f.err }

// sinkProcessor collects everything the bridge delivers.
type sinkProcessor struct {
	mu    sync.Mutex
	blobs [][]byte
}

func (p *sinkProcessor) Run(_ context.Context, _ *call.Call, audio <-chan []byte, _ stream.Format) error {
	for blob := range audio {
		p.mu.Lock()
		p.blobs = append(p.blobs, blob)
		p.mu.Unlock()
	}
	return nil
}

func (p *sinkProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blobs)
}

type fixture struct {
	ts        *httptest.Server
	store     *store.InMemoryStore
	actions   *provider.Mock
	processor *sinkProcessor
}

func newFixture(t *testing.T, tokens TokenChecker) *fixture {
	t.Helper()
	metrics := testMetrics(t)
	s := store.NewInMemoryStore()
	actions := provider.NewMock()
	reg := registry.New(s, callbackTpl, streamTpl, call.Initiate{BotName: "switchboard", Lang: "en-US"})
	dispatcher := events.NewDispatcher(s, actions, nil, nil, metrics, []string{"en-US"}, 3)
	processor := &sinkProcessor{}
	bridge := stream.NewBridge(processor, metrics, 8)

	srv := New(s, reg, dispatcher, bridge, actions, tokens, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, store: s, actions: actions, processor: processor}
}

func (f *fixture) seedCall(t *testing.T) *call.Call {
	t.Helper()
	c := call.New("+15551234567", call.Initiate{BotName: "switchboard", Lang: "en-US"})
	if err := f.store.Save(context.Background(), c); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return c
}

func postCallback(t *testing.T, f *fixture, id, secret, body string) *http.Response {
	t.Helper()
	url := fmt.Sprintf("%s/communicationservices/callback/%s/%s", f.ts.URL, id, secret)
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer token")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	return res
}

func TestCallbackRejectsInvalidToken(t *testing.T) {
	f := newFixture(t, fakeTokens{err: auth.ErrUnauthorized})
	c := f.seedCall(t)

	res := postCallback(t, f, c.ID, c.CallbackSecret, "[]")
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestCallbackRejectsWrongSecret(t *testing.T) {
	f := newFixture(t, fakeTokens{})
	c := f.seedCall(t)

	res := postCallback(t, f, c.ID, "0000000000000000", "[]")
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestCallbackUnknownCall(t *testing.T) {
	f := newFixture(t, fakeTokens{})

	res := postCallback(t, f, "no-such-call", "0000000000000000", "[]")
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestCallbackRejectsNonArrayBody(t *testing.T) {
	f := newFixture(t, fakeTokens{})
	c := f.seedCall(t)

	res := postCallback(t, f, c.ID, c.CallbackSecret, `{"type":"Microsoft.Communication.CallConnected"}`)
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Message == "" {
		t.Fatalf("error message missing")
	}
}

func TestCallbackBatchPersistsPerEvent(t *testing.T) {
	f := newFixture(t, fakeTokens{})
	c := f.seedCall(t)
	before := f.store.SaveCount()

	batch := `[
		{"type": "Microsoft.Communication.CallConnected", "data": {"callConnectionId": "conn-1"}},
		{"type": "Microsoft.Communication.PlayFailed", "data": {"callConnectionId": "conn-1", "resultInformation": {"subCode": 8565}}}
	]`
	res := postCallback(t, f, c.ID, c.CallbackSecret, batch)
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", res.StatusCode)
	}

	if got := f.store.SaveCount() - before; got != 2 {
		t.Fatalf("saves during batch = %d, want 2", got)
	}

	// The connected event greets the caller and starts streaming.
	if n := len(f.actions.Named("play")); n != 1 {
		t.Fatalf("play actions = %d, want 1", n)
	}
	if n := len(f.actions.Named("start_streaming")); n != 1 {
		t.Fatalf("start_streaming actions = %d, want 1", n)
	}
}

func TestStreamDeliversAudio(t *testing.T) {
	f := newFixture(t, fakeTokens{})
	c := f.seedCall(t)

	url := fmt.Sprintf(
		"%s/communicationservices/wss/%s/%s",
		strings.Replace(f.ts.URL, "http://", "ws://", 1), c.ID, c.CallbackSecret,
	)
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer res.Body.Close()

	frame := fmt.Sprintf(
		`{"kind":"AudioData","audioData":{"data":"%s","silent":false}}`,
		base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}),
	)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.processor.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("audio frame never reached the processor")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamRejectsWrongSecret(t *testing.T) {
	f := newFixture(t, fakeTokens{})
	c := f.seedCall(t)

	url := fmt.Sprintf("%s/communicationservices/wss/%s/0000000000000000", f.ts.URL, c.ID)
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestCreateCall(t *testing.T) {
	f := newFixture(t, fakeTokens{})

	res, err := http.Post(f.ts.URL+"/call", "application/json", strings.NewReader(`{"phone_number": "+15557654321"}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", res.StatusCode)
	}

	var created call.Call
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.PhoneNumber != "+15557654321" {
		t.Fatalf("phone = %q", created.PhoneNumber)
	}
	if created.ConnectionID != "conn-mock" {
		t.Fatalf("connection id = %q", created.ConnectionID)
	}

	creates := f.actions.Named("create")
	if len(creates) != 1 {
		t.Fatalf("create actions = %d, want 1", len(creates))
	}
	if !strings.Contains(creates[0].Text, created.ID) || !strings.Contains(creates[0].Text, created.CallbackSecret) {
		t.Fatalf("provider URLs missing call id or secret: %q", creates[0].Text)
	}
}

func TestCreateCallValidation(t *testing.T) {
	f := newFixture(t, fakeTokens{})

	res, err := http.Post(f.ts.URL+"/call", "application/json", strings.NewReader(`{"phone_number": "555-bad"}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", res.StatusCode)
	}

	var body struct {
		Error struct {
			Message string   `json:"message"`
			Details []string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if len(body.Error.Details) == 0 {
		t.Fatalf("validation details missing")
	}
}

func TestGetCall(t *testing.T) {
	f := newFixture(t, fakeTokens{})
	c := f.seedCall(t)

	for _, key := range []string{c.ID, c.PhoneNumber} {
		res, err := http.Get(f.ts.URL + "/call/" + key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		var got call.Call
		if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		res.Body.Close()
		if got.ID != c.ID {
			t.Fatalf("Get(%s) returned call %s, want %s", key, got.ID, c.ID)
		}
	}

	res, err := http.Get(f.ts.URL + "/call/nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestSearchCalls(t *testing.T) {
	f := newFixture(t, fakeTokens{})
	c := f.seedCall(t)

	res, err := http.Get(f.ts.URL + "/call?phone_number=" + strings.ReplaceAll(c.PhoneNumber, "+", "%2B"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var calls []*call.Call
	if err := json.NewDecoder(res.Body).Decode(&calls); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(calls) != 1 || calls[0].ID != c.ID {
		t.Fatalf("calls = %+v, want the seeded call", calls)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, fakeTokens{})

	for _, path := range []string{"/health/liveness", "/health/readiness"} {
		res, err := http.Get(f.ts.URL + path)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, res.StatusCode)
		}
	}
}
