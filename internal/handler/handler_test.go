package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniups-gateway/internal/cache"
	"miniups-gateway/internal/conflict"
	"miniups-gateway/internal/middleware"
	"miniups-gateway/internal/repository"
	"miniups-gateway/internal/service"
	"miniups-gateway/internal/upstream"
)

const testUser = "user-1"

// fakeUpstream plays the Mini-UPS API. Status updates for UPS1 sent against
// version 3 conflict with a server copy at version 5; UPS2 always conflicts
// with a newer server copy.
type fakeUpstream struct {
	mu       sync.Mutex
	ifMatch  []string
	bodies   []map[string]interface{}
	readIDs  []string
	statuses int
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/tracking/UPS1":
		io.WriteString(w, `{"success":true,"data":{"tracking_number":"UPS1","status":"IN_TRANSIT","version":3}}`)

	case r.Method == http.MethodPut && r.URL.Path == "/shipments/UPS1/status":
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.statuses++
		f.ifMatch = append(f.ifMatch, r.Header.Get("If-Match"))
		f.bodies = append(f.bodies, body)
		f.mu.Unlock()

		if r.Header.Get("If-Match") == `"3"` {
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, `{"success":false,"message":"version conflict","data":{"entityId":"UPS1","entityType":"shipment","ourVersion":3,"serverVersion":5,"serverState":{"status":"DELIVERED","comment":"left at door"}}}`)
			return
		}
		io.WriteString(w, `{"success":true,"data":{"tracking_number":"UPS1","status":"IN_TRANSIT"}}`)

	case r.Method == http.MethodPut && r.URL.Path == "/shipments/UPS2/status":
		f.mu.Lock()
		f.statuses++
		f.ifMatch = append(f.ifMatch, r.Header.Get("If-Match"))
		serverVersion := 4 + f.statuses
		f.mu.Unlock()

		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, `{"success":false,"message":"version conflict","data":{"entityId":"UPS2","entityType":"shipment","ourVersion":3,"serverVersion":%d,"serverState":{"status":"RETURNED"}}}`, serverVersion)

	case r.Method == http.MethodGet && r.URL.Path == "/notifications/sync":
		io.WriteString(w, `{"success":true,"data":{"notifications":[{"id":"n1","type":"shipment_updated","priority":"high","status":"unread","title":"Out for delivery","message":"UPS1","timestamp":"2026-04-01T10:00:00Z"}],"hasMore":false,"lastId":"n1"}}`)

	case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/read"):
		f.mu.Lock()
		f.readIDs = append(f.readIDs, strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/notifications/"), "/read"))
		f.mu.Unlock()
		io.WriteString(w, `{"success":true}`)

	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"success":false,"message":"not found"}`)
	}
}

type testEnv struct {
	upstream      *fakeUpstream
	shipments     *ShipmentHandler
	conflicts     *ConflictHandler
	notifications *NotificationHandler
	drafts        *DraftHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := &fakeUpstream{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	api := upstream.NewClient(upstream.Options{
		BaseURL:         srv.URL,
		Timeout:         5 * time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	})
	qc, err := cache.New(64)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	workspaces := service.NewWorkspaceService(ctx, api, qc, nil, nil, service.WorkspaceOptions{})
	drafts := service.NewDraftService(repository.NewDraftRepository(t.TempDir(), 1024))

	return &testEnv{
		upstream:      fake,
		shipments:     NewShipmentHandler(service.NewShipmentService(api, qc, workspaces, nil)),
		conflicts:     NewConflictHandler(service.NewConflictService(workspaces, nil, nil)),
		notifications: NewNotificationHandler(service.NewNotificationService(api, workspaces)),
		drafts:        NewDraftHandler(drafts),
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func call(t *testing.T, h http.HandlerFunc, method, target, body string, vars map[string]string) (int, apiResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, testUser)
	req = req.WithContext(upstream.WithToken(ctx, "token-1"))
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}

	rec := httptest.NewRecorder()
	h(rec, req)

	var out apiResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestShipmentConflictThenForceOverwrite(t *testing.T) {
	env := newTestEnv(t)
	tn := map[string]string{"tn": "UPS1"}

	code, resp := call(t, env.shipments.UpdateStatus, http.MethodPut, "/api/v1/shipments/UPS1/status",
		`{"status":"OUT_FOR_DELIVERY","comment":"driver assigned","version":3}`, tn)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "version_conflict", resp.Error)

	var conflictData struct {
		ConflictID string `json:"conflict_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &conflictData))
	require.NotEmpty(t, conflictData.ConflictID)

	code, resp = call(t, env.conflicts.List, http.MethodGet, "/api/v1/conflicts", "", nil)
	require.Equal(t, http.StatusOK, code)
	var summary struct {
		Pending []struct {
			ID            string `json:"id"`
			ServerVersion int64  `json:"serverVersion"`
		} `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	require.Len(t, summary.Pending, 1)
	assert.Equal(t, int64(5), summary.Pending[0].ServerVersion)

	code, resp = call(t, env.conflicts.Resolve, http.MethodPost, "/api/v1/conflicts/"+conflictData.ConflictID+"/resolve",
		`{"resolution_type":"force_overwrite"}`, map[string]string{"id": conflictData.ConflictID})
	require.Equal(t, http.StatusOK, code, resp.Error)

	var resolved resolveResponse
	require.NoError(t, json.Unmarshal(resp.Data, &resolved))
	assert.True(t, resolved.Resubmitted)
	assert.Equal(t, "Force overwrite with user changes", resolved.Resolution.Resolution.Comment)

	env.upstream.mu.Lock()
	assert.Equal(t, []string{`"3"`, `"5"`}, env.upstream.ifMatch)
	assert.Equal(t, "OUT_FOR_DELIVERY", env.upstream.bodies[1]["status"])
	assert.EqualValues(t, 5, env.upstream.bodies[1]["_forceVersion"])
	env.upstream.mu.Unlock()

	code, resp = call(t, env.conflicts.List, http.MethodGet, "/api/v1/conflicts", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Empty(t, summary.Pending)

	code, resp = call(t, env.conflicts.History, http.MethodGet, "/api/v1/conflicts/history?limit=10", "", nil)
	require.Equal(t, http.StatusOK, code)
	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	assert.Len(t, history, 1)
}

func TestConflictAcceptServerDoesNotResubmit(t *testing.T) {
	env := newTestEnv(t)

	code, resp := call(t, env.shipments.UpdateStatus, http.MethodPut, "/", `{"status":"OUT_FOR_DELIVERY","version":3}`,
		map[string]string{"tn": "UPS1"})
	require.Equal(t, http.StatusConflict, code)
	var data struct {
		ConflictID string `json:"conflict_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	code, resp = call(t, env.conflicts.Get, http.MethodGet, "/", "", map[string]string{"id": data.ConflictID})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"fieldName":"status"`)

	code, _ = call(t, env.conflicts.Resolve, http.MethodPost, "/", `{"resolution_type":"accept_server"}`,
		map[string]string{"id": data.ConflictID})
	require.Equal(t, http.StatusOK, code)

	env.upstream.mu.Lock()
	assert.Equal(t, 1, env.upstream.statuses)
	env.upstream.mu.Unlock()
}

func TestConflictResolveIntoNestedConflict(t *testing.T) {
	env := newTestEnv(t)

	code, resp := call(t, env.shipments.UpdateStatus, http.MethodPut, "/", `{"status":"OUT_FOR_DELIVERY","version":3}`,
		map[string]string{"tn": "UPS2"})
	require.Equal(t, http.StatusConflict, code)
	var first struct {
		ConflictID string `json:"conflict_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &first))

	code, resp = call(t, env.conflicts.Resolve, http.MethodPost, "/", `{"resolution_type":"force_overwrite"}`,
		map[string]string{"id": first.ConflictID})
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "nested_conflict", resp.Error)

	var nested struct {
		ConflictID    string `json:"conflict_id"`
		NewConflictID string `json:"new_conflict_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &nested))
	assert.Equal(t, first.ConflictID, nested.ConflictID)
	require.NotEmpty(t, nested.NewConflictID)
	assert.NotEqual(t, nested.ConflictID, nested.NewConflictID)

	code, resp = call(t, env.conflicts.Get, http.MethodGet, "/", "", map[string]string{"id": nested.NewConflictID})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"serverVersion":6`)

	env.upstream.mu.Lock()
	assert.Equal(t, []string{`"3"`, `"5"`}, env.upstream.ifMatch)
	env.upstream.mu.Unlock()
}

func TestWriteErrorConflictKinds(t *testing.T) {
	detected := &conflict.DetectedError{ConflictID: "c2"}

	tests := []struct {
		name     string
		err      error
		want     int
		wantErr  string
		wantData map[string]interface{}
	}{
		{
			name:     "nested conflict",
			err:      &conflict.ResolutionError{Kind: conflict.KindNestedConflict, ConflictID: "c1", NewConflictID: "c2", Err: detected},
			want:     http.StatusConflict,
			wantErr:  "nested_conflict",
			wantData: map[string]interface{}{"conflict_id": "c1", "new_conflict_id": "c2"},
		},
		{
			name:     "resolution failure",
			err:      &conflict.ResolutionError{Kind: conflict.KindFailure, ConflictID: "c1", Err: errors.New("connection reset")},
			want:     http.StatusBadGateway,
			wantErr:  "resolution_failed",
			wantData: map[string]interface{}{"conflict_id": "c1"},
		},
		{
			name:     "plain detected conflict",
			err:      detected,
			want:     http.StatusConflict,
			wantErr:  "version_conflict",
			wantData: map[string]interface{}{"conflict_id": "c2", "conflict": nil},
		},
		{
			name:    "resolution in progress",
			err:     conflict.ErrResolutionInProgress,
			want:    http.StatusConflict,
			wantErr: conflict.ErrResolutionInProgress.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodPost, "/", nil), tt.err)

			assert.Equal(t, tt.want, rec.Code)
			var out struct {
				Error string                 `json:"error"`
				Data  map[string]interface{} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, tt.wantErr, out.Error)
			if tt.wantData != nil {
				assert.Equal(t, tt.wantData, out.Data)
			}
		})
	}
}

func TestConflictHandlerErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		body    string
		vars    map[string]string
		want    int
	}{
		{"unknown conflict", env.conflicts.Get, http.MethodGet, "", map[string]string{"id": "missing"}, http.StatusNotFound},
		{"resolve unknown", env.conflicts.Resolve, http.MethodPost, `{"resolution_type":"accept_server"}`, map[string]string{"id": "missing"}, http.StatusNotFound},
		{"bad resolution type", env.conflicts.Resolve, http.MethodPost, `{"resolution_type":"coin_flip"}`, map[string]string{"id": "missing"}, http.StatusBadRequest},
		{"malformed body", env.conflicts.Resolve, http.MethodPost, `{`, map[string]string{"id": "missing"}, http.StatusBadRequest},
		{"next on empty queue", env.conflicts.Next, http.MethodPost, "", nil, http.StatusNotFound},
		{"cancel unknown", env.conflicts.Cancel, http.MethodDelete, "", map[string]string{"id": "missing"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := call(t, tt.handler, tt.method, "/", tt.body, tt.vars)
			assert.Equal(t, tt.want, code)
			assert.False(t, resp.Success)
		})
	}

	code, _ := call(t, env.conflicts.History, http.MethodGet, "/?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestShipmentHandlerValidationAndPassthrough(t *testing.T) {
	env := newTestEnv(t)

	code, _ := call(t, env.shipments.UpdateStatus, http.MethodPut, "/", `{"status":"TELEPORTED","version":3}`,
		map[string]string{"tn": "UPS1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Zero(t, env.upstream.statuses)

	code, resp := call(t, env.shipments.Get, http.MethodGet, "/", "", map[string]string{"tn": "UPS1"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"tracking_number":"UPS1"`)

	code, resp = call(t, env.shipments.Get, http.MethodGet, "/", "", map[string]string{"tn": "NOPE"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not found", resp.Error)
}

func TestNotificationHandlerSyncAndRead(t *testing.T) {
	env := newTestEnv(t)

	code, resp := call(t, env.notifications.Sync, http.MethodPost, "/", "", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = call(t, env.notifications.List, http.MethodGet, "/?priority=high", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "n1", list[0]["id"])

	code, resp = call(t, env.notifications.List, http.MethodGet, "/?priority=low", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data))

	code, _ = call(t, env.notifications.MarkRead, http.MethodPatch, "/", "", map[string]string{"id": "n1"})
	require.Equal(t, http.StatusNoContent, code)

	code, resp = call(t, env.notifications.UnreadCount, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"unread":0}`, string(resp.Data))

	code, _ = call(t, env.notifications.MarkRead, http.MethodPatch, "/", "", map[string]string{"id": "unknown"})
	assert.Equal(t, http.StatusNotFound, code)

	env.upstream.mu.Lock()
	assert.Equal(t, []string{"n1"}, env.upstream.readIDs)
	env.upstream.mu.Unlock()

	code, _ = call(t, env.notifications.MarkManyRead, http.MethodPost, "/", `{"ids":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFiltersFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?type=shipment_update,+alert&status=unread", nil)
	f := filtersFromQuery(r)
	require.NotNil(t, f)
	assert.Len(t, f.Types, 2)
	assert.EqualValues(t, "alert", f.Types[1])
	assert.EqualValues(t, "unread", f.Status)
	assert.Empty(t, f.Priorities)

	assert.Nil(t, filtersFromQuery(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestDraftHandlerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	name := map[string]string{"name": "weekly restock"}

	code, resp := call(t, env.drafts.Save, http.MethodPut, "/", `{"payload":{"recipient_name":"Ada"}}`, name)
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = call(t, env.drafts.Get, http.MethodGet, "/", "", name)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"recipient_name":"Ada"`)

	code, resp = call(t, env.drafts.List, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, code)
	var drafts []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &drafts))
	assert.Len(t, drafts, 1)

	code, _ = call(t, env.drafts.Delete, http.MethodDelete, "/", "", name)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = call(t, env.drafts.Get, http.MethodGet, "/", "", name)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, env.drafts.Save, http.MethodPut, "/", `{"payload":{}}`, map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, code)
}

type stubBreaker string

func (s stubBreaker) BreakerState() string { return string(s) }

func TestHealth(t *testing.T) {
	tests := []struct {
		state string
		want  int
	}{
		{"closed", http.StatusOK},
		{"half-open", http.StatusOK},
		{"open", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			h := NewHealthHandler(stubBreaker(tt.state), "test")
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"upstream":"`+tt.state+`"`)
		})
	}
}
