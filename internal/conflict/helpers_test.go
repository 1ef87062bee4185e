package conflict

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/upstream"
)

// fakeEndpoint plays back scripted upstream answers and records each call.
type fakeEndpoint struct {
	mu      sync.Mutex
	answers []error
	calls   []Call

	// When hold is set, each call signals entered and then waits for hold
	// to close before answering.
	hold    chan struct{}
	entered chan struct{}
}

func (f *fakeEndpoint) mutate(ctx context.Context, call Call) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	hold, entered := f.hold, f.entered
	var err error
	if len(f.answers) > 0 {
		err = f.answers[0]
		f.answers = f.answers[1:]
	}
	f.mu.Unlock()

	if hold != nil {
		entered <- struct{}{}
		<-hold
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// holdCalls makes later calls block until the returned func is called.
func (f *fakeEndpoint) holdCalls() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = make(chan struct{})
	f.entered = make(chan struct{}, 8)
	hold := f.hold
	return f.entered, func() { close(hold) }
}

func (f *fakeEndpoint) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEndpoint) lastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type countingInvalidator struct {
	calls []string
}

func (c *countingInvalidator) InvalidateEntity(entityType, entityID string) int {
	c.calls = append(c.calls, entityType+"/"+entityID)
	return 1
}

func versionConflict(serverVersion int64, serverState string) error {
	body := fmt.Sprintf(`{"entityId":"UPS123","entityType":"shipment","ourVersion":3,"serverVersion":%d,"serverState":%s}`,
		serverVersion, serverState)
	return &upstream.APIError{Method: http.MethodPut, Path: "/shipments/UPS123/status", Status: http.StatusConflict, Body: []byte(body)}
}

func statusCall(fields *domain.Fields) Call {
	return Call{EntityID: "UPS123", Version: 3, Fields: fields}
}
