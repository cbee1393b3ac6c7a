package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/internal/domain"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeService struct {
	mu        sync.Mutex
	startErr  error
	stopErr   error
	micDenied bool
	meetErr   error
	state     domain.SharedState
	tabs      []app.TabStatus
	starts    []domain.StartRequest
	stops     int
}

func (f *fakeService) Start(ctx context.Context, tabID string, includeMic bool) (app.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, domain.StartRequest{TabID: tabID, IncludeMic: includeMic})
	if f.startErr != nil {
		return app.StartResult{}, f.startErr
	}
	return app.StartResult{MicDenied: f.micDenied}, nil
}

func (f *fakeService) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeService) State() domain.SharedState { return f.state }

func (f *fakeService) Tabs() []app.TabStatus { return f.tabs }

func (f *fakeService) CheckMeetPage(ctx context.Context, tabID string) (bool, error) {
	if f.meetErr != nil {
		return false, f.meetErr
	}
	return strings.HasPrefix(tabID, "meet"), nil
}

func newTestClient(t *testing.T, svc Service, connect http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(NewRouter(svc, connect, nil))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestClient_Start(t *testing.T) {
	svc := &fakeService{micDenied: true}
	c := newTestClient(t, svc, nil)

	micDenied, err := c.Start(context.Background(), "tab-1", true)
	require.NoError(t, err)
	assert.True(t, micDenied)
	require.Len(t, svc.starts, 1)
	assert.Equal(t, domain.StartRequest{TabID: "tab-1", IncludeMic: true}, svc.starts[0])
}

func TestClient_StartErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantIs     error
	}{
		{"already recording", domain.ErrAlreadyRecording, http.StatusConflict, domain.ErrAlreadyRecording},
		{"unreachable", fmt.Errorf("%w: rpc: request timed out", domain.ErrTabUnreachable), http.StatusBadGateway, domain.ErrTabUnreachable},
		{"unknown tab", fmt.Errorf("%w: tab-9", domain.ErrTabNotFound), http.StatusNotFound, domain.ErrTabNotFound},
		{"agent failure", errors.New("permission denied"), http.StatusUnprocessableEntity, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeService{startErr: tt.err}, nil)

			_, err := c.Start(context.Background(), "tab-1", false)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.err.Error(), apiErr.Message)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.False(t, IsUnavailable(err))
		})
	}
}

func TestRouter_StartValidation(t *testing.T) {
	svc := &fakeService{}
	r := NewRouter(svc, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", "{"},
		{"missing tab", `{"includeMic":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, startPath, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
	assert.Empty(t, svc.starts)
}

func TestClient_Stop(t *testing.T) {
	svc := &fakeService{}
	c := newTestClient(t, svc, nil)
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, 1, svc.stops)

	svc.stopErr = domain.ErrNoActiveRecording
	err := c.Stop(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoActiveRecording)
}

func TestClient_State(t *testing.T) {
	start := int64(1_700_000_000_000)
	tab := "tab-1"
	svc := &fakeService{state: domain.SharedState{IsRecording: true, StartTime: &start, RecordingTabID: &tab}}
	c := newTestClient(t, svc, nil)

	s, err := c.State(context.Background())
	require.NoError(t, err)
	assert.True(t, s.IsRecording)
	assert.Equal(t, "tab-1", s.TabID())
	require.NotNil(t, s.StartTime)
	assert.Equal(t, start, *s.StartTime)
}

func TestRouter_IdleStateShape(t *testing.T) {
	r := NewRouter(&fakeService{}, nil, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, statePath, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"isRecording":false,"startTime":null,"recordingTabId":null}`, w.Body.String())
}

func TestClient_TabsAndMeetPage(t *testing.T) {
	svc := &fakeService{tabs: []app.TabStatus{
		{TabID: "meet-1", URL: "https://meet.google.com/abc", IsMeetPage: true},
		{TabID: "other", URL: "https://example.com"},
	}}
	c := newTestClient(t, svc, nil)

	tabs, err := c.Tabs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, svc.tabs, tabs)

	ok, err := c.CheckMeetPage(context.Background(), "meet-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CheckMeetPage(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, ok)

	svc.meetErr = fmt.Errorf("%w: gone", domain.ErrTabNotFound)
	_, err = c.CheckMeetPage(context.Background(), "meet-1")
	assert.ErrorIs(t, err, domain.ErrTabNotFound)
}

func TestRouter_MountsConnectHandler(t *testing.T) {
	called := false
	connect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})
	r := NewRouter(&fakeService{}, connect, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tabs/connect?tabId=x", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestClient_Unavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := NewClient("http://"+addr, time.Second)
	_, err = c.State(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), NewRouter(&fakeService{}, nil, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	c := NewClient("http://"+ln.Addr().String(), time.Second)
	require.Eventually(t, func() bool {
		_, err := c.State(context.Background())
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
