package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shopbot/internal/bot"
	"shopbot/internal/bot/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

// setupServer - хелпер для инициализации сервера и мока диспетчера
func setupServer(t *testing.T, pinger Pinger) (*Server, *mocks.MockHandler) {
	ctrl := gomock.NewController(t)
	mockHandler := mocks.NewMockHandler(ctrl)
	return NewServer("0", mockHandler, pinger), mockHandler
}

func postEvent(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestPostEvent_Success(t *testing.T) {
	s, mockHandler := setupServer(t, nil)

	want := bot.Event{PrincipalID: 42, Kind: bot.KindText, Text: "/start", Name: "Аня"}
	mockHandler.EXPECT().Handle(gomock.Any(), want).
		Return([]bot.Reply{{Text: "Как вас зовут?"}}, nil)

	rr := postEvent(t, s, `{"principal_id":42,"kind":"text","text":"/start","name":"Аня"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp EventsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, "Как вас зовут?", resp.Replies[0].Text)
}

func TestPostEvent_NoReplies(t *testing.T) {
	s, mockHandler := setupServer(t, nil)
	mockHandler.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(nil, nil)

	rr := postEvent(t, s, `{"principal_id":1,"kind":"button","button":"noop"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"replies":[]}`, rr.Body.String())
}

func TestPostEvent_BadJSON(t *testing.T) {
	s, mockHandler := setupServer(t, nil)
	// Диспетчер не вызывается
	mockHandler.EXPECT().Handle(gomock.Any(), gomock.Any()).Times(0)

	rr := postEvent(t, s, "this is not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postEvent(t, s, `{"principal_id":1,"kind":"text","unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPostEvent_InvalidEvent(t *testing.T) {
	s, mockHandler := setupServer(t, nil)
	mockHandler.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(nil, bot.ErrInvalidEvent)

	rr := postEvent(t, s, `{"principal_id":0,"kind":"text"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "некорректное событие")
}

func TestPostEvent_InternalError(t *testing.T) {
	s, mockHandler := setupServer(t, nil)
	mockHandler.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	rr := postEvent(t, s, `{"principal_id":1,"kind":"text","text":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
}

func TestPostEvent_MethodNotAllowed(t *testing.T) {
	s, _ := setupServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		pinger Pinger
		code   int
	}{
		{name: "ok", pinger: stubPinger{}, code: http.StatusOK},
		{name: "no pinger", pinger: nil, code: http.StatusOK},
		{name: "db down", pinger: stubPinger{err: errors.New("connection refused")}, code: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := setupServer(t, tt.pinger)
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rr := httptest.NewRecorder()
			s.router.ServeHTTP(rr, req)
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, mockHandler := setupServer(t, nil)
	mockHandler.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(nil, nil)
	postEvent(t, s, `{"principal_id":1,"kind":"text","text":"hi"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := setupServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, s.Run(ctx))
}
