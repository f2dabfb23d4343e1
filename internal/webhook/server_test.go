package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	storagemock "github.com/daniel-neiva/nexcrm-sub000/internal/storage/mock"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

func newTestServer(t *testing.T, pinger Pinger) *Server {
	log := zaptest.NewLogger(t).Named("test")
	handler := NewHandler(testSecret, testAccount, new(storagemock.EventRepoMock), new(publisherMock))
	return NewServer(0, handler, pinger, false, log)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "UP")
}

func TestServer_Ready(t *testing.T) {
	srv := newTestServer(t, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "READY")
}

func TestServer_ReadyDatabaseDown(t *testing.T) {
	srv := newTestServer(t, &fakePinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_READY")
}
