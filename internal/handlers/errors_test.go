package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Razee4315/panda-chat/internal/middleware"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

func TestHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("room r1: %w", repositories.ErrNotFound), http.StatusNotFound},
		{"already exists", repositories.ErrAlreadyExists, http.StatusConflict},
		{"already requested", repositories.ErrAlreadyRequested, http.StatusConflict},
		{"invalid state", fmt.Errorf("bad: %w", repositories.ErrInvalidState), http.StatusBadRequest},
		{"store unavailable", fmt.Errorf("get: %w", repositories.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			var he *echo.HTTPError
			require.ErrorAs(t, httpError(c, tt.err), &he)
			assert.Equal(t, tt.want, he.Code)
		})
	}
}

func TestCurrentUID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := currentUID(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)

	c.Set(middleware.UIDKey, "alice")
	uid, err := currentUID(c)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)
}

func TestLatestKeepsNewest(t *testing.T) {
	box := &latest[int]{notify: make(chan struct{}, 1)}
	box.put(1)
	box.put(2)
	box.put(3)

	<-box.notify
	assert.Equal(t, 3, box.get())
	select {
	case <-box.notify:
		t.Fatal("expected a single pending wake-up")
	default:
	}
}
