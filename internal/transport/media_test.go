package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDownloadsMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake image bytes"))
	}))
	defer srv.Close()

	data, err := NewHTTPMediaResolver().Resolve(context.Background(), srv.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("fake image bytes"), data)
}

func TestResolveMapsFailuresToMediaNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewHTTPMediaResolver()

	_, err := r.Resolve(context.Background(), srv.URL+"/gone.png")
	assert.ErrorIs(t, err, ErrMediaNotFound)

	_, err = r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrMediaNotFound)

	_, err = r.Resolve(context.Background(), "http://127.0.0.1:1/nothing")
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

func TestResolveRejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewHTTPMediaResolver().Resolve(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

func TestStatusTrackerNotifiesTransitions(t *testing.T) {
	tracker := NewStatusTracker()

	var seen []bool
	tracker.Subscribe(func(connected bool) {
		seen = append(seen, connected)
	})
	assert.Equal(t, []bool{false}, seen, "current state is pushed on subscribe")

	tracker.SetConnected(true)
	tracker.SetConnected(true) // same state, no notification
	tracker.SetConnected(false)

	assert.Equal(t, []bool{false, true, false}, seen)
	assert.False(t, tracker.Connected())
}
