package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	router "github.com/dkeye/Parley/internal/adapters/http"
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/store"
	"github.com/dkeye/Parley/internal/transcript"
)

func newTestRouter(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	db := store.NewMemory()
	clients := app.NewClientRegistry()
	members := app.NewMembership()
	caster := app.NewBroadcaster(clients, members)
	script := transcript.NewWriter(t.TempDir(), db)
	relay := app.NewRelay(clients, members, caster, script, db, db)

	cfg := &config.Config{
		Mode:       "release",
		Secret:     "test-secret",
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
		RateLimit:  config.RateLimit{Burst: 5, Interval: time.Second},
	}
	return router.SetupRouter(cfg, relay, db), db
}

func TestGetRoomReturnsRecord(t *testing.T) {
	r, db := newTestRouter(t)
	id, err := db.CreateRoom(context.Background(), "general", "root")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got struct {
		Name  string `json:"name"`
		Admin string `json:"admin"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Name != "general" || got.Admin != "root" {
		t.Fatalf("room = %+v, want general/root (id %d)", got, id)
	}
}

func TestGetUnknownRoomIs404(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/42", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "room not found") {
		t.Fatalf("body = %q, want a room not found error", w.Body.String())
	}
}

func TestGetRoomRejectsBadID(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, raw := range []string{"abc", "0", "-3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/"+raw, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("id %q: status = %d, want 400", raw, w.Code)
		}
	}
}
