package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/clock"
)

func passThrough(next http.Handler) http.Handler { return next }

func TestPresenceRoutes(t *testing.T) {
	p := NewPresence(nil, 0, clock.NewFake(t0), nil)
	p.Connect(4)
	p.Connect(2)

	router := mux.NewRouter()
	RegisterPresenceRoutes(router, NewPresenceHandler(p), passThrough)

	get := func(path string, out interface{}) int {
		t.Helper()
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		var body struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if out != nil && rec.Code == http.StatusOK {
			if err := json.Unmarshal(body.Data, out); err != nil {
				t.Fatal(err)
			}
		}
		return rec.Code
	}

	var online OnlineUsers
	if code := get("/api/v1/presence", &online); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if online.Count != 2 || online.UserIDs[0] != 2 || online.UserIDs[1] != 4 {
		t.Errorf("online = %+v", online)
	}

	var user UserPresence
	get("/api/v1/presence/4", &user)
	if user.Status != StatusOnline {
		t.Errorf("user 4 = %+v", user)
	}

	p.Disconnect(4)
	get("/api/v1/presence/4", &user)
	if user.Status != StatusOffline {
		t.Errorf("user 4 after disconnect = %+v", user)
	}
}
