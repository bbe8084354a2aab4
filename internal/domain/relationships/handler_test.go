package relationships

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/snacc/snacc-api/internal/middleware"
)

const testUserHeader = "X-Test-User"

func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(testUserHeader))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), id)))
	})
}

func newTestRouter(repo Repository) http.Handler {
	h := NewHandler(NewService(repo, nil, nil), nil, nil)
	r := chi.NewRouter()
	r.Mount("/relationships", h.Routes(testAuth))
	r.Mount("/users", h.UserRoutes(testAuth))
	r.Mount("/ws", h.StreamRoutes(testAuth))
	return r
}

func do(t *testing.T, srv http.Handler, user uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(testUserHeader, user.String())
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func TestHandlerStatusMapping(t *testing.T) {
	srv := newTestRouter(NewMemoryRepository())
	a, b := uuid.New(), uuid.New()
	users := "/users/" + b.String()
	actions := "/relationships/" + b.String() + "/actions"

	steps := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad id", http.MethodGet, "/relationships/not-a-uuid", "", http.StatusBadRequest},
		{"resolve", http.MethodGet, "/relationships/" + b.String(), "", http.StatusOK},
		{"follow self", http.MethodPost, "/users/me/follow", "", http.StatusBadRequest},
		{"unfollow missing", http.MethodDelete, users + "/follow", "", http.StatusNotFound},
		{"follow", http.MethodPost, users + "/follow", "", http.StatusOK},
		{"follow again", http.MethodPost, actions, `{"action":"follow"}`, http.StatusConflict},
		{"invalid json", http.MethodPost, actions, `{`, http.StatusBadRequest},
		{"missing action", http.MethodPost, actions, `{}`, http.StatusUnprocessableEntity},
		{"block", http.MethodPost, users + "/block", "", http.StatusOK},
		{"block again", http.MethodPost, users + "/block", "", http.StatusConflict},
		{"follow blocked", http.MethodPost, users + "/follow", "", http.StatusForbidden},
		{"unblock", http.MethodDelete, users + "/block", "", http.StatusOK},
		{"remove non follower", http.MethodDelete, users + "/follower", "", http.StatusNotFound},
	}

	for _, step := range steps {
		rr := do(t, srv, a, step.method, step.path, step.body)
		if rr.Code != step.want {
			t.Fatalf("%s: expected %d, got %d (%s)", step.name, step.want, rr.Code, rr.Body.String())
		}
	}
}

func TestHandlerActionReturnsNewState(t *testing.T) {
	srv := newTestRouter(NewMemoryRepository())
	a, b := uuid.New(), uuid.New()

	rr := do(t, srv, a, http.MethodPost, "/relationships/"+b.String()+"/actions", `{"action":"block"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Data ActionResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Action != "block" || resp.Data.State == nil || resp.Data.State.Relationship != RelationshipBlocked {
		t.Fatalf("unexpected response %+v", resp.Data)
	}

	rr = do(t, srv, b, http.MethodGet, "/relationships/"+a.String()+"/dm-eligibility", "")
	var dm struct {
		Data DMEligibilityResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &dm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dm.Data.CanDM || dm.Data.Reason != DMReasonBlocked || dm.Data.Message != "Cannot send messages" {
		t.Fatalf("unexpected eligibility %+v", dm.Data)
	}
}

func TestHandlerUnavailable(t *testing.T) {
	srv := newTestRouter(&downRepo{MemoryRepository: NewMemoryRepository()})
	a, b := uuid.New(), uuid.New()

	for _, path := range []string{"/relationships/" + b.String(), "/relationships/" + b.String() + "/dm-eligibility"} {
		rr := do(t, srv, a, http.MethodGet, path, "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rr.Code)
		}
	}
}

func TestHandlerLists(t *testing.T) {
	repo := NewMemoryRepository()
	srv := newTestRouter(repo)
	me, other := uuid.New(), uuid.New()
	repo.AddProfile(ProfileSummary{ID: other, Username: "other"})

	if rr := do(t, srv, other, http.MethodPost, "/users/"+me.String()+"/follow", ""); rr.Code != http.StatusOK {
		t.Fatalf("follow: %d", rr.Code)
	}
	if rr := do(t, srv, me, http.MethodPost, "/users/"+other.String()+"/block", ""); rr.Code != http.StatusOK {
		t.Fatalf("block: %d", rr.Code)
	}

	rr := do(t, srv, me, http.MethodGet, "/users/me/blocked", "")
	var blocked struct {
		Data []BlockedUserResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &blocked); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(blocked.Data) != 1 || blocked.Data[0].UserID != other || blocked.Data[0].Username != "other" {
		t.Fatalf("unexpected blocked list %+v", blocked.Data)
	}

	// the blocked account cannot page through the blocker's lists
	if rr := do(t, srv, other, http.MethodGet, "/users/"+me.String()+"/following", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("blocked viewer: expected 403, got %d", rr.Code)
	}

	// the block removed other's follow
	rr = do(t, srv, me, http.MethodGet, "/users/me/followers?limit=500", "")
	var list struct {
		Data ProfileListResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Data.Page.Limit != MaxListLimit || list.Data.Page.Count != 0 {
		t.Fatalf("unexpected page %+v", list.Data.Page)
	}

	rr = do(t, srv, me, http.MethodPost, "/users/me/counts/reconcile", "")
	var counts struct {
		Data FollowCounts `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if counts.Data != (FollowCounts{}) {
		t.Fatalf("expected zero counts, got %+v", counts.Data)
	}
}

func TestEventsWithoutHub(t *testing.T) {
	srv := newTestRouter(NewMemoryRepository())
	rr := do(t, srv, uuid.New(), http.MethodGet, "/ws/relationships", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without hub, got %d", rr.Code)
	}
}

// readFailsAfterWriteRepo accepts a follow but fails every block lookup after it
type readFailsAfterWriteRepo struct {
	*MemoryRepository
	written bool
}

func (r *readFailsAfterWriteRepo) InsertFollowEdge(ctx context.Context, followerID, followeeID uuid.UUID) error {
	if err := r.MemoryRepository.InsertFollowEdge(ctx, followerID, followeeID); err != nil {
		return err
	}
	r.written = true
	return nil
}

func (r *readFailsAfterWriteRepo) QueryBlockEdges(ctx context.Context, a, b uuid.UUID) (BlockEdges, error) {
	if r.written {
		return BlockEdges{}, errors.New("replica unavailable")
	}
	return r.MemoryRepository.QueryBlockEdges(ctx, a, b)
}

func TestActionSucceedsWhenStateRereadFails(t *testing.T) {
	srv := newTestRouter(&readFailsAfterWriteRepo{MemoryRepository: NewMemoryRepository()})
	a, b := uuid.New(), uuid.New()

	rr := do(t, srv, a, http.MethodPost, "/users/"+b.String()+"/follow", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("committed follow must report success, got %d (%s)", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data ActionResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Action != "follow" || resp.Data.State != nil {
		t.Fatalf("expected action without state, got %+v", resp.Data)
	}
}
