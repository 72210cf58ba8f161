package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/eventsvc/pkg/auth"
	"github.com/nimburion/eventsvc/pkg/middleware/authn"
	"github.com/nimburion/eventsvc/pkg/repository/document"
	ginadapter "github.com/nimburion/eventsvc/pkg/server/router/gin"
)

type apiClient struct {
	t      *testing.T
	router http.Handler
	token  string
}

func newAPI(t *testing.T) (*apiClient, fixture) {
	t.Helper()
	f := newFixture(t)
	tokens, err := auth.NewHMACTokenManager("test-secret", "", time.Hour, nil,
		auth.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewHMACTokenManager() error = %v", err)
	}
	token, _, err := tokens.Issue(f.alice.ID.Hex(), f.alice.Username)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	r := ginadapter.NewRouter()
	NewHandler(f.svc, authn.Authenticate(tokens)).Register(r)
	return &apiClient{t: t, router: r, token: token}, f
}

func (a *apiClient) do(method, path, body string, out interface{}) int {
	a.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code
}

const createBody = `{"title":"Launch","description":"Product launch","location":"Milan",
	"start_time":"2030-04-01T09:00:00Z","end_time":"2030-04-01T12:00:00Z","tags":["launch"]}`

func TestHandler_CRUD(t *testing.T) {
	api, _ := newAPI(t)

	var created EventResponse
	if code := api.do(http.MethodPost, "/api/v1/events", createBody, &created); code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	if created.ID == "" || created.CreatedBy == nil || created.CreatedBy.Username != "alice" {
		t.Fatalf("created = %+v", created)
	}

	var got EventResponse
	if code := api.do(http.MethodGet, "/api/v1/events/"+created.ID, "", &got); code != http.StatusOK || got.Title != "Launch" {
		t.Fatalf("get = %d %+v", code, got)
	}

	var patched EventResponse
	if code := api.do(http.MethodPatch, "/api/v1/events/"+created.ID, `{"status":"completed"}`, &patched); code != http.StatusOK {
		t.Fatalf("patch status = %d", code)
	}
	if patched.Status != StatusCompleted || patched.Title != "Launch" {
		t.Fatalf("patched = %+v", patched)
	}
	if code := api.do(http.MethodPatch, "/api/v1/events/"+created.ID, `{"status":"postponed"}`, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("bad status patch = %d", code)
	}

	var sub SubscriptionResponse
	if code := api.do(http.MethodPost, "/api/v1/events/"+created.ID+"/subscribe", "", &sub); code != http.StatusOK || sub.EventID != created.ID {
		t.Fatalf("subscribe = %d %+v", code, sub)
	}

	var deleted EventResponse
	if code := api.do(http.MethodDelete, "/api/v1/events/"+created.ID, "", &deleted); code != http.StatusOK || deleted.DeletedAt == nil {
		t.Fatalf("delete = %d %+v", code, deleted)
	}
	var errBody map[string]interface{}
	if code := api.do(http.MethodGet, "/api/v1/events/"+created.ID, "", &errBody); code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", code)
	}
	if errBody["code"] != "event_not_found" {
		t.Fatalf("error body = %v", errBody)
	}
}

func TestHandler_List(t *testing.T) {
	api, _ := newAPI(t)
	for _, status := range []string{"scheduled", "canceled", "scheduled"} {
		body := strings.Replace(createBody, `"tags"`, `"status":"`+status+`","tags"`, 1)
		if code := api.do(http.MethodPost, "/api/v1/events", body, nil); code != http.StatusCreated {
			t.Fatalf("create status = %d", code)
		}
	}

	var page document.PageResponse[EventResponse]
	if code := api.do(http.MethodGet, "/api/v1/events?status=scheduled&page=1&page_size=1&order=title:asc", "", &page); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if page.TotalCount != 2 || page.Pages != 2 || len(page.Items) != 1 || page.Items[0].Status != StatusScheduled {
		t.Fatalf("page = %+v", page)
	}

	for _, query := range []string{"page_size=51", "page=-1", "page=x", "start_time_min=yesterday", "status=unknown", "order=title:sideways", "sort_by=secret"} {
		if code := api.do(http.MethodGet, "/api/v1/events?"+query, "", nil); code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status = %d, want 422", query, code)
		}
	}
}

func TestHandler_RequiresToken(t *testing.T) {
	api, _ := newAPI(t)
	api.token = ""
	if code := api.do(http.MethodGet, "/api/v1/events", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("status = %d", code)
	}
}

func TestParseListQuery(t *testing.T) {
	q := url.Values{}
	q.Set("page", "3")
	q.Set("page_size", "20")
	q.Set("start_time_min", "2030-01-01T00:00:00Z")
	q.Set("end_time_max", "2030-02-01T00:00:00")
	q.Set("order", "start_time:desc,title")

	req, err := ParseListQuery(q)
	if err != nil {
		t.Fatalf("ParseListQuery() error = %v", err)
	}
	if req.Page != 3 || req.PageSize != 20 || req.Offset() != 40 {
		t.Fatalf("coordinates = %+v", req)
	}
	f := req.Filters
	if f.StartTime == nil || f.StartTime.Min == nil || f.StartTime.Max != nil {
		t.Fatalf("start_time = %+v", f.StartTime)
	}
	if f.EndTime == nil || !f.EndTime.Max.Equal(time.Date(2030, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end_time = %+v", f.EndTime)
	}
	if f.Status != nil {
		t.Fatalf("status = %v", *f.Status)
	}
	sort, err := req.Sort(EventShape)
	if err != nil || sort.String() != "start_time:desc,title:asc" {
		t.Fatalf("sort = %v, %v", sort, err)
	}

	empty, err := ParseListQuery(url.Values{})
	if err != nil || empty.Page != document.DefaultPage || empty.PageSize != document.DefaultPageSize {
		t.Fatalf("defaults = %+v, %v", empty, err)
	}
	if !document.IsMatchAll(document.Compile(empty.Filters, EventShape)) {
		t.Fatal("empty query must not constrain")
	}
}
