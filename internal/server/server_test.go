package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"datarequest/internal/config"
	"datarequest/internal/db"
	"datarequest/internal/domain"
	"datarequest/internal/mail"
	"datarequest/internal/migrate"
	"datarequest/internal/repo"
	"datarequest/internal/workflow"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine workflow.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("testZone")
	cfg.Groups = map[string][]config.GroupMember{
		domain.GroupBoard:        {{Username: "bart", Email: "bart@board.example"}},
		domain.GroupDatamanagers: {{Username: "dora", Email: "dora@dm.example"}},
		domain.GroupCommittee:    {{Username: "carol", Email: "carol@dmc.example"}},
	}
	eng := workflow.New(conn, cfg, &mail.Service{Sender: &mail.LogSender{}, PortalURL: cfg.PortalURL}, nil)
	if err := eng.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	handler, err := New(Config{Engine: eng, BasePath: "/v1", Auth: AuthConfig{JWTSecret: testJWTSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: eng,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func token(t *testing.T, username string) string {
	t.Helper()
	tok, err := signDevToken(testJWTSecret, username)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func doJSON(t *testing.T, s *testServer, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(t *testing.T, username string) map[string]string {
	t.Helper()
	return map[string]string{"Authorization": "Bearer " + token(t, username)}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope %s: %v", data, err)
	}
	return envelope.Error.Code
}

const proposalJSON = `{"researchers":{"contacts":[{"name":"Ada","email":"ada@uni.example"}]},"research_context":{"title":"Sleep study"}}`

func submitOverHTTP(t *testing.T, s *testServer) string {
	t.Helper()
	res, data := doJSON(t, s, http.MethodPost, "/v1/datarequests", map[string]any{
		"data": json.RawMessage(proposalJSON),
	}, bearer(t, "ada"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, data)
	}
	var created RequestResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if created.ID == "" || created.Status != domain.StatusSubmitted.String() {
		t.Fatalf("created = %+v", created)
	}
	return created.ID
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	res, data := doJSON(t, s, http.MethodGet, "/v1/datarequests", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	if errorCode(t, data) != "unauthorized" {
		t.Fatalf("code = %s", errorCode(t, data))
	}

	res, data = doJSON(t, s, http.MethodGet, "/v1/datarequests", nil,
		map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("status %d code %s", res.StatusCode, errorCode(t, data))
	}

	// health stays open
	res, _ = doJSON(t, s, http.MethodGet, "/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	s := newTestServer(t)

	res, data := doJSON(t, s, http.MethodPost, "/v1/auth/dev/login",
		map[string]string{"username": "ada"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, data)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("login = %+v, %v", login, err)
	}

	res, data = doJSON(t, s, http.MethodGet, "/v1/datarequests", nil,
		map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("browse with minted token: %d %s", res.StatusCode, data)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t)
	err := s.Engine.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID:       "k1",
		Username: "ada",
		KeyHash:  repo.HashAPIKey("portal-key"),
	})
	if err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	res, data := doJSON(t, s, http.MethodGet, "/v1/datarequests", nil,
		map[string]string{"X-Api-Key": "portal-key"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, s, http.MethodGet, "/v1/datarequests", nil,
		map[string]string{"X-Api-Key": "wrong-key"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
}

func TestSubmitAndStageOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := submitOverHTTP(t, s)

	// the owner may read their own request
	res, data := doJSON(t, s, http.MethodGet, "/v1/datarequests/"+id, nil, bearer(t, "ada"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, data)
	}

	// an outsider may not
	res, data = doJSON(t, s, http.MethodGet, "/v1/datarequests/"+id, nil, bearer(t, "mallory"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}

	// a non-board member cannot run the preliminary review
	res, data = doJSON(t, s, http.MethodPost, "/v1/datarequests/"+id+"/preliminary-review",
		map[string]string{"preliminary_review": domain.DecisionPreliminaryAccept}, bearer(t, "dora"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, s, http.MethodPost, "/v1/datarequests/"+id+"/preliminary-review",
		map[string]string{"preliminary_review": domain.DecisionPreliminaryAccept}, bearer(t, "bart"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preliminary status %d: %s", res.StatusCode, data)
	}
	var status StatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Status != domain.StatusPreliminaryAccept.String() {
		t.Fatalf("status = %s", status.Status)
	}

	// replaying the stage maps to a conflict
	res, data = doJSON(t, s, http.MethodPost, "/v1/datarequests/"+id+"/preliminary-review",
		map[string]string{"preliminary_review": domain.DecisionPreliminaryAccept}, bearer(t, "bart"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_state" {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}

	// the stage artifact is readable by review bodies
	res, data = doJSON(t, s, http.MethodGet, "/v1/datarequests/"+id+"/preliminary-review", nil, bearer(t, "dora"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("artifact status %d: %s", res.StatusCode, data)
	}
	var artifact ArtifactResponse
	if err := json.Unmarshal(data, &artifact); err != nil || len(artifact.Data) == 0 {
		t.Fatalf("artifact = %s, %v", data, err)
	}
}

func TestBrowseOverHTTP(t *testing.T) {
	s := newTestServer(t)
	submitOverHTTP(t, s)
	submitOverHTTP(t, s)

	res, data := doJSON(t, s, http.MethodGet, "/v1/datarequests?limit=1&sort_on=create_time&sort_order=desc", nil, bearer(t, "bart"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var page BrowseResponse
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 1 {
		t.Fatalf("page = %+v", page)
	}

	// query validation happens before the engine runs
	res, data = doJSON(t, s, http.MethodGet, "/v1/datarequests?limit=0", nil, bearer(t, "bart"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
}

func TestUnknownRequestIs404(t *testing.T) {
	s := newTestServer(t)
	res, data := doJSON(t, s, http.MethodGet, "/v1/datarequests/no-such-id", nil, bearer(t, "bart"))
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
}
