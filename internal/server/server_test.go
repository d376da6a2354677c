package server

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/auth"
	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/embedding"
	"github.com/hyperjump/reelrank/internal/extract"
	"github.com/hyperjump/reelrank/internal/indexer"
	"github.com/hyperjump/reelrank/internal/keyword"
	"github.com/hyperjump/reelrank/internal/models"
	"github.com/hyperjump/reelrank/internal/recommend"
	"github.com/hyperjump/reelrank/internal/storage"
	"github.com/hyperjump/reelrank/internal/vector"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	store   *storage.SQLiteStorage
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret"}}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = ":memory:"
	cfg.Storage.SnapshotDir = t.TempDir()
	cfg.Server.RateLimitRequests = 10000

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	kw, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })
	vecIndex, err := vector.NewMemoryIndex(8, vector.MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	enricher := recommend.NewEnricher(store, cfg.Recommend, cfg.Media, logger)
	engine, err := recommend.NewEngine(embedding.NewMockEmbedder(8), vecIndex,
		recommend.WithEnricher(enricher), recommend.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := auth.NewJWTManager(cfg.Auth)
	if err != nil {
		t.Fatal(err)
	}
	loader := extract.NewLoader()
	srv := NewServer(Deps{
		Storage: store,
		Keyword: kw,
		Service: recommend.NewService(engine, store, cfg.Recommend, logger),
		Indexer: indexer.NewIndexer(store, kw, engine, loader, indexer.WithLogger(logger)),
		Auth:    auth.NewAuthenticator(tokens, store),
		Loader:  loader,
		Config:  cfg,
		Logger:  logger,
	})
	return &testAPI{t: t, handler: srv.Handler(), store: store}
}

func (a *testAPI) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, testEnvelope) {
	a.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			a.t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, token)
}

func (a *testAPI) send(req *http.Request, token string) (*httptest.ResponseRecorder, testEnvelope) {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	var env testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			a.t.Fatalf("%s %s: bad envelope %q: %v", req.Method, req.URL.Path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func decodeData(t *testing.T, env testEnvelope, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}

// login creates a user and returns a bearer token for it.
func (a *testAPI) login(username string) string {
	a.t.Helper()
	rec, _ := a.do(http.MethodPost, "/auth/signup", "", models.SignupRequest{
		Username: username, Email: username + "@example.com", Password: "correct-horse",
	})
	expectStatus(a.t, rec, http.StatusCreated)
	rec, env := a.do(http.MethodPost, "/auth/login", "", models.LoginRequest{Username: username, Password: "correct-horse"})
	expectStatus(a.t, rec, http.StatusOK)
	var tok tokenResponse
	decodeData(a.t, env, &tok)
	if tok.AccessToken == "" || tok.TokenType != "bearer" {
		a.t.Fatalf("token response = %+v", tok)
	}
	return tok.AccessToken
}

func seedMovies(t *testing.T, a *testAPI, token string) {
	t.Helper()
	rec, env := a.do(http.MethodPost, "/vector/upload", token, `[
		{"id": 1, "title": "Dune", "description": "Spice war", "genres": ["Science Fiction"]},
		{"id": 2, "title": "Heat", "description": "Bank heist", "genres": ["Crime"]},
		{"id": 3, "title": "Cars", "description": "Racing cars", "genres": ["Animation"]}
	]`)
	expectStatus(t, rec, http.StatusOK)
	var res models.IngestResponse
	decodeData(t, env, &res)
	if res.Ingested != 3 || !res.Persisted || len(res.MovieIDs) != 3 {
		t.Fatalf("ingest response = %+v", res)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t)
	rec, env := a.do(http.MethodGet, "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !env.Success {
		t.Errorf("envelope = %+v", env)
	}
	rec, _ = a.do(http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "reelrank_http_request_duration_seconds") {
		t.Error("metrics output missing request histogram")
	}
}

func TestSignup(t *testing.T) {
	a := newTestAPI(t)
	signup := func(username, email, password string) (*httptest.ResponseRecorder, testEnvelope) {
		return a.do(http.MethodPost, "/auth/signup", "", models.SignupRequest{Username: username, Email: email, Password: password})
	}

	rec, env := signup("ana", "ana@example.com", "correct-horse")
	expectStatus(t, rec, http.StatusCreated)
	var user models.User
	decodeData(t, env, &user)
	if user.ID == 0 || user.Email != "ana@example.com" {
		t.Errorf("created user = %+v", user)
	}
	if strings.Contains(string(env.Data), "correct-horse") || strings.Contains(string(env.Data), "password") {
		t.Error("signup response leaks the password")
	}

	rec, env = signup("ana2", "ana@example.com", "correct-horse")
	expectStatus(t, rec, http.StatusBadRequest)
	if env.Message != "Email already exists" || env.Success {
		t.Errorf("duplicate email envelope = %+v", env)
	}
	rec, env = signup("ana", "other@example.com", "correct-horse")
	expectStatus(t, rec, http.StatusBadRequest)
	if env.Message != "Username already exists" {
		t.Errorf("duplicate username message = %q", env.Message)
	}
	rec, _ = signup("bob", "bob@example.com", "short")
	expectStatus(t, rec, http.StatusBadRequest)
	rec, _ = a.do(http.MethodPost, "/auth/signup", "", "{not json")
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestLoginAndAuthentication(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")

	rec, env := a.do(http.MethodPost, "/auth/login", "", models.LoginRequest{Username: "nobody", Password: "whatever"})
	expectStatus(t, rec, http.StatusNotFound)
	if env.Message != "User not found" {
		t.Errorf("message = %q", env.Message)
	}
	rec, _ = a.do(http.MethodPost, "/auth/login", "", models.LoginRequest{Email: "ana@example.com", Password: "wrong-password"})
	expectStatus(t, rec, http.StatusUnauthorized)
	rec, _ = a.do(http.MethodPost, "/auth/login", "", models.LoginRequest{Email: "ana@example.com", Password: "correct-horse"})
	expectStatus(t, rec, http.StatusOK)

	rec, env = a.do(http.MethodGet, "/user/me", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var me models.User
	decodeData(t, env, &me)
	if me.Username != "ana" {
		t.Errorf("me = %+v", me)
	}

	rec, _ = a.do(http.MethodGet, "/user/me", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	rec, _ = a.do(http.MethodGet, "/user/me", "not-a-token", nil)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestVectorUploadAndSearch(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")
	seedMovies(t, a, token)

	rec, env := a.do(http.MethodGet, "/vector/search?query=Dune+Spice+war&k=2", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var res recommend.Result
	decodeData(t, env, &res)
	if len(res.Movies) != 2 {
		t.Fatalf("got %d movies, want 2", len(res.Movies))
	}
	top := res.Movies[0]
	if top.MovieID != 1 || top.SimilarityScore < 0.999 {
		t.Errorf("top hit = %+v", top)
	}
	if len(top.Genres) != 1 || top.Genres[0] != "Science Fiction" {
		t.Errorf("top hit genres = %v", top.Genres)
	}

	one := 1
	rec, env = a.do(http.MethodPost, "/vector/search", token, models.SearchRequest{Query: "Heat Bank heist", K: &one})
	expectStatus(t, rec, http.StatusOK)
	decodeData(t, env, &res)
	if len(res.Movies) != 1 || res.Movies[0].MovieID != 2 {
		t.Errorf("POST search = %+v", res.Movies)
	}

	rec, env = a.do(http.MethodPost, "/vector/recommend", token, models.SearchRequest{Query: "Cars Racing cars"})
	expectStatus(t, rec, http.StatusOK)
	decodeData(t, env, &res)
	if len(res.Movies) != 3 || res.Movies[0].MovieID != 3 || res.Strategy != recommend.StrategyQuery {
		t.Errorf("recommend = %+v", res)
	}

	rec, _ = a.do(http.MethodGet, "/vector/search", token, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec, _ = a.do(http.MethodGet, "/vector/search?query=x&k=abc", token, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec, _ = a.do(http.MethodGet, "/vector/search?query=x&k=-1", token, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec, _ = a.do(http.MethodPost, "/vector/search", token, `{"query": "x", "k": -2}`)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestVectorSearch_ZeroK(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")
	seedMovies(t, a, token)

	for _, req := range []struct{ method, path, body string }{
		{http.MethodGet, "/vector/search?query=Dune&k=0", ""},
		{http.MethodPost, "/vector/search", `{"query": "Dune", "k": 0}`},
		{http.MethodGet, "/vector/recommend?k=0", ""},
	} {
		var body interface{}
		if req.body != "" {
			body = req.body
		}
		rec, env := a.do(req.method, req.path, token, body)
		expectStatus(t, rec, http.StatusOK)
		var res recommend.Result
		decodeData(t, env, &res)
		if res.Movies == nil || len(res.Movies) != 0 {
			t.Errorf("%s %s: movies = %v, want empty list", req.method, req.path, res.Movies)
		}
	}

	rec, env := a.do(http.MethodGet, "/vector/search?query=Dune", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var res recommend.Result
	decodeData(t, env, &res)
	if len(res.Movies) != 3 {
		t.Errorf("absent k returned %d movies, want all 3", len(res.Movies))
	}
}

func TestVectorUpload_Rejects(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")
	for _, body := range []string{`[]`, `{"movies": []}`, `not json`} {
		rec, env := a.do(http.MethodPost, "/vector/process", token, body)
		if rec.Code != http.StatusBadRequest || env.Success {
			t.Errorf("body %q: status %d", body, rec.Code)
		}
	}
	rec, _ := a.do(http.MethodPost, "/vector/upload", "", `[{"title": "x"}]`)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestVectorUpload_Multipart(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "catalog.csv")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, "movie_id,title,overview,genres\n7,Alien,Space horror,Horror|Science Fiction\n8,Up,Balloons,Animation\n")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/vector/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, env := a.send(req, token)
	expectStatus(t, rec, http.StatusOK)
	var res models.IngestResponse
	decodeData(t, env, &res)
	if res.Ingested != 2 || res.MovieIDs[0] != 7 {
		t.Errorf("multipart ingest = %+v", res)
	}

	buf.Reset()
	mw = multipart.NewWriter(&buf)
	fw, _ = mw.CreateFormFile("file", "catalog.pdf")
	io.WriteString(fw, "%PDF")
	mw.Close()
	req = httptest.NewRequest(http.MethodPost, "/vector/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, _ = a.send(req, token)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestMovieRoutes(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")
	seedMovies(t, a, token)

	rec, env := a.do(http.MethodGet, "/movie/?page=1&page_size=2", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var list models.MovieListResponse
	decodeData(t, env, &list)
	if list.TotalCount != 3 || len(list.Movies) != 2 || list.Movies[0].MovieID != 1 {
		t.Errorf("list = %+v", list)
	}

	rec, env = a.do(http.MethodGet, "/movie/?search=ea", token, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeData(t, env, &list)
	if list.TotalCount != 1 || list.Movies[0].Title != "Heat" {
		t.Errorf("search list = %+v", list)
	}

	rec, env = a.do(http.MethodGet, "/movie/genres", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var genres []models.Genre
	decodeData(t, env, &genres)
	if len(genres) != 3 {
		t.Errorf("genres = %+v", genres)
	}

	rec, env = a.do(http.MethodGet, "/movie/2", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var movie models.Movie
	decodeData(t, env, &movie)
	if movie.Title != "Heat" || movie.Overview != "Bank heist" {
		t.Errorf("movie = %+v", movie)
	}

	rec, _ = a.do(http.MethodGet, "/movie/999", token, nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec, _ = a.do(http.MethodGet, "/movie/abc", token, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec, _ = a.do(http.MethodGet, "/movie/?page=x", token, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec, env = a.do(http.MethodGet, "/movie/actor/5", token, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeData(t, env, &list)
	if list.TotalCount != 0 {
		t.Errorf("actor list = %+v", list)
	}
}

func TestKeywordSearchAndHistory(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")
	seedMovies(t, a, token)

	rec, env := a.do(http.MethodGet, "/user-activity/search?query=dune", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var res keywordSearchResponse
	decodeData(t, env, &res)
	if len(res.Movies) != 1 || res.Movies[0].MovieID != 1 || res.Suggestion != "" {
		t.Errorf("search = %+v", res)
	}

	rec, env = a.do(http.MethodGet, "/user-activity/search?query=dume", token, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeData(t, env, &res)
	if len(res.Movies) != 0 || res.Suggestion != "dune" {
		t.Errorf("misspelled search = %+v", res)
	}

	rec, _ = a.do(http.MethodGet, "/user-activity/search", token, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec, env = a.do(http.MethodGet, "/user-activity/search-history", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var history []models.SearchHistoryEntry
	decodeData(t, env, &history)
	if len(history) != 2 || history[0].Query != "dume" {
		t.Fatalf("history = %+v", history)
	}

	rec, env = a.do(http.MethodGet, "/vector/recommend/history?k=2", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var rr recommend.Result
	decodeData(t, env, &rr)
	if rr.Strategy != recommend.StrategyHistory || rr.Query != "dume dume dume dume dume dune dune dune dune" || len(rr.Movies) != 2 {
		t.Errorf("history recommendation = %+v", rr)
	}

	other := a.login("bob")
	path := "/user-activity/search-history/" + strconv.FormatInt(history[0].ID, 10)
	rec, _ = a.do(http.MethodDelete, path, other, nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec, _ = a.do(http.MethodDelete, path, token, nil)
	expectStatus(t, rec, http.StatusOK)
	rec, _ = a.do(http.MethodDelete, path, token, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestFavorites(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")
	seedMovies(t, a, token)

	rec, _ := a.do(http.MethodPost, "/user-activity/favorites/1", token, nil)
	expectStatus(t, rec, http.StatusCreated)
	rec, env := a.do(http.MethodPost, "/user-activity/favorites/1", token, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	if env.Message != "Movie already in favorites" {
		t.Errorf("message = %q", env.Message)
	}
	rec, _ = a.do(http.MethodPost, "/user-activity/favorites/999", token, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec, env = a.do(http.MethodGet, "/user-activity/favorites", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var favs models.FavoriteListResponse
	decodeData(t, env, &favs)
	if favs.TotalCount != 1 || favs.Favorites[0].Movie == nil || favs.Favorites[0].Movie.Title != "Dune" {
		t.Errorf("favorites = %+v", favs)
	}

	rec, env = a.do(http.MethodGet, "/vector/recommend/favorites?k=5", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var rr recommend.Result
	decodeData(t, env, &rr)
	if len(rr.Movies) != 2 {
		t.Errorf("favorites recommendation returned %d movies, want 2", len(rr.Movies))
	}
	for _, m := range rr.Movies {
		if m.MovieID == 1 {
			t.Error("favorited movie recommended back")
		}
	}

	rec, _ = a.do(http.MethodDelete, "/user-activity/favorites/1", token, nil)
	expectStatus(t, rec, http.StatusOK)
	rec, _ = a.do(http.MethodDelete, "/user-activity/favorites/1", token, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestPreferencesAndProfileRecommendation(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")
	seedMovies(t, a, token)

	rec, env := a.do(http.MethodGet, "/vector/recommend", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var rr recommend.Result
	decodeData(t, env, &rr)
	if rr.Query != "popular movies" || len(rr.Movies) != 3 {
		t.Errorf("empty profile recommendation = %+v", rr)
	}

	rec, env = a.do(http.MethodPut, "/user/preferences", token, models.PreferencesRequest{
		Location: "Lisbon", Genres: []string{"Crime"}, Languages: []string{"pt"},
	})
	expectStatus(t, rec, http.StatusOK)
	var user models.User
	decodeData(t, env, &user)
	if user.Location != "Lisbon" || len(user.Genres) != 1 {
		t.Errorf("updated user = %+v", user)
	}

	rec, env = a.do(http.MethodGet, "/vector/recommend?k=1", token, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeData(t, env, &rr)
	if rr.Strategy != recommend.StrategyProfile || rr.Query != "Lisbon genre:Crime genre:Crime language:pt" || len(rr.Movies) != 1 {
		t.Errorf("profile recommendation = %+v", rr)
	}
}

func TestRemoveMovieAndStatus(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("ana")
	seedMovies(t, a, token)

	rec, env := a.do(http.MethodDelete, "/vector/movies/1", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var removed removeResponse
	decodeData(t, env, &removed)
	if removed.Removed != 1 || !removed.Persisted {
		t.Errorf("remove = %+v", removed)
	}
	rec, _ = a.do(http.MethodDelete, "/vector/movies/1", token, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec, env = a.do(http.MethodGet, "/vector/search?query=Dune+Spice+war&k=10", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var res recommend.Result
	decodeData(t, env, &res)
	if len(res.Movies) != 2 {
		t.Errorf("search after removal returned %d movies", len(res.Movies))
	}

	rec, env = a.do(http.MethodGet, "/vector/status", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var st statusResponse
	decodeData(t, env, &st)
	if st.Engine.Vectors != 3 || st.Engine.Removed != 1 || st.CatalogCount != 3 || st.KeywordDocs != 2 {
		t.Errorf("status = %+v", st)
	}
	if st.Engine.LastUpdated.IsZero() || time.Since(st.Engine.LastUpdated) > time.Minute {
		t.Errorf("last updated = %v", st.Engine.LastUpdated)
	}
}

func TestConflictMessage(t *testing.T) {
	tests := map[string]string{
		"email":    "Email already exists",
		"username": "Username already exists",
		"favorite": "Movie already in favorites",
		"user":     "user already exists",
	}
	for field, want := range tests {
		if got := conflictMessage(field); got != want {
			t.Errorf("conflictMessage(%q) = %q, want %q", field, got, want)
		}
	}
}
