package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	httpctrl "github.com/secmon-lab/storynotes/pkg/controller/http"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
	"github.com/secmon-lab/storynotes/pkg/domain/model/config"
	"github.com/secmon-lab/storynotes/pkg/repository/memory"
	"github.com/secmon-lab/storynotes/pkg/usecase"
)

type stubDeriver struct {
	embedErr  error
	embedWait time.Duration
}

func (d *stubDeriver) Embed(ctx context.Context, text string) ([]float32, error) {
	if d.embedWait > 0 {
		select {
		case <-time.After(d.embedWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.embedErr != nil {
		return nil, d.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (d *stubDeriver) ExtractTimeline(ctx context.Context, text string) (model.Timeline, error) {
	return model.Timeline(`[{"description":"Moved to Berlin","time":"2019"}]`), nil
}

func (d *stubDeriver) GenerateTitle(ctx context.Context, text string) (string, error) {
	return "Berlin", nil
}

type failingStories struct {
	interfaces.StoryRepository
}

func (f *failingStories) Create(ctx context.Context, story *model.Story) (*model.Story, error) {
	return nil, errors.New("connection reset by peer 10.0.0.1")
}

type repoWithStories struct {
	interfaces.Repository
	stories interfaces.StoryRepository
}

func (r *repoWithStories) Story() interfaces.StoryRepository {
	return r.stories
}

func newTestServer(t *testing.T, repo interfaces.Repository, deriver *stubDeriver, opts ...httpctrl.Options) *httpctrl.Server {
	t.Helper()
	uc := usecase.New(repo,
		usecase.WithEmbedder(deriver),
		usecase.WithTimelineExtractor(deriver),
		usecase.WithTitleGenerator(deriver),
		usecase.WithDerivationConfig(&config.Derivation{
			Dimension:        3,
			EmbeddingTimeout: 100 * time.Millisecond,
			TimelineTimeout:  time.Second,
			TitleTimeout:     time.Second,
		}),
	)
	return httpctrl.New(uc, opts...)
}

func postStory(t *testing.T, srv http.Handler, principal string, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/story", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("x-auth-user-id", principal)
		req.Header.Set("x-auth-username", "Alice")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == httpctrl.SessionCookieName {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body)).Required()
	return body
}

const storyBody = `{"story":"I moved to Berlin in 2019 and started a new job."}`

func TestIngestStory(t *testing.T) {
	t.Run("first submission issues session cookie", func(t *testing.T) {
		repo := memory.New()
		srv := newTestServer(t, repo, &stubDeriver{})

		w := postStory(t, srv, "u1", nil, storyBody)
		gt.Value(t, w.Code).Equal(http.StatusOK)

		body := decodeBody(t, w)
		gt.Value(t, body["success"]).Equal(true)
		gt.String(t, body["id"].(string)).NotEqual("")

		cookie := sessionCookie(w)
		gt.Value(t, cookie).NotNil().Required()
		gt.Value(t, cookie.Path).Equal("/")
		gt.Bool(t, cookie.HttpOnly).True()
		gt.Bool(t, cookie.Secure).False()
		gt.Value(t, cookie.SameSite).Equal(http.SameSiteLaxMode)
		gt.Value(t, cookie.MaxAge).Equal(31536000)

		user, err := repo.User().GetBySessionToken(context.Background(), model.SessionToken(cookie.Value))
		gt.NoError(t, err).Required()
		gt.Value(t, user.PrincipalID).Equal(model.PrincipalID("u1"))
		gt.Value(t, user.DisplayName).Equal("Alice")
	})

	t.Run("cookie is Secure in production", func(t *testing.T) {
		srv := newTestServer(t, memory.New(), &stubDeriver{}, httpctrl.WithProduction(true))

		w := postStory(t, srv, "u1", nil, storyBody)
		gt.Value(t, w.Code).Equal(http.StatusOK)
		cookie := sessionCookie(w)
		gt.Value(t, cookie).NotNil().Required()
		gt.Bool(t, cookie.Secure).True()
	})

	t.Run("no cookie is issued when one was sent", func(t *testing.T) {
		repo := memory.New()
		srv := newTestServer(t, repo, &stubDeriver{})

		first := postStory(t, srv, "u1", nil, storyBody)
		cookie := sessionCookie(first)
		gt.Value(t, cookie).NotNil().Required()

		second := postStory(t, srv, "u1", &http.Cookie{Name: httpctrl.SessionCookieName, Value: cookie.Value}, storyBody)
		gt.Value(t, second.Code).Equal(http.StatusOK)
		gt.Value(t, sessionCookie(second)).Nil()

		user, err := repo.User().GetByPrincipal(context.Background(), "u1")
		gt.NoError(t, err).Required()
		stories, err := repo.Story().ListByUser(context.Background(), user.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, stories).Length(2)
	})

	t.Run("anonymous session is promoted", func(t *testing.T) {
		repo := memory.New()
		anon, err := repo.User().Create(context.Background(), &model.User{SessionToken: "tok123"})
		gt.NoError(t, err).Required()
		srv := newTestServer(t, repo, &stubDeriver{})

		w := postStory(t, srv, "u1", &http.Cookie{Name: httpctrl.SessionCookieName, Value: "tok123"}, storyBody)
		gt.Value(t, w.Code).Equal(http.StatusOK)
		gt.Value(t, sessionCookie(w)).Nil()

		user, err := repo.User().GetByPrincipal(context.Background(), "u1")
		gt.NoError(t, err).Required()
		gt.Value(t, user.ID).Equal(anon.ID)
	})

	t.Run("missing principal is unauthorized", func(t *testing.T) {
		repo := memory.New()
		srv := newTestServer(t, repo, &stubDeriver{})

		w := postStory(t, srv, "", nil, storyBody)
		gt.Value(t, w.Code).Equal(http.StatusUnauthorized)
		gt.Value(t, strings.TrimSpace(w.Body.String())).Equal(`{"error":"Unauthorized"}`)
		gt.Value(t, sessionCookie(w)).Nil()
	})

	t.Run("invalid bodies are rejected", func(t *testing.T) {
		srv := newTestServer(t, memory.New(), &stubDeriver{})

		for _, body := range []string{
			`not json`,
			`{}`,
			`{"story":""}`,
			`{"story":"   "}`,
			`{"story":42}`,
			`{"story":"` + strings.Repeat("a", usecase.MaxStoryBytes+1) + `"}`,
		} {
			w := postStory(t, srv, "u1", nil, body)
			gt.Value(t, w.Code).Equal(http.StatusBadRequest)
			gt.Value(t, decodeBody(t, w)["error"]).Equal("Invalid request")
			gt.Value(t, sessionCookie(w)).Nil()
		}
	})

	t.Run("escaped story is limited by its decoded size", func(t *testing.T) {
		repo := memory.New()
		srv := newTestServer(t, repo, &stubDeriver{})

		// 30000 x "é" is 60000 bytes of text but 180000 bytes on the wire
		w := postStory(t, srv, "u1", nil, `{"story":"`+strings.Repeat(`\u00e9`, 30000)+`"}`)
		gt.Value(t, w.Code).Equal(http.StatusOK)

		id := decodeBody(t, w)["id"].(string)
		story, err := repo.Story().Get(context.Background(), model.StoryID(id))
		gt.NoError(t, err).Required()
		gt.Value(t, story.RawText).Equal(strings.Repeat("é", 30000))

		w = postStory(t, srv, "u1", nil, `{"story":"`+strings.Repeat(`\u00e9`, usecase.MaxStoryBytes/2+1)+`"}`)
		gt.Value(t, w.Code).Equal(http.StatusBadRequest)
		gt.Value(t, decodeBody(t, w)["error"]).Equal("Invalid request")
	})

	t.Run("derivation failure is retryable and leaks nothing", func(t *testing.T) {
		repo := memory.New()
		srv := newTestServer(t, repo, &stubDeriver{embedErr: errors.New("vertex quota exceeded for project secret-123")})

		w := postStory(t, srv, "u1", nil, storyBody)
		gt.Value(t, w.Code).Equal(http.StatusInternalServerError)
		gt.Bool(t, strings.Contains(w.Body.String(), "secret-123")).False()

		body := decodeBody(t, w)
		gt.Value(t, body["error"]).Equal("Failed to process story")
		gt.Value(t, body["code"]).Equal("derivation_failed")
		gt.Value(t, body["retryable"]).Equal(true)
		gt.Value(t, sessionCookie(w)).Nil()

		// user survives for a retry
		_, err := repo.User().GetByPrincipal(context.Background(), "u1")
		gt.NoError(t, err)
	})

	t.Run("embedding timeout is a derivation failure", func(t *testing.T) {
		repo := memory.New()
		srv := newTestServer(t, repo, &stubDeriver{embedWait: time.Second})

		w := postStory(t, srv, "u1", nil, storyBody)
		gt.Value(t, w.Code).Equal(http.StatusInternalServerError)
		gt.Value(t, decodeBody(t, w)["code"]).Equal("derivation_failed")

		user, err := repo.User().GetByPrincipal(context.Background(), "u1")
		gt.NoError(t, err).Required()
		stories, err := repo.Story().ListByUser(context.Background(), user.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, stories).Length(0)
	})

	t.Run("persistence failure is not retryable", func(t *testing.T) {
		base := memory.New()
		repo := &repoWithStories{Repository: base, stories: &failingStories{StoryRepository: base.Story()}}
		srv := newTestServer(t, repo, &stubDeriver{})

		w := postStory(t, srv, "u1", nil, storyBody)
		gt.Value(t, w.Code).Equal(http.StatusInternalServerError)
		gt.Bool(t, strings.Contains(w.Body.String(), "10.0.0.1")).False()

		body := decodeBody(t, w)
		gt.Value(t, body["code"]).Equal("persistence_failed")
		gt.Value(t, body["retryable"]).Equal(false)
	})

	t.Run("custom principal header", func(t *testing.T) {
		srv := newTestServer(t, memory.New(), &stubDeriver{}, httpctrl.WithPrincipalHeader("x-user"))

		req := httptest.NewRequest(http.MethodPost, "/api/story", strings.NewReader(storyBody))
		req.Header.Set("x-user", "u9")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		gt.Value(t, w.Code).Equal(http.StatusOK)
	})
}

func TestStoryManagement(t *testing.T) {
	repo := memory.New()
	srv := newTestServer(t, repo, &stubDeriver{})

	do := func(t *testing.T, method, path, principal, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if principal != "" {
			req.Header.Set("x-auth-user-id", principal)
		}
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		return w
	}

	first := decodeBody(t, postStory(t, srv, "u1", nil, `{"story":"first"}`))["id"].(string)
	time.Sleep(5 * time.Millisecond)
	postStory(t, srv, "u1", nil, `{"story":"second"}`)

	t.Run("list returns stories oldest first", func(t *testing.T) {
		w := do(t, http.MethodGet, "/api/stories", "u1", "")
		gt.Value(t, w.Code).Equal(http.StatusOK)

		var stories []map[string]any
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &stories)).Required()
		gt.Array(t, stories).Length(2).Required()
		gt.Value(t, stories[0]["id"]).Equal(first)
		gt.Value(t, stories[0]["rawText"]).Equal("first")
		gt.Value(t, stories[0]["title"]).Equal("Berlin")
	})

	t.Run("list of unknown principal is empty array", func(t *testing.T) {
		w := do(t, http.MethodGet, "/api/stories", "nobody", "")
		gt.Value(t, w.Code).Equal(http.StatusOK)
		gt.Value(t, strings.TrimSpace(w.Body.String())).Equal(`[]`)
	})

	t.Run("update own story", func(t *testing.T) {
		w := do(t, http.MethodPut, "/api/story/"+first, "u1", `{"rawText":"edited"}`)
		gt.Value(t, w.Code).Equal(http.StatusOK)
		gt.Value(t, decodeBody(t, w)["rawText"]).Equal("edited")
	})

	t.Run("update with rederive", func(t *testing.T) {
		w := do(t, http.MethodPut, "/api/story/"+first, "u1", `{"rawText":"edited again","rederive":true}`)
		gt.Value(t, w.Code).Equal(http.StatusOK)
		gt.Value(t, decodeBody(t, w)["title"]).Equal("Berlin")
	})

	t.Run("update of foreign story is not found", func(t *testing.T) {
		w := do(t, http.MethodPut, "/api/story/"+first, "u2", `{"rawText":"hijack"}`)
		gt.Value(t, w.Code).Equal(http.StatusNotFound)
	})

	t.Run("update with blank text is rejected", func(t *testing.T) {
		w := do(t, http.MethodPut, "/api/story/"+first, "u1", `{"rawText":" "}`)
		gt.Value(t, w.Code).Equal(http.StatusBadRequest)
	})

	t.Run("timeline groups events by story", func(t *testing.T) {
		w := do(t, http.MethodGet, "/api/timeline", "u1", "")
		gt.Value(t, w.Code).Equal(http.StatusOK)

		var timelines []struct {
			StoryID string                `json:"storyId"`
			Events  []model.TimelineEvent `json:"events"`
		}
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &timelines)).Required()
		gt.Array(t, timelines).Length(2).Required()
		gt.Value(t, timelines[0].StoryID).Equal(first)
		gt.Value(t, timelines[0].Events[0].Description).Equal("Moved to Berlin")
	})

	t.Run("management endpoints require principal", func(t *testing.T) {
		for _, tc := range []struct{ method, path string }{
			{http.MethodGet, "/api/stories"},
			{http.MethodPut, "/api/story/" + first},
			{http.MethodDelete, "/api/stories/delete-all"},
			{http.MethodGet, "/api/timeline"},
		} {
			w := do(t, tc.method, tc.path, "", `{}`)
			gt.Value(t, w.Code).Equal(http.StatusUnauthorized)
		}
	})

	t.Run("delete all", func(t *testing.T) {
		w := do(t, http.MethodDelete, "/api/stories/delete-all", "u1", "")
		gt.Value(t, w.Code).Equal(http.StatusOK)
		gt.Value(t, decodeBody(t, w)["deleted"]).Equal(float64(2))

		w = do(t, http.MethodGet, "/api/stories", "u1", "")
		gt.Value(t, strings.TrimSpace(w.Body.String())).Equal(`[]`)
	})
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, memory.New(), &stubDeriver{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	gt.Value(t, w.Code).Equal(http.StatusOK)
}
