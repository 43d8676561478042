package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
	"github.com/secmon-lab/storynotes/pkg/usecase"
	"github.com/secmon-lab/storynotes/pkg/utils/errutil"
)

const (
	// SessionCookieName is the cookie carrying the anonymous session token
	SessionCookieName = "sessionId"

	sessionCookieMaxAge = 60 * 60 * 24 * 365

	// Longer cookie values are never issued by this server and are ignored
	maxSessionTokenLength = 128

	// A \uXXXX escape takes six bytes per encoded byte of text at most.
	// The story limit itself is enforced on the decoded text.
	maxRequestBytes = 6*usecase.MaxStoryBytes + 1024
)

// Failure codes of the ingestion endpoint
const (
	codeIdentityFailed    = "identity_failed"
	codeDerivationFailed  = "derivation_failed"
	codePersistenceFailed = "persistence_failed"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}

type ingestRequest struct {
	Story *string `json:"story"`
}

type ingestResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type updateRequest struct {
	RawText  *string `json:"rawText"`
	Rederive bool    `json:"rederive"`
}

type storyResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	RawText   string    `json:"rawText"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type timelineResponse struct {
	StoryID   string                `json:"storyId"`
	Title     string                `json:"title"`
	CreatedAt time.Time             `json:"createdAt"`
	Events    []model.TimelineEvent `json:"events"`
}

func toStoryResponse(s *model.Story) storyResponse {
	return storyResponse{
		ID:        s.ID.String(),
		Title:     s.Title,
		RawText:   s.RawText,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// sessionTokenFromRequest returns the inbound session token, or empty when none was sent
func sessionTokenFromRequest(r *http.Request) model.SessionToken {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" || len(cookie.Value) > maxSessionTokenLength {
		return ""
	}
	return model.SessionToken(cookie.Value)
}

func (s *Server) sessionCookie(token model.SessionToken) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   sessionCookieMaxAge,
	}
}

// ingestFailure maps an ingestion error to its failure code and retry hint.
// Nothing is persisted before the persistence stage, so only that stage is unsafe to retry.
func ingestFailure(err error) (string, bool) {
	switch {
	case goerr.HasTag(err, usecase.ErrTagPersistence):
		return codePersistenceFailed, false
	case goerr.HasTag(err, usecase.ErrTagDerivation):
		return codeDerivationFailed, true
	default:
		return codeIdentityFailed, true
	}
}

func invalidRequest(w http.ResponseWriter, r *http.Request, err error) {
	errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest, errorResponse{Error: "Invalid request"})
}

func (s *Server) ingestStoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFromContext(ctx)

	var req ingestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		invalidRequest(w, r, goerr.Wrap(err, "failed to decode story request"))
		return
	}
	if req.Story == nil {
		invalidRequest(w, r, goerr.New("story is missing"))
		return
	}

	inboundToken := sessionTokenFromRequest(r)

	result, err := s.uc.Story.Ingest(ctx, usecase.IngestInput{
		PrincipalID:  p.ID,
		DisplayName:  p.DisplayName,
		SessionToken: inboundToken,
		RawText:      *req.Story,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidStory):
			invalidRequest(w, r, err)
		case errors.Is(err, usecase.ErrUnauthorized):
			writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		default:
			code, retryable := ingestFailure(err)
			errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError, errorResponse{
				Error:     "Failed to process story",
				Code:      code,
				Retryable: &retryable,
			})
		}
		return
	}

	if result.IssueCookie {
		http.SetCookie(w, s.sessionCookie(result.SessionToken))
	}

	writeJSON(w, r, http.StatusOK, ingestResponse{
		Success: true,
		ID:      result.Story.ID.String(),
	})
}

func (s *Server) listStoriesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFromContext(ctx)

	stories, err := s.uc.Story.List(ctx, p.ID)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch stories"})
		return
	}

	resp := make([]storyResponse, len(stories))
	for i, story := range stories {
		resp[i] = toStoryResponse(story)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) updateStoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFromContext(ctx)
	id := model.StoryID(chi.URLParam(r, "id"))

	var req updateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		invalidRequest(w, r, goerr.Wrap(err, "failed to decode update request"))
		return
	}
	if req.RawText == nil {
		invalidRequest(w, r, goerr.New("rawText is missing"))
		return
	}

	story, err := s.uc.Story.Update(ctx, p.ID, id, *req.RawText, req.Rederive)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidStory):
			invalidRequest(w, r, err)
		case errors.Is(err, usecase.ErrStoryNotFound):
			errutil.HandleHTTP(ctx, w, err, http.StatusNotFound, errorResponse{Error: "Story not found"})
		default:
			errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError, errorResponse{Error: "Failed to update story"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, toStoryResponse(story))
}

func (s *Server) deleteAllStoriesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFromContext(ctx)

	deleted, err := s.uc.Story.DeleteAll(ctx, p.ID)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError, errorResponse{Error: "Failed to delete stories"})
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

func (s *Server) timelineHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFromContext(ctx)

	timelines, err := s.uc.Story.Timeline(ctx, p.ID)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch timeline"})
		return
	}

	resp := make([]timelineResponse, len(timelines))
	for i, tl := range timelines {
		resp[i] = timelineResponse{
			StoryID:   tl.StoryID.String(),
			Title:     tl.Title,
			CreatedAt: tl.CreatedAt,
			Events:    tl.Events,
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}
