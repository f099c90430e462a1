package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/todmy/embedscope/internal/auth"
	"github.com/todmy/embedscope/internal/dataset"
	"github.com/todmy/embedscope/internal/explorer"
	"github.com/todmy/embedscope/internal/neighbors"
	"github.com/todmy/embedscope/internal/optimizer"
	"github.com/todmy/embedscope/internal/similarity"
	"github.com/todmy/embedscope/internal/storage"
	"github.com/todmy/embedscope/pkg/models"
)

var (
	errStorageDisabled = errors.New("dataset storage is not configured")
	errInvalidBody     = errors.New("invalid request body")
	errBodyTooLarge    = errors.New("request body too large")
)

// CreateSessionRequest represents a request to project a dataset
type CreateSessionRequest struct {
	Data      *dataset.Set `json:"data,omitempty"`
	DatasetID string       `json:"dataset_id,omitempty"`
	Engine    string       `json:"engine,omitempty"`
}

// FocusRequest represents a request to focus on a point
type FocusRequest struct {
	Index         int      `json:"index"`
	NeighbourFrac *float64 `json:"neighbour_frac,omitempty"` // nil selects neighbors.DefaultFraction
}

// CreateDatasetRequest represents a request to store a dataset
type CreateDatasetRequest struct {
	Name string       `json:"name"`
	Data *dataset.Set `json:"data"`
}

// SessionResponse represents the state of a session
type SessionResponse struct {
	ID           string               `json:"id"`
	Engine       string               `json:"engine"`
	Iterations   int                  `json:"iterations"`
	Reason       string               `json:"reason"`
	Cost         float64              `json:"cost"`
	Focused      *int                 `json:"focused,omitempty"`
	OldFocusedID string               `json:"old_focused_id,omitempty"`
	Neighbors    []int                `json:"neighbors,omitempty"`
	Points       []models.RenderPoint `json:"points"`
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"storage":  s.opts.Datasets != nil,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		respondErr(w, err)
		return
	}

	config := s.opts.Session
	if req.Engine != "" {
		engine, err := optimizer.ParseEngine(req.Engine)
		if err != nil {
			respondErr(w, err)
			return
		}
		config.Engine = engine
	}

	data := req.Data
	if data == nil {
		if req.DatasetID == "" {
			respondError(w, http.StatusBadRequest, "data or dataset_id is required")
			return
		}
		loaded, err := s.loadDataset(r, req.DatasetID)
		if err != nil {
			respondErr(w, err)
			return
		}
		data = loaded
	}

	session, err := explorer.New(data, config)
	if err != nil {
		respondErr(w, err)
		return
	}
	if _, err := session.Run(); err != nil {
		respondErr(w, err)
		return
	}

	id := s.sessions.Add(session)
	log.Info().
		Str("session", id.String()).
		Str("engine", session.Engine().String()).
		Int("points", data.Len()).
		Msg("session created")

	respondJSON(w, http.StatusCreated, sessionResponse(id, session, false))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, session, ok := s.session(w, r)
	if !ok {
		return
	}
	normalize := r.URL.Query().Get("normalize") == "true"
	respondJSON(w, http.StatusOK, sessionResponse(id, session, normalize))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := s.sessions.Remove(id); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	id, session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req FocusRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		respondErr(w, err)
		return
	}
	frac := neighbors.DefaultFraction
	if req.NeighbourFrac != nil {
		frac = *req.NeighbourFrac
	}
	if frac < 0 || frac > 1 {
		respondError(w, http.StatusBadRequest, "neighbour_frac must be in [0, 1]")
		return
	}

	if _, err := session.Focus(req.Index, frac); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(id, session, false))
}

func (s *Server) handleClearFocus(w http.ResponseWriter, r *http.Request) {
	id, session, ok := s.session(w, r)
	if !ok {
		return
	}
	session.ClearFocus()
	respondJSON(w, http.StatusOK, sessionResponse(id, session, false))
}

func (s *Server) handleNarrow(w http.ResponseWriter, r *http.Request) {
	id, session, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := session.Narrow(); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(id, session, false))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, session, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := session.Reset(); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(id, session, false))
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	if s.opts.Datasets == nil {
		respondErr(w, errStorageDisabled)
		return
	}

	var req CreateDatasetRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.Name == "" || req.Data == nil {
		respondError(w, http.StatusBadRequest, "name and data are required")
		return
	}

	ds, err := s.opts.Datasets.Create(r.Context(), req.Name, req.Data)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ds)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	if s.opts.Datasets == nil {
		respondErr(w, errStorageDisabled)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "datasetID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid dataset id")
		return
	}

	ds, err := s.opts.Datasets.GetByID(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ds)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if s.opts.Datasets == nil {
		respondErr(w, errStorageDisabled)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "datasetID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid dataset id")
		return
	}

	if err := s.opts.Datasets.Delete(r.Context(), id); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadDataset(r *http.Request, rawID string) (*dataset.Set, error) {
	if s.opts.Datasets == nil {
		return nil, errStorageDisabled
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, storage.ErrDatasetNotFound
	}
	return s.opts.Datasets.Load(r.Context(), id)
}

// session resolves the session named in the URL, writing an error response when it fails
func (s *Server) session(w http.ResponseWriter, r *http.Request) (uuid.UUID, *explorer.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, nil, false
	}
	session, err := s.sessions.Get(id)
	if err != nil {
		respondErr(w, err)
		return uuid.Nil, nil, false
	}
	return id, session, true
}

func sessionResponse(id uuid.UUID, session *explorer.Session, normalize bool) SessionResponse {
	snap := session.Snapshot()
	points := snap.Points

	if normalize && len(points) > 0 {
		coords := make([][]float64, len(points))
		for i, p := range points {
			coords[i] = []float64{p.X, p.Y}
		}
		for i, c := range optimizer.Normalize(coords) {
			points[i].X, points[i].Y = c[0], c[1]
		}
	}

	resp := SessionResponse{
		ID:           id.String(),
		Engine:       snap.Engine.String(),
		Iterations:   snap.Result.Iterations,
		Reason:       snap.Result.Reason.String(),
		Cost:         snap.Result.Cost,
		OldFocusedID: snap.OldFocusedID,
		Neighbors:    snap.Neighbors,
		Points:       points,
	}
	if snap.Focused >= 0 {
		focused := snap.Focused
		resp.Focused = &focused
	}
	return resp
}

// decodeJSON decodes at most limit bytes of the request body into v. Dataset
// validation errors are returned unchanged, oversized bodies as
// errBodyTooLarge and anything else as errInvalidBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, maxErr.Limit)
		case errors.Is(err, similarity.ErrInvalidInput):
			return err
		default:
			return fmt.Errorf("%w: %v", errInvalidBody, err)
		}
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, similarity.ErrInvalidInput),
		errors.Is(err, optimizer.ErrUnknownEngine),
		errors.Is(err, neighbors.ErrIndexOutOfRange),
		errors.Is(err, errInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, explorer.ErrEmptyNeighborhood),
		errors.Is(err, explorer.ErrNoRun):
		return http.StatusConflict
	case errors.Is(err, storage.ErrDatasetNotFound),
		errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errStorageDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}
