package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dinescout/internal/chat"
	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/search"
	"github.com/sells-group/dinescout/internal/store"
)

type searchParams struct {
	Query         string   `validate:"required,max=200"`
	Neighborhoods []string `validate:"max=10,dive,required,max=100"`
	Prices        []string `validate:"max=5,dive,required"`
	MinRating     *float64 `validate:"omitempty,gte=0,lte=5"`
	OpenNow       *bool
	Area          string `validate:"max=100"`
	MaxResults    int    `validate:"omitempty,min=1,max=60"`
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// handleSearch serves GET /api/v1/restaurants/search. Repeated neighborhood
// parameters run one search per neighborhood and merge the results.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	p, err := parseSearchParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.validate.Struct(p); err != nil {
		writeValidationError(w, err)
		return
	}

	req := search.Request{
		Query:      p.Query,
		MaxResults: p.MaxResults,
		Filters: search.Filters{
			Neighborhood: p.Area,
			MinRating:    p.MinRating,
			OpenNow:      p.OpenNow,
		},
	}
	for _, raw := range p.Prices {
		lvl, ok := model.ParsePriceLevel(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown price level", Fields: []string{raw}})
			return
		}
		req.Filters.PriceLevels = append(req.Filters.PriceLevels, lvl)
	}

	if len(p.Neighborhoods) > 1 {
		res, err := s.search.SearchMany(r.Context(), req, p.Neighborhoods)
		if err != nil {
			s.writeSearchError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	if len(p.Neighborhoods) == 1 {
		req.Neighborhood = p.Neighborhoods[0]
	}
	res, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseSearchParams(r *http.Request) (searchParams, error) {
	q := r.URL.Query()
	p := searchParams{
		Query:         strings.TrimSpace(q.Get("q")),
		Neighborhoods: q["neighborhood"],
		Area:          q.Get("area"),
	}
	for _, v := range q["price"] {
		p.Prices = append(p.Prices, strings.Split(v, ",")...)
	}
	if v := q.Get("min_rating"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, eris.New("api: min_rating must be a number")
		}
		p.MinRating = &f
	}
	if v := q.Get("open_now"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, eris.New("api: open_now must be a boolean")
		}
		p.OpenNow = &b
	}
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, eris.New("api: max_results must be an integer")
		}
		p.MaxResults = n
	}
	return p, nil
}

func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
	case errors.Is(err, search.ErrStoreUnavailable):
		zap.L().Error("api: search unavailable", zap.String("request_id", chimiddleware.GetReqID(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "search is temporarily unavailable"})
	default:
		zap.L().Error("api: search failed", zap.String("request_id", chimiddleware.GetReqID(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "search failed"})
	}
}

// handleRestaurant returns one cached record by place ID, fresh or not.
func (s *Server) handleRestaurant(w http.ResponseWriter, r *http.Request) {
	placeID := chi.URLParam(r, "placeID")
	rec, err := s.store.Get(r.Context(), placeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "restaurant not found"})
	case err != nil:
		zap.L().Error("api: restaurant lookup failed",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())), zap.String("place_id", placeID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "lookup failed"})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleChat serves POST /api/v1/chat as a server-sent event stream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "chat is not configured"})
		return
	}

	var req chat.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidationError(w, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	ex, err := s.chat.Serve(r.Context(), w, req)
	if errors.Is(err, chat.ErrNoUserMessage) {
		h.Set("Content-Type", "application/json")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "the last message must come from the user"})
		return
	}
	if err != nil {
		// The stream already carries the error event, or the client is gone.
		zap.L().Info("api: chat ended with error",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		return
	}
	zap.L().Debug("api: chat served",
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		zap.String("exchange_id", ex.ID),
	)
}

func writeValidationError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: "validation failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, fe.Namespace()+": "+fe.Tag())
		}
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}
