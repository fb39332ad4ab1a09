package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"subsnap/internal/pipeline"
	"subsnap/internal/subscription/models"
	"subsnap/internal/subscription/store"
	"subsnap/pkg/platform/httputil"
	"subsnap/pkg/platform/sentinel"
)

// RunService defines the pipeline operations exposed over HTTP.
type RunService interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunResult, error)
	Latest(ctx context.Context) (store.RunRecord, error)
}

// Handler is the thin HTTP layer over the pipeline service.
type Handler struct {
	runs   RunService
	logger *slog.Logger
	clock  func() time.Time
}

func NewHandler(runs RunService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runs: runs, logger: logger, clock: time.Now}
}

// TriggerRunRequest is the body of POST /v1/runs. Dates are YYYY-MM-DD; as_of
// defaults to the last complete UTC day.
type TriggerRunRequest struct {
	AsOf  string `json:"as_of"`
	From  string `json:"from"`
	RunID string `json:"run_id"`
}

func (r TriggerRunRequest) toRunRequest(now time.Time) (pipeline.RunRequest, error) {
	req := pipeline.RunRequest{RunID: r.RunID}
	if r.AsOf == "" {
		req.AsOf = models.Day(now).AddDate(0, 0, -1)
	} else {
		asOf, err := models.ParseDate(r.AsOf)
		if err != nil {
			return req, &httputil.BadRequestError{Msg: "as_of must be YYYY-MM-DD"}
		}
		req.AsOf = asOf
	}
	if r.From != "" {
		from, err := models.ParseDate(r.From)
		if err != nil {
			return req, &httputil.BadRequestError{Msg: "from must be YYYY-MM-DD"}
		}
		if from.After(req.AsOf) {
			return req, &httputil.BadRequestError{Msg: "from must not be after as_of"}
		}
		req.From = from
	}
	return req, nil
}

// RunResponse reports a finished run.
type RunResponse struct {
	pipeline.RunSummary
	Report string `json:"report,omitempty"`
}

func toRunResponse(res *pipeline.RunResult) RunResponse {
	resp := RunResponse{RunSummary: res.Summary()}
	if res.Report != nil {
		resp.Report = res.Report.Summary()
	}
	return resp
}

// HandleTrigger runs the pipeline synchronously. 200 means the run passed,
// 422 that it loaded but failed validation or lost accounts.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body TriggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, &httputil.BadRequestError{Msg: "invalid JSON body"})
		return
	}
	req, err := body.toRunRequest(h.clock())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.runs.Run(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "triggered run failed", "error", err)
		if res == nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, toRunResponse(res))
		return
	}

	status := http.StatusOK
	if !res.Success() {
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteJSON(w, status, toRunResponse(res))
}

// HandleLatest returns the most recently recorded run.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.runs.Latest(r.Context())
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			h.logger.ErrorContext(r.Context(), "failed to read latest run", "error", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}
