package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/you-humble/audioclip/internal/domain"

	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 10

type Usecase interface {
	Submit(ctx context.Context, req domain.SubmitRequest) (string, error)
	Status(ctx context.Context, jobID string) (domain.StatusResponse, error)
	Artifact(ctx context.Context, jobID string) (domain.DownloadResult, error)
	Cancel(ctx context.Context, jobID string) (domain.StatusResponse, error)
}

type handler struct {
	usecase Usecase
}

func NewHandler(uc Usecase) *handler {
	return &handler{usecase: uc}
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "submit")

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.SubmitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.Warn("decode request", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "request body must be a JSON object with source_locator, start and end")
		return
	}

	jobID, err := h.usecase.Submit(r.Context(), req)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{
				Error:   string(domain.KindValidation),
				Message: verr.Error(),
				Fields:  verr.Fields,
			})
			return
		}
		logger.Error("Submit usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cannot create job")
		return
	}

	w.Header().Set("Location", "/jobs/"+jobID)
	writeJSON(w, http.StatusAccepted, domain.SubmitResponse{JobID: jobID})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "status")
	jobID := r.PathValue("id")

	resp, err := h.usecase.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		logger.Error("Status usecase", slog.String("job_id", jobID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	if resp.State.Terminal() {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *handler) artifact(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "artifact")
	jobID := r.PathValue("id")

	result, err := h.usecase.Artifact(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, domain.ErrArtifactExpired), errors.Is(err, domain.ErrArtifactNotFound):
			writeError(w, http.StatusNotFound, "artifact expired or no longer available")
		case errors.Is(err, domain.ErrJobFailed):
			writeError(w, http.StatusConflict, "job failed")
		case errors.Is(err, domain.ErrJobCancelled):
			writeError(w, http.StatusConflict, "job was cancelled")
		case errors.Is(err, domain.ErrNotReady):
			writeError(w, http.StatusTooEarly, "artifact is not ready yet")
		default:
			logger.Error("Artifact usecase", slog.String("job_id", jobID), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "cannot get artifact")
		}
		return
	}

	if result.RedirectURL != "" {
		http.Redirect(w, r, result.RedirectURL, http.StatusTemporaryRedirect)
		return
	}
	defer result.Content.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	if result.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, result.Content); err != nil {
		logger.Error("artifact: send file",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "cancel")
	jobID := r.PathValue("id")

	resp, err := h.usecase.Cancel(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrTransitionConflict):
			writeError(w, http.StatusConflict, "job can no longer be cancelled")
		default:
			logger.Error("Cancel usecase", slog.String("job_id", jobID), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(r *http.Request, name string) *slog.Logger {
	return slog.With(
		slog.String("request_id", uuid.NewString()),
		slog.String("handler", name),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	resp := domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
