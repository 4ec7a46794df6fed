package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tikuhub/qbank/internal/ctxkeys"
	"github.com/tikuhub/qbank/internal/service"
)

type QuestionHandler struct {
	requestService *service.DownloadRequestService
}

func NewQuestionHandler(requestService *service.DownloadRequestService) *QuestionHandler {
	return &QuestionHandler{
		requestService: requestService,
	}
}

// DownloadGroup queues a packet for up to 15 questions.
func (h *QuestionHandler) DownloadGroup(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var in service.DownloadGroupInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.UserID = user.ID

	result, err := h.requestService.Request(r.Context(), in)
	if writeValidationError(w, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrQuestionsNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, service.ErrOrderNotFound):
		writeError(w, http.StatusBadRequest, "download order not found, please pay again")
		return
	case errors.Is(err, service.ErrOrderNotPaid):
		writeError(w, http.StatusBadRequest, "order is not paid yet")
		return
	case err != nil:
		slog.Error("failed to request download", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to create download")
		return
	}

	if result.NeedPayment {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"need_payment": true,
		})
		return
	}

	body := map[string]any{
		"success":      true,
		"need_payment": false,
		"download":     result.Record.Response(),
	}
	if result.Job != nil {
		body["job_id"] = result.Job.ID
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *QuestionHandler) Downloaded(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	kp, err := strconv.ParseInt(r.URL.Query().Get("knowledge_point_id"), 10, 64)
	if err != nil || kp <= 0 {
		writeError(w, http.StatusBadRequest, "knowledge_point_id is required")
		return
	}

	ids, err := h.requestService.Downloaded(r.Context(), user.ID, kp)
	if err != nil {
		slog.Error("failed to list downloaded questions", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to load downloaded questions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"question_ids": ids,
	})
}

func (h *QuestionHandler) ResetDownloaded(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var in struct {
		KnowledgePointID int64 `json:"knowledge_point_id"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.KnowledgePointID <= 0 {
		writeError(w, http.StatusBadRequest, "knowledge_point_id is required")
		return
	}

	n, err := h.requestService.ResetDownloaded(r.Context(), user.ID, in.KnowledgePointID)
	if err != nil {
		slog.Error("failed to reset downloaded questions", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to reset downloaded questions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "reset",
		"removed": n,
	})
}
