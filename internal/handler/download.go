package handler

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"

	"github.com/tikuhub/qbank/internal/ctxkeys"
	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/service"
)

type DownloadHandler struct {
	downloadService *service.DownloadService
}

func NewDownloadHandler(downloadService *service.DownloadService) *DownloadHandler {
	return &DownloadHandler{
		downloadService: downloadService,
	}
}

func (h *DownloadHandler) List(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	records, err := h.downloadService.ListForUser(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to list downloads", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to load downloads")
		return
	}

	downloads := make([]model.DownloadRecordResponse, 0, len(records))
	for _, record := range records {
		downloads = append(downloads, record.Response())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"downloads": downloads,
	})
}

func (h *DownloadHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	id := r.PathValue("id")

	record, err := h.downloadService.ByIDForUser(r.Context(), id, user.ID)
	if errors.Is(err, service.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "download record not found")
		return
	}
	if err != nil {
		slog.Error("failed to get download", "error", err, "user_id", user.ID, "record_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load download")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"download": record.Response(),
	})
}

// File streams a generated packet as an attachment.
func (h *DownloadHandler) File(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	id := r.PathValue("id")
	fileType := r.PathValue("type")

	file, err := h.downloadService.FileForDownload(r.Context(), id, fileType, user.ID)
	if err != nil {
		status, message := downloadErrorStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("failed to resolve download file", "error", err, "user_id", user.ID, "record_id", id)
		}
		writeError(w, status, message)
		return
	}

	f, err := os.Open(file.Path)
	if err != nil {
		slog.Warn("download file vanished", "error", err, "record_id", id, "type", fileType)
		writeError(w, http.StatusNotFound, service.ErrFileNotFound.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		slog.Error("failed to stat download file", "error", err, "record_id", id)
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": file.Filename,
	}))
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, file.Filename, info.ModTime(), f)
}

func downloadErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		return http.StatusNotFound, "download record not found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "no access to this download"
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone, "download link has expired"
	case errors.Is(err, service.ErrInvalidFileType):
		return http.StatusBadRequest, "file type must be question or answer"
	case errors.Is(err, service.ErrFileNotFound):
		return http.StatusNotFound, "file not found"
	default:
		return http.StatusInternalServerError, "failed to download file"
	}
}
