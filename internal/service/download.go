package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/repository"
	"github.com/tikuhub/qbank/internal/storage"
)

var (
	ErrRecordNotFound  = errors.New("download record not found")
	ErrForbidden       = errors.New("download record belongs to another user")
	ErrExpired         = errors.New("download link has expired")
	ErrInvalidFileType = errors.New("file type must be question or answer")
	ErrFileNotFound    = errors.New("file not found")
)

var (
	cleanupRecordsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbank_cleanup_records_purged_total",
		Help: "Expired download records removed by cleanup.",
	})
	cleanupFilesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbank_cleanup_files_removed_total",
		Help: "Packet files deleted by cleanup.",
	})
	downloadsServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbank_downloads_served_total",
		Help: "Packet files handed out, by file type.",
	}, []string{"type"})
)

// CleanupResult summarises one cleanup pass.
type CleanupResult struct {
	RecordsPurged   int
	FilesRemoved    int
	UnlinkedCleared int
}

// DownloadFile is a packet file ready to be streamed.
type DownloadFile struct {
	Path     string // absolute path on disk
	Filename string // name shown to the user
	Record   *model.DownloadRecord
}

// DownloadService owns download records and the files under the download
// root. Cleanup is lazy: it runs before reads and before new records are
// created, never on a timer.
type DownloadService struct {
	records repository.DownloadRecordRepository
	jobs    repository.GenerationJobRepository
	files   *storage.Local
	mirror  storage.Storage
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func NewDownloadService(
	records repository.DownloadRecordRepository,
	jobs repository.GenerationJobRepository,
	files *storage.Local,
	mirror storage.Storage,
	ttl time.Duration,
) *DownloadService {
	if mirror == nil {
		mirror = storage.Nop{}
	}
	return &DownloadService{
		records: records,
		jobs:    jobs,
		files:   files,
		mirror:  mirror,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  slog.Default().With("component", "downloads"),
	}
}

// SetClock replaces the time source. Used by tests.
func (s *DownloadService) SetClock(now func() time.Time) {
	s.now = now
}

// Files exposes the download tree the service manages.
func (s *DownloadService) Files() *storage.Local {
	return s.files
}

// CreateEmpty inserts a record with no files yet and creates its
// directory. Paths are filled in later by the generation worker.
func (s *DownloadService) CreateEmpty(ctx context.Context, userID string, questionIDs []int64, isVIP bool) (*model.DownloadRecord, error) {
	return s.CreateWith(ctx, userID, questionIDs, isVIP, nil)
}

// CreateWith is CreateEmpty with inTx run in the insert's transaction.
// The record only becomes visible if inTx succeeds.
func (s *DownloadService) CreateWith(
	ctx context.Context,
	userID string,
	questionIDs []int64,
	isVIP bool,
	inTx func(tx *sqlx.Tx, record *model.DownloadRecord) error,
) (*model.DownloadRecord, error) {
	_, err := s.CleanupExpired(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record := &model.DownloadRecord{
		ID:          uuid.New().String(),
		UserID:      userID,
		QuestionIDs: model.IDList(questionIDs),
		IsVIP:       isVIP,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		UpdatedAt:   now,
	}

	err = s.records.Create(ctx, record, func(tx *sqlx.Tx) error {
		if inTx != nil {
			err := inTx(tx, record)
			if err != nil {
				return err
			}
		}
		return s.files.MkdirAll(record.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create download record: %w", err)
	}

	return record, nil
}

// FillPaths sets the generated paths. A null argument keeps the stored value.
func (s *DownloadService) FillPaths(ctx context.Context, id string, questionPath, answerPath sql.Null[string]) error {
	err := s.records.FillPaths(ctx, id, questionPath, answerPath, s.now())
	if errors.Is(err, repository.ErrDownloadRecordNotFound) {
		return ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to fill record paths: %w", err)
	}
	return nil
}

func (s *DownloadService) ByID(ctx context.Context, id string) (*model.DownloadRecord, error) {
	record, err := s.records.ByID(ctx, id)
	if errors.Is(err, repository.ErrDownloadRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ByIDForUser returns a live record of the user. Records of other users
// and expired records are reported as ErrRecordNotFound.
func (s *DownloadService) ByIDForUser(ctx context.Context, id, userID string) (*model.DownloadRecord, error) {
	_, err := s.CleanupExpired(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID || record.IsExpired(s.now()) {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// ListForUser returns the user's live records, newest first.
func (s *DownloadService) ListForUser(ctx context.Context, userID string) ([]*model.DownloadRecord, error) {
	_, err := s.CleanupExpired(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.records.ByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list download records: %w", err)
	}
	return records, nil
}

// CleanupExpired purges every record with expires_at <= now: files first,
// then the empty directory, then references to the row, then the row.
// Finished job outputs that never had a record are pruned after the same
// retention.
func (s *DownloadService) CleanupExpired(ctx context.Context) (*CleanupResult, error) {
	now := s.now()
	result := &CleanupResult{}

	expired, err := s.records.Expired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load expired records: %w", err)
	}

	ids := make([]string, 0, len(expired))
	for _, record := range expired {
		removed, err := s.removeRecordFiles(ctx, record)
		if err != nil {
			return nil, err
		}
		result.FilesRemoved += removed
		ids = append(ids, record.ID)
	}

	if len(ids) > 0 {
		err = s.records.Purge(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to purge expired records: %w", err)
		}
		result.RecordsPurged = len(ids)
	}

	unlinked, err := s.jobs.UnlinkedOutputs(ctx, now.Add(-s.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to load unlinked outputs: %w", err)
	}
	for _, job := range unlinked {
		for _, p := range []sql.Null[string]{job.OutputQuestionPDFPath, job.OutputAnswerPDFPath} {
			if !p.Valid {
				continue
			}
			err = s.removeFile(ctx, p.V)
			if err != nil {
				return nil, err
			}
			result.FilesRemoved++
		}
		err = s.jobs.ClearOutputs(ctx, job.ID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to clear job outputs: %w", err)
		}
		result.UnlinkedCleared++
	}

	cleanupRecordsPurgedTotal.Add(float64(result.RecordsPurged))
	cleanupFilesRemovedTotal.Add(float64(result.FilesRemoved))
	if result.RecordsPurged > 0 || result.UnlinkedCleared > 0 {
		s.logger.Info("expired downloads cleaned up",
			"records", result.RecordsPurged,
			"files", result.FilesRemoved,
			"unlinked_jobs", result.UnlinkedCleared)
	}

	return result, nil
}

// removeRecordFiles deletes the stored paths plus the conventional file
// names, so a half-finished generation leaves nothing behind.
func (s *DownloadService) removeRecordFiles(ctx context.Context, record *model.DownloadRecord) (int, error) {
	candidates := []string{
		model.RecordFilePath(record.ID, model.FileTypeQuestion),
		model.RecordFilePath(record.ID, model.FileTypeAnswer),
	}
	for _, p := range []sql.Null[string]{record.QuestionPDFPath, record.AnswerPDFPath} {
		if p.Valid && !slices.Contains(candidates, p.V) {
			candidates = append(candidates, p.V)
		}
	}

	removed := 0
	for _, rel := range candidates {
		if !s.files.Exists(rel) {
			continue
		}
		err := s.removeFile(ctx, rel)
		if err != nil {
			return removed, err
		}
		removed++
	}

	dirs := []string{record.ID}
	for _, p := range []sql.Null[string]{record.QuestionPDFPath, record.AnswerPDFPath} {
		if p.Valid {
			if dir := path.Dir(p.V); dir != "." && !slices.Contains(dirs, dir) {
				dirs = append(dirs, dir)
			}
		}
	}
	for _, dir := range dirs {
		err := s.files.RemoveDirIfEmpty(dir)
		if err != nil {
			return removed, fmt.Errorf("failed to remove directory %s: %w", dir, err)
		}
	}

	return removed, nil
}

func (s *DownloadService) removeFile(ctx context.Context, rel string) error {
	err := s.files.Remove(rel)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}

	// Mirror deletes are best effort.
	err = s.mirror.Delete(ctx, rel)
	if err != nil {
		s.logger.Warn("failed to delete mirrored file", "path", rel, "error", err)
	}
	return nil
}

// FileForDownload resolves a packet file for its owner.
func (s *DownloadService) FileForDownload(ctx context.Context, id, fileType, userID string) (*DownloadFile, error) {
	_, err := s.CleanupExpired(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.UserID != userID {
		return nil, ErrForbidden
	}

	if record.IsExpired(s.now()) {
		return nil, ErrExpired
	}

	rel, ok := record.PathFor(fileType)
	if !ok {
		return nil, ErrInvalidFileType
	}
	if !rel.Valid {
		return nil, ErrFileNotFound
	}

	if !s.files.Exists(rel.V) {
		_, err = s.CleanupExpired(ctx)
		if err != nil {
			s.logger.Warn("cleanup after missing file failed", "record_id", id, "error", err)
		}
		return nil, ErrFileNotFound
	}

	abs, err := s.files.Path(rel.V)
	if err != nil {
		return nil, ErrFileNotFound
	}

	err = s.records.Touch(ctx, record.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to touch record: %w", err)
	}

	downloadsServedTotal.WithLabelValues(fileType).Inc()

	return &DownloadFile{
		Path:     abs,
		Filename: path.Base(rel.V),
		Record:   record,
	}, nil
}
