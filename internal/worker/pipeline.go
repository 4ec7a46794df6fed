package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tikuhub/qbank/internal/compose"
	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/pdf"
	"github.com/tikuhub/qbank/internal/repository"
	"github.com/tikuhub/qbank/internal/service"
	"github.com/tikuhub/qbank/internal/storage"
)

// UnlinkedDir holds outputs of jobs whose record no longer exists.
const UnlinkedDir = "_unlinked"

// PacketPipeline loads a job's question images, lays them out on pages
// and writes the question PDF, plus the answer PDF for VIP jobs.
type PacketPipeline struct {
	questions  repository.QuestionRepository
	naming     *service.NamingService
	compositor *compose.Compositor
	assembler  *pdf.Assembler
	files      *storage.Local
	mirror     storage.Storage
	uploadDir  string
	now        func() time.Time
	logger     *slog.Logger
}

func NewPacketPipeline(
	questions repository.QuestionRepository,
	naming *service.NamingService,
	compositor *compose.Compositor,
	assembler *pdf.Assembler,
	files *storage.Local,
	mirror storage.Storage,
	uploadDir string,
) *PacketPipeline {
	if mirror == nil {
		mirror = storage.Nop{}
	}
	return &PacketPipeline{
		questions:  questions,
		naming:     naming,
		compositor: compositor,
		assembler:  assembler,
		files:      files,
		mirror:     mirror,
		uploadDir:  uploadDir,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default().With("component", "pipeline"),
	}
}

func (p *PacketPipeline) Run(ctx context.Context, job *model.GenerationJob) (model.JobOutput, error) {
	var out model.JobOutput

	questions, err := p.questions.ByIDs(ctx, job.QuestionIDs)
	if err != nil {
		return out, fmt.Errorf("failed to load questions: %w", err)
	}

	questionRel, answerRel, err := p.targets(ctx, job)
	if err != nil {
		return out, err
	}

	err = p.build(ctx, job, p.imagePaths(questions, false), questionRel, model.FileTypeQuestion)
	if err != nil {
		return out, err
	}
	out.QuestionPDFPath = sql.Null[string]{V: questionRel, Valid: true}

	if job.IsVIP {
		answers := p.imagePaths(questions, true)
		if len(answers) > 0 {
			err = p.build(ctx, job, answers, answerRel, model.FileTypeAnswer)
			if err != nil {
				return out, err
			}
			out.AnswerPDFPath = sql.Null[string]{V: answerRel, Valid: true}
		}
	}

	p.mirrorOutputs(ctx, out)
	return out, nil
}

// targets picks output paths: the record's own directory when the job
// still has a record, otherwise human-readable names under UnlinkedDir.
func (p *PacketPipeline) targets(ctx context.Context, job *model.GenerationJob) (string, string, error) {
	if job.DownloadRecordID.Valid {
		id := job.DownloadRecordID.V
		return model.RecordFilePath(id, model.FileTypeQuestion), model.RecordFilePath(id, model.FileTypeAnswer), nil
	}

	meta, err := p.naming.Meta(ctx, job)
	if err != nil {
		return "", "", err
	}
	base := meta.BaseName(p.now())
	return path.Join(UnlinkedDir, base+".pdf"), path.Join(UnlinkedDir, base+"_A.pdf"), nil
}

// imagePaths resolves stored image URLs against the upload dir, keeping
// question order. Questions without an image are left out.
func (p *PacketPipeline) imagePaths(questions []*model.Question, answer bool) []string {
	paths := make([]string, 0, len(questions))
	for _, q := range questions {
		url := q.ImageURL(answer)
		if !url.Valid || url.V == "" {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(url.V, "/"), "uploads/")
		clean := filepath.Clean(filepath.FromSlash(rel))
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
			p.logger.Warn("ignoring image outside upload dir", "question_id", q.ID, "url", url.V)
			continue
		}
		paths = append(paths, filepath.Join(p.uploadDir, clean))
	}
	return paths
}

func (p *PacketPipeline) build(ctx context.Context, job *model.GenerationJob, sources []string, rel, fileType string) error {
	prefix := fmt.Sprintf("%s_%s_%d", job.ID, fileType, job.Attempts)

	composed, err := p.compositor.Compose(ctx, sources, prefix)
	if err != nil {
		return fmt.Errorf("failed to compose %s pages: %w", fileType, err)
	}
	defer composed.Cleanup()

	abs, err := p.files.Path(rel)
	if err != nil {
		return fmt.Errorf("invalid %s output path: %w", fileType, err)
	}

	result, err := p.assembler.Assemble(ctx, composed.Pages, abs)
	if err != nil {
		return fmt.Errorf("failed to assemble %s pdf: %w", fileType, err)
	}

	p.logger.Debug("packet file written",
		"job_id", job.ID,
		"type", fileType,
		"path", rel,
		"pages", result.PageCount,
		"skipped_images", len(composed.Warnings),
		"skipped_pages", len(result.Warnings))
	return nil
}

func (p *PacketPipeline) mirrorOutputs(ctx context.Context, out model.JobOutput) {
	for _, rel := range []sql.Null[string]{out.QuestionPDFPath, out.AnswerPDFPath} {
		if !rel.Valid {
			continue
		}
		err := p.mirrorOne(ctx, rel.V)
		if err != nil {
			p.logger.Warn("failed to mirror packet file", "path", rel.V, "error", err)
		}
	}
}

func (p *PacketPipeline) mirrorOne(ctx context.Context, rel string) error {
	f, err := p.files.Open(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.mirror.Save(ctx, rel, f)
}

// Interface guard
var _ Pipeline = (*PacketPipeline)(nil)
