package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/repository"
)

var (
	namingCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbank_naming_cache_hits_total",
		Help: "Naming metadata lookups served from cache.",
	})
	namingCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbank_naming_cache_misses_total",
		Help: "Naming metadata lookups that went to the database.",
	})
)

const namingCacheSize = 1024

// NamingMeta holds the parts of a human-readable packet file name.
type NamingMeta struct {
	PhoneTail        string
	GradeCode        string
	SubjectCode      string
	KnowledgePointID int64
}

// BaseName renders {phoneTail}_{grade}_{subject}_{kp}_{YYYYMMDD_HHMMSS}.
func (m NamingMeta) BaseName(at time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%d_%s",
		m.PhoneTail, m.GradeCode, m.SubjectCode, m.KnowledgePointID, at.Format("20060102_150405"))
}

// NamingService resolves naming metadata with a small expiring cache.
// Only the last four phone digits are ever kept.
type NamingService struct {
	users   repository.UserRepository
	catalog repository.CatalogRepository
	cache   *expirable.LRU[string, string]
}

func NewNamingService(users repository.UserRepository, catalog repository.CatalogRepository, ttl time.Duration) *NamingService {
	return &NamingService{
		users:   users,
		catalog: catalog,
		cache:   expirable.NewLRU[string, string](namingCacheSize, nil, ttl),
	}
}

func (s *NamingService) Meta(ctx context.Context, job *model.GenerationJob) (NamingMeta, error) {
	tail, err := s.cached("user:"+job.UserID, func() (string, error) {
		user, err := s.users.ByID(ctx, job.UserID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return (*model.User)(nil).PhoneTail(), nil
		}
		if err != nil {
			return "", err
		}
		return user.PhoneTail(), nil
	})
	if err != nil {
		return NamingMeta{}, fmt.Errorf("failed to load user for naming: %w", err)
	}

	grade, err := s.cached("grade:"+strconv.FormatInt(job.GradeID, 10), func() (string, error) {
		g, err := s.catalog.GradeByID(ctx, job.GradeID)
		if errors.Is(err, repository.ErrGradeNotFound) {
			return "grade", nil
		}
		if err != nil {
			return "", err
		}
		return g.Code, nil
	})
	if err != nil {
		return NamingMeta{}, fmt.Errorf("failed to load grade for naming: %w", err)
	}

	subject, err := s.cached("subject:"+strconv.FormatInt(job.SubjectID, 10), func() (string, error) {
		sub, err := s.catalog.SubjectByID(ctx, job.SubjectID)
		if errors.Is(err, repository.ErrSubjectNotFound) {
			return "subject", nil
		}
		if err != nil {
			return "", err
		}
		return sub.Code, nil
	})
	if err != nil {
		return NamingMeta{}, fmt.Errorf("failed to load subject for naming: %w", err)
	}

	return NamingMeta{
		PhoneTail:        tail,
		GradeCode:        grade,
		SubjectCode:      subject,
		KnowledgePointID: job.KnowledgePointID,
	}, nil
}

func (s *NamingService) cached(key string, load func() (string, error)) (string, error) {
	if v, ok := s.cache.Get(key); ok {
		namingCacheHitsTotal.Inc()
		return v, nil
	}
	namingCacheMissesTotal.Inc()

	v, err := load()
	if err != nil {
		return "", err
	}
	s.cache.Add(key, v)
	return v, nil
}
