package display

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jamesruggles/carbonara/internal/database"
)

// Store is the part of the database the display layer reads.
type Store interface {
	GetAssessmentData(ctx context.Context, projectID *int64, toolName string) ([]database.AssessmentData, error)
	GetAssessmentDataByID(ctx context.Context, id int64) (*database.AssessmentData, error)
}

type Summary struct {
	TotalRecords int            `json:"totalRecords"`
	ToolCount    int            `json:"toolCount"`
	ByTool       map[string]int `json:"byTool"`
	LatestAt     *time.Time     `json:"latestAt,omitempty"`
}

// Service is the listing boundary used by the CLI and HTTP API. Storage
// failures are logged and reported as empty results.
type Service struct {
	store   Store
	builder *Builder
	log     *zap.Logger
}

func NewService(store Store, builder *Builder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, builder: builder, log: log}
}

func (s *Service) Groups(ctx context.Context, projectID *int64) []DataGroup {
	records, err := s.store.GetAssessmentData(ctx, projectID, "")
	if err != nil {
		s.log.Warn("loading assessment data failed", zap.Error(err))
		return []DataGroup{}
	}
	return s.builder.CreateGroupedItems(records)
}

func (s *Service) Details(ctx context.Context, id int64) []DataDetail {
	record, err := s.store.GetAssessmentDataByID(ctx, id)
	if err != nil {
		s.log.Warn("loading assessment record failed", zap.Int64("id", id), zap.Error(err))
		return []DataDetail{}
	}
	if record == nil {
		return []DataDetail{}
	}
	return s.builder.CreateDataDetails(*record)
}

func (s *Service) Summary(ctx context.Context, projectID *int64) Summary {
	sum := Summary{ByTool: map[string]int{}}
	records, err := s.store.GetAssessmentData(ctx, projectID, "")
	if err != nil {
		s.log.Warn("loading assessment data failed", zap.Error(err))
		return sum
	}
	for _, r := range records {
		sum.ByTool[r.ToolName]++
		if sum.LatestAt == nil || r.Timestamp.After(*sum.LatestAt) {
			ts := r.Timestamp
			sum.LatestAt = &ts
		}
	}
	sum.TotalRecords = len(records)
	sum.ToolCount = len(sum.ByTool)
	return sum
}
