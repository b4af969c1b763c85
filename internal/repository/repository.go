package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

var ErrDuplicateRun = errors.New("run already recorded")

type Filter struct {
	Limit       int
	Offset      int
	Since       *time.Time
	MinSeverity *models.Severity // >= this level (e.g., MEDIUM includes MEDIUM and HIGH)
	Area        string
}

// RunRepository stores one summary row per analysis run.
type RunRepository interface {
	Add(ctx context.Context, r *models.RunSummary) error
	GetByID(ctx context.Context, id string) (*models.RunSummary, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListRuns(ctx context.Context, opts Filter) ([]models.RunSummary, error)
}
