package settings

import (
	"context"
	"database/sql"
	"time"

	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// settingsRowID is the primary key of the single settings row.
const settingsRowID = 1

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Retrieve returns the global settings row. The initial migration seeds it,
// so a missing row means the database is in a bad state and startup should
// abort rather than run with made-up values.
func (svc *Service) Retrieve(ctx context.Context) (*models.Setting, error) {
	setting := &models.Setting{}
	err := svc.db.NewSelect().
		Model(setting).
		Where("st.id = ?", settingsRowID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("settings row is missing")
		}
		return nil, errors.WithStack(err)
	}

	return setting, nil
}

// Update overwrites the provided fields on the settings row.
func (svc *Service) Update(ctx context.Context, setting *models.Setting) (*models.Setting, error) {
	setting.ID = settingsRowID
	setting.UpdatedAt = time.Now()

	_, err := svc.db.NewUpdate().
		Model(setting).
		Column("updated_at", "fetch_interval", "min_refetch_delay", "retry_backoff_base", "solver_url").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return setting, nil
}
