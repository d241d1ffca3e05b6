package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/bot-service/internal/entity"
)

const botTable = "bots"

type botRow struct {
	BotID        string    `db:"bot_id"`
	StrategyName string    `db:"strategy_name"`
	Status       int       `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type BotRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewBotRepository(db *sqlx.DB) *BotRepository {
	return &BotRepository{db: db, now: time.Now}
}

func (r *BotRepository) UpsertStatus(ctx context.Context, botID, strategyName string, status entity.BotStatus) error {
	query, args, err := buildUpsertBotStatusQuery(botID, strategyName, status, r.now().UTC())
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *BotRepository) List(ctx context.Context) ([]entity.BotRecord, error) {
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("bot_id", "strategy_name", "status", "created_at", "updated_at").
		From(botTable).
		OrderBy("bot_id asc").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []botRow
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}

	records := make([]entity.BotRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, entity.BotRecord{
			BotID:        row.BotID,
			StrategyName: row.StrategyName,
			Status:       entity.BotStatus(row.Status),
			UpdatedAt:    row.UpdatedAt,
		})
	}

	return records, nil
}

func buildUpsertBotStatusQuery(botID, strategyName string, status entity.BotStatus, now time.Time) (string, []any, error) {
	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(botTable).
		Columns("bot_id", "strategy_name", "status", "created_at", "updated_at").
		Values(botID, strategyName, int(status), now, now).
		Suffix(`ON CONFLICT (bot_id)
DO UPDATE SET
	strategy_name = EXCLUDED.strategy_name,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
}
