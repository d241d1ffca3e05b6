package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/guregu/null/v6"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/bot-service/internal/entity"
)

const orderResultTable = "order_results"

var orderResultColumns = []string{
	"uniq_id",
	"strategy_name",
	"bot_id",
	"exchange",
	"client_order_id",
	"order_id",
	"inst_id",
	"params",
	"status",
	"message",
	"raw_response",
	"created_at",
	"updated_at",
}

type orderResultRow struct {
	UniqID        string      `db:"uniq_id"`
	StrategyName  string      `db:"strategy_name"`
	BotID         string      `db:"bot_id"`
	Exchange      string      `db:"exchange"`
	ClientOrderID null.String `db:"client_order_id"`
	OrderID       null.String `db:"order_id"`
	InstrumentID  string      `db:"inst_id"`
	Params        string      `db:"params"`
	Status        int         `db:"status"`
	Message       null.String `db:"message"`
	RawResponse   null.String `db:"raw_response"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func (r orderResultRow) toEntity() (*entity.OrderResult, error) {
	var params entity.OrderParams
	if err := json.Unmarshal([]byte(r.Params), &params); err != nil {
		return nil, err
	}

	result := &entity.OrderResult{
		UniqID:        r.UniqID,
		StrategyName:  r.StrategyName,
		BotID:         r.BotID,
		Exchange:      entity.ExchangeName(r.Exchange),
		ClientOrderID: r.ClientOrderID.String,
		OrderID:       r.OrderID.String,
		Params:        params,
		Status:        entity.OrderStatus(r.Status),
		Message:       r.Message.String,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.RawResponse.Valid {
		result.RawResponse = json.RawMessage(r.RawResponse.String)
	}

	return result, nil
}

type OrderResultRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewOrderResultRepository(db *sqlx.DB) *OrderResultRepository {
	return &OrderResultRepository{db: db, now: time.Now}
}

// Save upserts by uniq_id so a redelivered event never produces a second row.
func (r *OrderResultRepository) Save(ctx context.Context, result entity.OrderResult) error {
	query, args, err := buildSaveOrderResultQuery(result, r.now().UTC())
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *OrderResultRepository) Query(ctx context.Context, uniqID string) (*entity.OrderResult, error) {
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(orderResultColumns...).
		From(orderResultTable).
		Where(sq.Eq{"uniq_id": uniqID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row orderResultRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrOrderResultNotFound
		}
		return nil, err
	}

	return row.toEntity()
}

func buildSaveOrderResultQuery(result entity.OrderResult, now time.Time) (string, []any, error) {
	params, err := json.Marshal(result.Params)
	if err != nil {
		return "", nil, err
	}

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	rawResponse := null.String{}
	if len(result.RawResponse) > 0 {
		rawResponse = null.StringFrom(string(result.RawResponse))
	}

	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(orderResultTable).
		Columns(orderResultColumns...).
		Values(
			result.UniqID,
			result.StrategyName,
			result.BotID,
			string(result.Exchange),
			null.NewString(result.ClientOrderID, result.ClientOrderID != ""),
			null.NewString(result.OrderID, result.OrderID != ""),
			result.Params.InstrumentID,
			string(params),
			int(result.Status),
			null.NewString(result.Message, result.Message != ""),
			rawResponse,
			createdAt,
			now,
		).
		Suffix(`ON CONFLICT (uniq_id)
DO UPDATE SET
	order_id = EXCLUDED.order_id,
	params = EXCLUDED.params,
	status = EXCLUDED.status,
	message = EXCLUDED.message,
	raw_response = EXCLUDED.raw_response,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
}
