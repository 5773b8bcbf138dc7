package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fatchip/computop-checkout/internal/domain/models"
)

// APILogRepository implements ports.APILogStore
type APILogRepository struct {
	pool *pgxpool.Pool
}

// NewAPILogRepository creates a new API log repository
func NewAPILogRepository(pool *pgxpool.Pool) *APILogRepository {
	return &APILogRepository{pool: pool}
}

// LogAPICall inserts one audit row. Request and response parameter maps are
// stored as jsonb so support can search them without schema churn.
func (r *APILogRepository) LogAPICall(ctx context.Context, entry *models.APICallLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	reqJSON, err := json.Marshal(entry.Request)
	if err != nil {
		return fmt.Errorf("marshal request params: %w", err)
	}
	respJSON, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("marshal response params: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO api_logs (id, request_type, pay_id, trans_id, x_id, request, response)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.RequestType, nullText(entry.PayID), nullText(entry.TransID),
		nullText(entry.XID), reqJSON, respJSON,
	)
	if err != nil {
		return fmt.Errorf("insert api log: %w", err)
	}
	return nil
}
