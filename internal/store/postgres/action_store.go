package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nouslabs/nous/internal/domain"
)

// ActionStore implements domain.ActionStore on PostgreSQL. Every update
// carries a status guard in its WHERE clause so a redelivered or out-of-order
// write cannot move an action backward.
type ActionStore struct {
	client *Client
}

var _ domain.ActionStore = (*ActionStore)(nil)

// NewActionStore creates an ActionStore backed by the given client.
func NewActionStore(client *Client) *ActionStore {
	return &ActionStore{client: client}
}

const actionColumns = `id, symbol, name, kind, status, execute_time,
	pred_spread, analysis, exec_spread, associated_action, execution_info,
	followup_post_id, created_at`

func (s *ActionStore) Create(ctx context.Context, a domain.Action) error {
	pred, err := json.Marshal(a.PredSpread)
	if err != nil {
		return fmt.Errorf("postgres: marshal pred_spread: %w", err)
	}

	_, err = s.client.pool.Exec(ctx, `
		INSERT INTO actions (id, symbol, name, kind, status, execute_time, pred_spread, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Symbol, a.Name, string(a.Kind), string(a.Status), a.ExecuteTime, pred, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert action %s: %w", a.ID, err)
	}
	return nil
}

func (s *ActionStore) GetByID(ctx context.Context, id string) (domain.Action, error) {
	row := s.client.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE id = $1`, id)

	a, err := scanAction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Action{}, fmt.Errorf("postgres: action %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Action{}, fmt.Errorf("postgres: get action %s: %w", id, err)
	}
	return a, nil
}

// ListByStatus orders by execute time with the reference price breaking
// ties, matching the aggregator's output ordering.
func (s *ActionStore) ListByStatus(ctx context.Context, status domain.ActionStatus) ([]domain.Action, error) {
	rows, err := s.client.pool.Query(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE status = $1
		 ORDER BY execute_time, (pred_spread->>'curr_price')::numeric`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions by status %s: %w", status, err)
	}
	defer rows.Close()

	return collectActions(rows)
}

func (s *ActionStore) ActiveSymbols(ctx context.Context) (map[string]struct{}, error) {
	statuses := make([]string, len(domain.ActiveStatuses))
	for i, st := range domain.ActiveStatuses {
		statuses[i] = string(st)
	}

	rows, err := s.client.pool.Query(ctx,
		`SELECT DISTINCT symbol FROM actions WHERE status = ANY($1)`, statuses)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active symbols: %w", err)
	}
	defer rows.Close()

	symbols := make(map[string]struct{})
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("postgres: scan active symbol: %w", err)
		}
		symbols[sym] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate active symbols: %w", err)
	}
	return symbols, nil
}

func (s *ActionStore) SetAnalysis(ctx context.Context, id string, analysis domain.Analysis, spread domain.PredSpread, status domain.ActionStatus) error {
	an, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("postgres: marshal analysis: %w", err)
	}
	pred, err := json.Marshal(spread)
	if err != nil {
		return fmt.Errorf("postgres: marshal pred_spread: %w", err)
	}

	tag, err := s.client.pool.Exec(ctx, `
		UPDATE actions
		SET analysis = $1, pred_spread = $2, status = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		an, pred, string(status), id, string(domain.StatusCreated),
	)
	if err != nil {
		return fmt.Errorf("postgres: set analysis for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set analysis for %s: %w", id, domain.ErrStaleTransition)
	}
	return nil
}

func (s *ActionStore) Cancel(ctx context.Context, id string, status domain.ActionStatus, sources []string) error {
	an, err := json.Marshal(domain.Analysis{Sources: sources})
	if err != nil {
		return fmt.Errorf("postgres: marshal analysis: %w", err)
	}

	tag, err := s.client.pool.Exec(ctx, `
		UPDATE actions
		SET analysis = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		an, string(status), id, string(domain.StatusCreated),
	)
	if err != nil {
		return fmt.Errorf("postgres: cancel %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: cancel %s: %w", id, domain.ErrStaleTransition)
	}
	return nil
}

func (s *ActionStore) MarkScheduled(ctx context.Context, id string) error {
	tag, err := s.client.pool.Exec(ctx, `
		UPDATE actions SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		string(domain.StatusScheduled), id, string(domain.StatusOrderCreated),
	)
	if err != nil {
		return fmt.Errorf("postgres: mark scheduled %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark scheduled %s: %w", id, domain.ErrStaleTransition)
	}
	return nil
}

func (s *ActionStore) SetExecution(ctx context.Context, id string, spread domain.ExecSpread, assoc domain.AssociatedAction) error {
	ex, err := json.Marshal(spread)
	if err != nil {
		return fmt.Errorf("postgres: marshal exec_spread: %w", err)
	}
	as, err := json.Marshal(assoc)
	if err != nil {
		return fmt.Errorf("postgres: marshal associated_action: %w", err)
	}

	tag, err := s.client.pool.Exec(ctx, `
		UPDATE actions
		SET exec_spread = $1, associated_action = $2, status = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		ex, as, string(domain.StatusExecuted), id, string(domain.StatusScheduled),
	)
	if err != nil {
		return fmt.Errorf("postgres: set execution for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set execution for %s: %w", id, domain.ErrStaleTransition)
	}
	return nil
}

func (s *ActionStore) SetExecutionInfo(ctx context.Context, id string, info domain.ExecutionInfo, followupPostID string) error {
	ei, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("postgres: marshal execution_info: %w", err)
	}

	tag, err := s.client.pool.Exec(ctx, `
		UPDATE actions
		SET execution_info = $1, followup_post_id = $2, status = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		ei, followupPostID, string(domain.StatusComplete), id, string(domain.StatusExecuted),
	)
	if err != nil {
		return fmt.Errorf("postgres: set execution info for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set execution info for %s: %w", id, domain.ErrStaleTransition)
	}
	return nil
}

func (s *ActionStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Action, error) {
	terminal := []string{
		string(domain.StatusComplete),
		string(domain.StatusCanceledNoNews),
		string(domain.StatusCanceledAnalysis),
	}

	rows, err := s.client.pool.Query(ctx,
		`SELECT `+actionColumns+` FROM actions
		WHERE status = ANY($1) AND created_at < $2
		ORDER BY created_at`,
		terminal, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal actions: %w", err)
	}
	defer rows.Close()

	return collectActions(rows)
}

func collectActions(rows pgx.Rows) ([]domain.Action, error) {
	var actions []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate actions: %w", err)
	}
	return actions, nil
}

func scanAction(row pgx.Row) (domain.Action, error) {
	var (
		a              domain.Action
		kind, status   string
		pred           []byte
		analysis       []byte
		execSpread     []byte
		associated     []byte
		executionInfo  []byte
		followupPostID string
	)

	err := row.Scan(
		&a.ID, &a.Symbol, &a.Name, &kind, &status, &a.ExecuteTime,
		&pred, &analysis, &execSpread, &associated, &executionInfo,
		&followupPostID, &a.CreatedAt,
	)
	if err != nil {
		return domain.Action{}, err
	}

	a.Kind = domain.CandidateKind(kind)
	a.Status = domain.ActionStatus(status)
	a.FollowupPostID = followupPostID

	if err := json.Unmarshal(pred, &a.PredSpread); err != nil {
		return domain.Action{}, fmt.Errorf("unmarshal pred_spread: %w", err)
	}
	if len(analysis) > 0 {
		a.Analysis = &domain.Analysis{}
		if err := json.Unmarshal(analysis, a.Analysis); err != nil {
			return domain.Action{}, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	if len(execSpread) > 0 {
		a.ExecSpread = &domain.ExecSpread{}
		if err := json.Unmarshal(execSpread, a.ExecSpread); err != nil {
			return domain.Action{}, fmt.Errorf("unmarshal exec_spread: %w", err)
		}
	}
	if len(associated) > 0 {
		a.Associated = &domain.AssociatedAction{}
		if err := json.Unmarshal(associated, a.Associated); err != nil {
			return domain.Action{}, fmt.Errorf("unmarshal associated_action: %w", err)
		}
	}
	if len(executionInfo) > 0 {
		a.ExecutionInfo = &domain.ExecutionInfo{}
		if err := json.Unmarshal(executionInfo, a.ExecutionInfo); err != nil {
			return domain.Action{}, fmt.Errorf("unmarshal execution_info: %w", err)
		}
	}

	return a, nil
}
