package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notebook/api/internal/ordering"
)

// InTx runs fn inside one database transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx ordering.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, &sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListItems returns the owner's pages or folders ordered by parent, then
// position.
func (s *SQLStore) ListItems(ctx context.Context, ownerID string, kind ordering.Kind) ([]ordering.Item, error) {
	table, label, err := itemTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, `
		SELECT id, owner_id, parent_id, position, `+label+`, updated_at
		FROM `+table+`
		WHERE owner_id = ?
		ORDER BY COALESCE(parent_id, ''), position, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	items := make([]ordering.Item, 0)
	for rows.Next() {
		var item ordering.Item
		var parentID sql.NullString
		var updatedAt dbTime
		if err := rows.Scan(&item.ID, &item.OwnerID, &parentID, &item.Position, &item.Title, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		item.Kind = kind
		item.ParentID = stringPtr(parentID)
		item.UpdatedAt = updatedAt.Time
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return items, nil
}

func itemTable(kind ordering.Kind) (table, label string, err error) {
	switch kind {
	case ordering.KindPage:
		return "pages", "title", nil
	case ordering.KindFolder:
		return "folders", "name", nil
	default:
		return "", "", fmt.Errorf("%w: unknown kind %q", ordering.ErrInvalidMove, kind)
	}
}

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, rebind(t.dialect, query), args...)
}

func (t *sqlTx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, rebind(t.dialect, query), args...)
}

func (t *sqlTx) LockOwner(ctx context.Context, ownerID string) error {
	if t.dialect != DialectPostgres {
		return nil
	}
	if _, err := t.exec(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, ownerID); err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}
	return nil
}

func (t *sqlTx) Placement(ctx context.Context, kind ordering.Kind, ownerID, id string) (ordering.Placement, error) {
	table, _, err := itemTable(kind)
	if err != nil {
		return ordering.Placement{}, err
	}
	var parentID sql.NullString
	var placement ordering.Placement
	err = t.queryRow(ctx, `SELECT parent_id, position FROM `+table+` WHERE id = ? AND owner_id = ?`, id, ownerID).
		Scan(&parentID, &placement.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return ordering.Placement{}, ordering.ErrItemNotFound
	}
	if err != nil {
		return ordering.Placement{}, fmt.Errorf("read placement: %w", err)
	}
	placement.ParentID = stringPtr(parentID)
	return placement, nil
}

func (t *sqlTx) FolderParent(ctx context.Context, ownerID, folderID string) (*string, error) {
	var parentID sql.NullString
	err := t.queryRow(ctx, `SELECT parent_id FROM folders WHERE id = ? AND owner_id = ?`, folderID, ownerID).Scan(&parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ordering.ErrParentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read folder parent: %w", err)
	}
	return stringPtr(parentID), nil
}

func (t *sqlTx) ShiftSiblings(ctx context.Context, kind ordering.Kind, ownerID string, parentID *string, from, delta int, excludeID string) error {
	table, _, err := itemTable(kind)
	if err != nil {
		return err
	}
	filter, args := parentFilter(parentID, []any{delta, ownerID})
	args = append(args, from, excludeID)
	if _, err := t.exec(ctx, `
		UPDATE `+table+` SET position = position + ?
		WHERE owner_id = ? AND `+filter+` AND position >= ? AND id <> ?
	`, args...); err != nil {
		return fmt.Errorf("shift %s: %w", table, err)
	}
	return nil
}

func (t *sqlTx) SetPlacement(ctx context.Context, kind ordering.Kind, ownerID, id string, parentID *string, position int) (int64, error) {
	table, _, err := itemTable(kind)
	if err != nil {
		return 0, err
	}
	result, err := t.exec(ctx, `
		UPDATE `+table+` SET parent_id = ?, position = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, nullableString(parentID), position, timeArg(t.dialect, time.Now()), id, ownerID)
	if err != nil {
		return 0, fmt.Errorf("set placement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set placement rows: %w", err)
	}
	return affected, nil
}

// nextPosition is the append slot of a sibling group.
func (t *sqlTx) nextPosition(ctx context.Context, table, ownerID string, parentID *string) (int, error) {
	filter, args := parentFilter(parentID, []any{ownerID})
	var next int
	err := t.queryRow(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM `+table+` WHERE owner_id = ? AND `+filter, args...).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next position: %w", err)
	}
	return next, nil
}

// removeItem deletes one item and closes the gap it leaves among its siblings.
func (t *sqlTx) removeItem(ctx context.Context, kind ordering.Kind, ownerID, id string) error {
	table, _, err := itemTable(kind)
	if err != nil {
		return err
	}
	placement, err := t.Placement(ctx, kind, ownerID, id)
	if errors.Is(err, ordering.ErrItemNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := t.exec(ctx, `DELETE FROM `+table+` WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return t.ShiftSiblings(ctx, kind, ownerID, placement.ParentID, placement.Position+1, -1, id)
}
