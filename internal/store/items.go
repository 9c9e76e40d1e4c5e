package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notebook/api/internal/content"
	"notebook/api/internal/ordering"
)

// CreateFolder appends the folder to the end of its sibling group.
func (s *SQLStore) CreateFolder(ctx context.Context, folder Folder) (Folder, error) {
	now := time.Now().UTC()
	folder.CreatedAt, folder.UpdatedAt = now, now
	err := s.InTx(ctx, func(ctx context.Context, otx ordering.Tx) error {
		tx := otx.(*sqlTx)
		if err := tx.LockOwner(ctx, folder.OwnerID); err != nil {
			return err
		}
		if folder.ParentID != nil {
			if _, err := tx.FolderParent(ctx, folder.OwnerID, *folder.ParentID); err != nil {
				return err
			}
		}
		position, err := tx.nextPosition(ctx, "folders", folder.OwnerID, folder.ParentID)
		if err != nil {
			return err
		}
		folder.Position = position
		if _, err := tx.exec(ctx, `
			INSERT INTO folders (id, owner_id, parent_id, name, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, folder.ID, folder.OwnerID, nullableString(folder.ParentID), folder.Name, folder.Position,
			timeArg(s.dialect, now), timeArg(s.dialect, now)); err != nil {
			return fmt.Errorf("insert folder: %w", err)
		}
		return nil
	})
	if err != nil {
		return Folder{}, err
	}
	return folder, nil
}

func (s *SQLStore) ListFolders(ctx context.Context, ownerID string) ([]Folder, error) {
	rows, err := s.query(ctx, `
		SELECT id, owner_id, parent_id, name, position, created_at, updated_at
		FROM folders
		WHERE owner_id = ?
		ORDER BY COALESCE(parent_id, ''), position, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	folders := make([]Folder, 0)
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return folders, nil
}

func (s *SQLStore) GetFolder(ctx context.Context, ownerID, id string) (Folder, error) {
	row := s.queryRow(ctx, `
		SELECT id, owner_id, parent_id, name, position, created_at, updated_at
		FROM folders
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	folder, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Folder{}, ErrNotFound
	}
	return folder, err
}

func (s *SQLStore) RenameFolder(ctx context.Context, ownerID, id, name string) (Folder, error) {
	result, err := s.exec(ctx, `
		UPDATE folders SET name = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, name, timeArg(s.dialect, time.Now()), id, ownerID)
	if err != nil {
		return Folder{}, fmt.Errorf("rename folder: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return Folder{}, ErrNotFound
	}
	return s.GetFolder(ctx, ownerID, id)
}

// DeleteFolder removes the folder. Descendant folders and pages go with it
// through ON DELETE CASCADE.
func (s *SQLStore) DeleteFolder(ctx context.Context, ownerID, id string) error {
	return s.InTx(ctx, func(ctx context.Context, otx ordering.Tx) error {
		tx := otx.(*sqlTx)
		if err := tx.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		return tx.removeItem(ctx, ordering.KindFolder, ownerID, id)
	})
}

// CreatePage appends the page to the end of its sibling group.
func (s *SQLStore) CreatePage(ctx context.Context, page Page) (Page, error) {
	now := time.Now().UTC()
	page.CreatedAt, page.UpdatedAt = now, now
	err := s.InTx(ctx, func(ctx context.Context, otx ordering.Tx) error {
		tx := otx.(*sqlTx)
		if err := tx.LockOwner(ctx, page.OwnerID); err != nil {
			return err
		}
		if page.ParentID != nil {
			if _, err := tx.FolderParent(ctx, page.OwnerID, *page.ParentID); err != nil {
				return err
			}
		}
		position, err := tx.nextPosition(ctx, "pages", page.OwnerID, page.ParentID)
		if err != nil {
			return err
		}
		page.Position = position
		if _, err := tx.exec(ctx, `
			INSERT INTO pages (id, owner_id, parent_id, title, content, body_text, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, page.ID, page.OwnerID, nullableString(page.ParentID), page.Title, page.Content, content.PlainText(page.Content), page.Position,
			timeArg(s.dialect, now), timeArg(s.dialect, now)); err != nil {
			return fmt.Errorf("insert page: %w", err)
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// ListPages returns page metadata without content.
func (s *SQLStore) ListPages(ctx context.Context, ownerID string) ([]Page, error) {
	rows, err := s.query(ctx, `
		SELECT id, owner_id, parent_id, title, '', position, created_at, updated_at
		FROM pages
		WHERE owner_id = ?
		ORDER BY COALESCE(parent_id, ''), position, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := make([]Page, 0)
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func (s *SQLStore) GetPage(ctx context.Context, ownerID, id string) (Page, error) {
	row := s.queryRow(ctx, `
		SELECT id, owner_id, parent_id, title, content, position, created_at, updated_at
		FROM pages
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, ErrNotFound
	}
	return page, err
}

func (s *SQLStore) UpdatePage(ctx context.Context, ownerID, id string, update PageUpdate) (Page, error) {
	var bodyText *string
	if update.Content != nil {
		text := content.PlainText(*update.Content)
		bodyText = &text
	}
	result, err := s.exec(ctx, `
		UPDATE pages
		SET title = COALESCE(?, title), content = COALESCE(?, content), body_text = COALESCE(?, body_text), updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, nullableString(update.Title), nullableString(update.Content), nullableString(bodyText), timeArg(s.dialect, time.Now()), id, ownerID)
	if err != nil {
		return Page{}, fmt.Errorf("update page: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return Page{}, ErrNotFound
	}
	return s.GetPage(ctx, ownerID, id)
}

func (s *SQLStore) DeletePage(ctx context.Context, ownerID, id string) error {
	return s.InTx(ctx, func(ctx context.Context, otx ordering.Tx) error {
		tx := otx.(*sqlTx)
		if err := tx.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		return tx.removeItem(ctx, ordering.KindPage, ownerID, id)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row rowScanner) (Folder, error) {
	var folder Folder
	var parentID sql.NullString
	var createdAt, updatedAt dbTime
	if err := row.Scan(&folder.ID, &folder.OwnerID, &parentID, &folder.Name, &folder.Position, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Folder{}, err
		}
		return Folder{}, fmt.Errorf("scan folder: %w", err)
	}
	folder.ParentID = stringPtr(parentID)
	folder.CreatedAt = createdAt.Time
	folder.UpdatedAt = updatedAt.Time
	return folder, nil
}

func scanPage(row rowScanner) (Page, error) {
	var page Page
	var parentID sql.NullString
	var createdAt, updatedAt dbTime
	if err := row.Scan(&page.ID, &page.OwnerID, &parentID, &page.Title, &page.Content, &page.Position, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Page{}, err
		}
		return Page{}, fmt.Errorf("scan page: %w", err)
	}
	page.ParentID = stringPtr(parentID)
	page.CreatedAt = createdAt.Time
	page.UpdatedAt = updatedAt.Time
	return page, nil
}
