// Package ordering applies batches of drag-and-drop moves to the sibling
// ordered position column shared by pages and folders.
//
// A batch runs inside one storage transaction. Each move closes the gap it
// leaves in its source group and opens a gap at its destination, so siblings
// of one kind under one (owner, parent) never share a position after commit.
// Pages and folders keep independent sequences.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

type Kind string

const (
	KindPage   Kind = "page"
	KindFolder Kind = "folder"
)

func (k Kind) Valid() bool {
	return k == KindPage || k == KindFolder
}

// Move places one item at Position inside ParentID. A nil ParentID is the
// root container, never "keep the current parent".
type Move struct {
	ID       string
	Kind     Kind
	Position int
	ParentID *string
}

type Item struct {
	ID        string
	OwnerID   string
	Kind      Kind
	ParentID  *string
	Position  int
	Title     string
	UpdatedAt time.Time
}

type Placement struct {
	ParentID *string
	Position int
}

// Positions is the full sibling state of one owner after a reorder.
type Positions struct {
	Pages   []Item
	Folders []Item
}

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrParentNotFound = errors.New("parent folder not found")
	ErrCycle          = errors.New("folder cannot be moved into itself or a descendant")
	ErrInvalidMove    = errors.New("invalid move")
)

// MoveError reports which move of a batch was rejected.
type MoveError struct {
	Index int
	ID    string
	Err   error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e *MoveError) Unwrap() error {
	return e.Err
}

// Tx is the write surface a reorder needs inside one transaction. Every
// statement is filtered by owner.
type Tx interface {
	// LockOwner serializes concurrent reorders of the same owner until the
	// transaction ends.
	LockOwner(ctx context.Context, ownerID string) error
	// Placement returns ErrItemNotFound for missing or foreign items.
	Placement(ctx context.Context, kind Kind, ownerID, id string) (Placement, error)
	// FolderParent returns the parent of an owned folder, or ErrParentNotFound.
	FolderParent(ctx context.Context, ownerID, folderID string) (*string, error)
	// ShiftSiblings adds delta to every sibling in (owner, parent, kind) whose
	// position is >= from, except excludeID.
	ShiftSiblings(ctx context.Context, kind Kind, ownerID string, parentID *string, from, delta int, excludeID string) error
	SetPlacement(ctx context.Context, kind Kind, ownerID, id string, parentID *string, position int) (int64, error)
}

type Store interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// ListItems returns the owner's items ordered by parent, then position.
	ListItems(ctx context.Context, ownerID string, kind Kind) ([]Item, error)
}

const maxFolderDepth = 256

type Service struct {
	store    Store
	maxMoves int
	logger   zerolog.Logger
}

func NewService(store Store, maxMoves int, logger zerolog.Logger) *Service {
	if maxMoves <= 0 {
		maxMoves = 500
	}
	return &Service{
		store:    store,
		maxMoves: maxMoves,
		logger:   logger.With().Str("component", "ordering").Logger(),
	}
}

// Validate checks the shape of a batch before any storage access.
func (s *Service) Validate(moves []Move) error {
	if len(moves) == 0 {
		return fmt.Errorf("%w: at least one move is required", ErrInvalidMove)
	}
	if len(moves) > s.maxMoves {
		return fmt.Errorf("%w: at most %d moves per batch", ErrInvalidMove, s.maxMoves)
	}
	for i, move := range moves {
		switch {
		case move.ID == "":
			return &MoveError{Index: i, Err: fmt.Errorf("%w: id is required", ErrInvalidMove)}
		case !move.Kind.Valid():
			return &MoveError{Index: i, ID: move.ID, Err: fmt.Errorf("%w: type must be page or folder", ErrInvalidMove)}
		case move.Position < 0:
			return &MoveError{Index: i, ID: move.ID, Err: fmt.Errorf("%w: position must be non-negative", ErrInvalidMove)}
		case move.Position > math.MaxInt32:
			return &MoveError{Index: i, ID: move.ID, Err: fmt.Errorf("%w: position must be at most %d", ErrInvalidMove, math.MaxInt32)}
		case move.ParentID != nil && *move.ParentID == "":
			return &MoveError{Index: i, ID: move.ID, Err: fmt.Errorf("%w: parent_id must be null or a folder id", ErrInvalidMove)}
		}
	}
	return nil
}

// Reorder applies moves in input order as one atomic batch and returns the
// owner's full page and folder sets as committed.
func (s *Service) Reorder(ctx context.Context, ownerID string, moves []Move) (Positions, error) {
	if err := s.Validate(moves); err != nil {
		return Positions{}, err
	}

	applied := 0
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		for i, move := range moves {
			changed, err := applyMove(ctx, tx, ownerID, move)
			if err != nil {
				if errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrParentNotFound) || errors.Is(err, ErrCycle) {
					return &MoveError{Index: i, ID: move.ID, Err: err}
				}
				return err
			}
			if changed {
				applied++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("owner_id", ownerID).Int("moves", len(moves)).Msg("reorder rolled back")
		return Positions{}, err
	}

	s.logger.Debug().Str("owner_id", ownerID).Int("moves", len(moves)).Int("applied", applied).Msg("reorder committed")
	return s.Positions(ctx, ownerID)
}

// Positions reads the owner's current page and folder sets.
func (s *Service) Positions(ctx context.Context, ownerID string) (Positions, error) {
	pages, err := s.store.ListItems(ctx, ownerID, KindPage)
	if err != nil {
		return Positions{}, fmt.Errorf("list pages: %w", err)
	}
	folders, err := s.store.ListItems(ctx, ownerID, KindFolder)
	if err != nil {
		return Positions{}, fmt.Errorf("list folders: %w", err)
	}
	return Positions{Pages: pages, Folders: folders}, nil
}

func applyMove(ctx context.Context, tx Tx, ownerID string, move Move) (bool, error) {
	current, err := tx.Placement(ctx, move.Kind, ownerID, move.ID)
	if err != nil {
		return false, err
	}
	if sameParent(current.ParentID, move.ParentID) && current.Position == move.Position {
		return false, nil
	}

	if move.ParentID != nil {
		if err := checkParent(ctx, tx, ownerID, move); err != nil {
			return false, err
		}
	}

	if err := tx.ShiftSiblings(ctx, move.Kind, ownerID, current.ParentID, current.Position+1, -1, move.ID); err != nil {
		return false, fmt.Errorf("close gap: %w", err)
	}
	if err := tx.ShiftSiblings(ctx, move.Kind, ownerID, move.ParentID, move.Position, 1, move.ID); err != nil {
		return false, fmt.Errorf("open gap: %w", err)
	}
	affected, err := tx.SetPlacement(ctx, move.Kind, ownerID, move.ID, move.ParentID, move.Position)
	if err != nil {
		return false, fmt.Errorf("set placement: %w", err)
	}
	if affected == 0 {
		return false, ErrItemNotFound
	}
	return true, nil
}

// checkParent verifies the destination folder is owned by the caller and, for
// folder moves, that it is not the moved folder or one of its descendants.
func checkParent(ctx context.Context, tx Tx, ownerID string, move Move) error {
	cursor := move.ParentID
	for depth := 0; cursor != nil; depth++ {
		if depth > maxFolderDepth {
			return ErrCycle
		}
		if move.Kind == KindFolder && *cursor == move.ID {
			return ErrCycle
		}
		parent, err := tx.FolderParent(ctx, ownerID, *cursor)
		if err != nil {
			return err
		}
		if move.Kind == KindPage {
			return nil
		}
		cursor = parent
	}
	return nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
