package store

import "time"

type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

type Folder struct {
	ID        string
	OwnerID   string
	ParentID  *string
	Name      string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Page content is the editor's JSON document, stored verbatim.
type Page struct {
	ID        string
	OwnerID   string
	ParentID  *string
	Title     string
	Content   string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PageUpdate carries the fields a PATCH may change. Nil fields are kept.
type PageUpdate struct {
	Title   *string
	Content *string
}
