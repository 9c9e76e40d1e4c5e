package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"notebook/api/internal/auth"
	"notebook/api/internal/authpw"
	"notebook/api/internal/config"
	"notebook/api/internal/content"
	"notebook/api/internal/logging"
	"notebook/api/internal/ordering"
	"notebook/api/internal/realtime"
	"notebook/api/internal/search"
	"notebook/api/internal/store"
	"notebook/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	AccountID    string
	DisplayName  string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetAccountByID(context.Context, string) (store.Account, error)
	ListPages(context.Context, string) ([]store.Page, error)
	GetPage(context.Context, string, string) (store.Page, error)
	CreatePage(context.Context, store.Page) (store.Page, error)
	UpdatePage(context.Context, string, string, store.PageUpdate) (store.Page, error)
	DeletePage(context.Context, string, string) error
	ListFolders(context.Context, string) ([]store.Folder, error)
	CreateFolder(context.Context, store.Folder) (store.Folder, error)
	RenameFolder(context.Context, string, string, string) (store.Folder, error)
	DeleteFolder(context.Context, string, string) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.Account, error)
	RevokeRefreshSession(context.Context, string) error
}

type accountService interface {
	SignUp(context.Context, authpw.SignUpRequest) (store.Account, error)
	SignIn(ctx context.Context, email, password string) (store.Account, error)
}

type reorderer interface {
	Reorder(ctx context.Context, ownerID string, moves []ordering.Move) (ordering.Positions, error)
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexPage(search.PageRecord)
	IndexFolder(search.FolderRecord)
	Remove(pageIDs, folderIDs []string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts accountService
	ordering reorderer
	search   searchService
	events   realtime.Publisher
	logger   zerolog.Logger
}

// New wires the service onto the SQL store. sessions may be the store itself
// or a Redis-backed store; events is the Hub or a RedisRelay.
func New(cfg config.Config, db *store.SQLStore, sessions sessionStore, events realtime.Publisher, searchSvc *search.Service, logger zerolog.Logger) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    db,
		sessions: sessions,
		accounts: authpw.NewService(db),
		ordering: ordering.NewService(db, cfg.MaxMoves, logger),
		events:   events,
		logger:   logging.Component(logger, "app"),
	}
	if searchSvc != nil {
		svc.search = searchSvc
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	account, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info().Str("account_id", account.ID).Msg("account created")
	return s.issueSession(ctx, account)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	account, err := s.accounts.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, account)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	account, err := s.store.GetAccountByID(ctx, found.ID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, account)
}

func (s *Service) issueSession(ctx context.Context, account store.Account) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  account.ID,
		Name: account.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), account.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		AccountID:    account.ID,
		DisplayName:  account.DisplayName,
		Email:        account.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	account, err := s.store.GetAccountByID(ctx, claims.Sub)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:       token,
		AccountID:   account.ID,
		DisplayName: account.DisplayName,
		Email:       account.Email,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the refresh token. Access tokens expire on their own.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// Reorder applies a batch of moves and, once committed, tells every session
// of the owner to refetch.
func (s *Service) Reorder(ctx context.Context, session Session, moves []ordering.Move) (ordering.Positions, error) {
	positions, err := s.ordering.Reorder(ctx, session.AccountID, moves)
	if err != nil {
		return ordering.Positions{}, err
	}
	s.reindexMoved(ctx, session.AccountID, moves, positions)
	s.publish(ctx, session.AccountID, realtime.ResourcePages, realtime.ResourceFolders, realtime.ResourceTree)
	return positions, nil
}

// reindexMoved refreshes the search documents of moved items so their
// parent matches the committed placement.
func (s *Service) reindexMoved(ctx context.Context, ownerID string, moves []ordering.Move, positions ordering.Positions) {
	if s.search == nil {
		return
	}
	folders := make(map[string]ordering.Item, len(positions.Folders))
	for _, item := range positions.Folders {
		folders[item.ID] = item
	}
	seen := make(map[string]bool, len(moves))
	for _, move := range moves {
		key := string(move.Kind) + ":" + move.ID
		if seen[key] {
			continue
		}
		seen[key] = true

		switch move.Kind {
		case ordering.KindPage:
			page, err := s.store.GetPage(ctx, ownerID, move.ID)
			if err != nil {
				s.logger.Warn().Err(err).Str("page_id", move.ID).Msg("reload moved page for indexing")
				continue
			}
			s.indexPage(page)
		case ordering.KindFolder:
			item, ok := folders[move.ID]
			if !ok {
				continue
			}
			s.search.IndexFolder(search.FolderRecord{
				ID:       item.ID,
				OwnerID:  ownerID,
				ParentID: item.ParentID,
				Name:     item.Title,
			})
		}
	}
}

func (s *Service) ListPages(ctx context.Context, session Session) ([]store.Page, error) {
	return s.store.ListPages(ctx, session.AccountID)
}

func (s *Service) GetPage(ctx context.Context, session Session, id string) (store.Page, error) {
	return s.store.GetPage(ctx, session.AccountID, id)
}

type CreatePageInput struct {
	Title    string          `json:"title"`
	ParentID *string         `json:"parent_id"`
	Content  json.RawMessage `json:"content"`
}

func (s *Service) CreatePage(ctx context.Context, session Session, input CreatePageInput) (store.Page, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled"
	}
	doc, err := content.Normalize(input.Content)
	if err != nil {
		return store.Page{}, err
	}
	if err := validateParent(input.ParentID); err != nil {
		return store.Page{}, err
	}

	page, err := s.store.CreatePage(ctx, store.Page{
		ID:       util.NewID("pg"),
		OwnerID:  session.AccountID,
		ParentID: input.ParentID,
		Title:    title,
		Content:  doc,
	})
	if err != nil {
		return store.Page{}, err
	}
	s.indexPage(page)
	s.publish(ctx, session.AccountID, realtime.ResourcePages, realtime.ResourceTree)
	return page, nil
}

type UpdatePageInput struct {
	Title   *string         `json:"title"`
	Content json.RawMessage `json:"content"`
}

func (s *Service) UpdatePage(ctx context.Context, session Session, id string, input UpdatePageInput) (store.Page, error) {
	var update store.PageUpdate
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return store.Page{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title must not be blank", nil)
		}
		update.Title = &title
	}
	if len(input.Content) > 0 {
		doc, err := content.Normalize(input.Content)
		if err != nil {
			return store.Page{}, err
		}
		update.Content = &doc
	}
	if update.Title == nil && update.Content == nil {
		return store.Page{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title or content is required", nil)
	}

	page, err := s.store.UpdatePage(ctx, session.AccountID, id, update)
	if err != nil {
		return store.Page{}, err
	}
	s.indexPage(page)
	s.publish(ctx, session.AccountID, realtime.ResourcePages, realtime.ResourceTree, PageResource(id))
	return page, nil
}

func (s *Service) DeletePage(ctx context.Context, session Session, id string) error {
	if err := s.store.DeletePage(ctx, session.AccountID, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.Remove([]string{id}, nil)
	}
	s.publish(ctx, session.AccountID, realtime.ResourcePages, realtime.ResourceTree, PageResource(id))
	return nil
}

func (s *Service) ListFolders(ctx context.Context, session Session) ([]store.Folder, error) {
	return s.store.ListFolders(ctx, session.AccountID)
}

type CreateFolderInput struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

func (s *Service) CreateFolder(ctx context.Context, session Session, input CreateFolderInput) (store.Folder, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Folder{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if err := validateParent(input.ParentID); err != nil {
		return store.Folder{}, err
	}

	folder, err := s.store.CreateFolder(ctx, store.Folder{
		ID:       util.NewID("fd"),
		OwnerID:  session.AccountID,
		ParentID: input.ParentID,
		Name:     name,
	})
	if err != nil {
		return store.Folder{}, err
	}
	s.indexFolder(folder)
	s.publish(ctx, session.AccountID, realtime.ResourceFolders, realtime.ResourceTree)
	return folder, nil
}

func (s *Service) RenameFolder(ctx context.Context, session Session, id, name string) (store.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Folder{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	folder, err := s.store.RenameFolder(ctx, session.AccountID, id, name)
	if err != nil {
		return store.Folder{}, err
	}
	s.indexFolder(folder)
	s.publish(ctx, session.AccountID, realtime.ResourceFolders, realtime.ResourceTree)
	return folder, nil
}

// DeleteFolder removes a folder and, through the database cascade, everything
// beneath it.
func (s *Service) DeleteFolder(ctx context.Context, session Session, id string) error {
	var removedPages, removedFolders []string
	if s.search != nil {
		tree, err := s.Tree(ctx, session)
		if err != nil {
			return err
		}
		removedPages, removedFolders = descendants(tree, id)
	}

	if err := s.store.DeleteFolder(ctx, session.AccountID, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.Remove(removedPages, removedFolders)
	}
	s.publish(ctx, session.AccountID, realtime.ResourceFolders, realtime.ResourcePages, realtime.ResourceTree)
	return nil
}

func (s *Service) Tree(ctx context.Context, session Session) ([]TreeNode, error) {
	folders, err := s.store.ListFolders(ctx, session.AccountID)
	if err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, session.AccountID)
	if err != nil {
		return nil, err
	}
	return buildTree(folders, pages), nil
}

func (s *Service) Search(ctx context.Context, session Session, q search.Query) search.Response {
	q.OwnerID = session.AccountID
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

// PageResource is the change key clients watch for one page's content.
func PageResource(id string) string {
	return "page:" + id
}

func validateParent(parentID *string) error {
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "parent_id must be null or a folder id", nil)
	}
	return nil
}

// publish runs after the write has committed. A failed publish is logged and
// otherwise ignored; clients still converge through polling.
func (s *Service) publish(ctx context.Context, ownerID string, resources ...string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, realtime.ResourceChanged(ownerID, resources...)); err != nil {
		s.logger.Warn().Err(err).Str("owner_id", ownerID).Strs("resources", resources).Msg("publish change event")
	}
}

func (s *Service) indexPage(page store.Page) {
	if s.search == nil {
		return
	}
	s.search.IndexPage(search.PageRecord{
		ID:       page.ID,
		OwnerID:  page.OwnerID,
		ParentID: page.ParentID,
		Title:    page.Title,
		Body:     content.PlainText(page.Content),
	})
}

func (s *Service) indexFolder(folder store.Folder) {
	if s.search == nil {
		return
	}
	s.search.IndexFolder(search.FolderRecord{
		ID:       folder.ID,
		OwnerID:  folder.OwnerID,
		ParentID: folder.ParentID,
		Name:     folder.Name,
	})
}
