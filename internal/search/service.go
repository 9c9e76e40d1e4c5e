package search

import (
	"context"

	"github.com/rs/zerolog"
)

// Index is the write side of an external search engine.
type Index interface {
	Healthy() bool
	IndexPages(pages []PageRecord) error
	IndexFolders(folders []FolderRecord) error
	DeletePage(id string) error
	DeleteFolder(id string) error
}

// Engine is an external index that can also answer queries.
type Engine interface {
	Searcher
	Index
}

// Service is the facade that tries the engine first and falls back to SQL.
type Service struct {
	engine   Engine
	fallback *SQLSearch
	logger   zerolog.Logger
}

// NewService creates a search service. engine may be nil when Meilisearch is
// not configured.
func NewService(engine Engine, fallback *SQLSearch, logger zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		fallback: fallback,
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

func (s *Service) engineReady() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search never fails; errors degrade to the fallback, then to no results.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engineReady() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn().Err(err).Msg("search engine error, falling back to sql")
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).Msg("sql search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPage indexes a page (fire-and-forget).
func (s *Service) IndexPage(page PageRecord) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := s.engine.IndexPages([]PageRecord{page}); err != nil {
			s.logger.Warn().Err(err).Str("page_id", page.ID).Msg("index page")
		}
	}()
}

// IndexFolder indexes a folder (fire-and-forget).
func (s *Service) IndexFolder(folder FolderRecord) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := s.engine.IndexFolders([]FolderRecord{folder}); err != nil {
			s.logger.Warn().Err(err).Str("folder_id", folder.ID).Msg("index folder")
		}
	}()
}

// Remove drops pages and folders from the index (fire-and-forget).
func (s *Service) Remove(pageIDs, folderIDs []string) {
	if !s.engineReady() || len(pageIDs)+len(folderIDs) == 0 {
		return
	}
	go func() {
		for _, id := range pageIDs {
			if err := s.engine.DeletePage(id); err != nil {
				s.logger.Warn().Err(err).Str("page_id", id).Msg("delete page from index")
			}
		}
		for _, id := range folderIDs {
			if err := s.engine.DeleteFolder(id); err != nil {
				s.logger.Warn().Err(err).Str("folder_id", id).Msg("delete folder from index")
			}
		}
	}()
}

// ReindexAll pushes every page and folder from the database into the engine.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.engineReady() || s.fallback == nil {
		return
	}
	pages, folders, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("reindex load failed")
		return
	}
	if err := s.engine.IndexPages(pages); err != nil {
		s.logger.Error().Err(err).Msg("reindex pages")
	}
	if err := s.engine.IndexFolders(folders); err != nil {
		s.logger.Error().Err(err).Msg("reindex folders")
	}
	s.logger.Info().Int("pages", len(pages)).Int("folders", len(folders)).Msg("search reindexed")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
