package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"notebook/api/internal/content"
	"notebook/api/internal/store"
)

const snippetLength = 160

// SQLSearch implements Searcher on the primary database: Postgres full-text
// search, or a LIKE scan on SQLite.
type SQLSearch struct {
	db      *sql.DB
	dialect store.Dialect
}

func NewSQLSearch(db *sql.DB, dialect store.Dialect) *SQLSearch {
	return &SQLSearch{db: db, dialect: dialect}
}

// Healthy always returns true; if the database is down the whole app is down.
func (p *SQLSearch) Healthy() bool {
	return true
}

// Search unions page and folder matches of the owner, best rank first.
func (p *SQLSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	var pageMatch, pageRank, pageSnippet, folderMatch, folderRank string
	var args []any
	if p.dialect == store.DialectPostgres {
		tsQuery := "plainto_tsquery('english', $2)"
		pageVector := "to_tsvector('english', title || ' ' || body_text)"
		folderVector := "to_tsvector('english', name)"
		pageMatch = pageVector + " @@ " + tsQuery
		pageRank = "ts_rank(" + pageVector + ", " + tsQuery + ")"
		pageSnippet = "ts_headline('english', body_text, " + tsQuery + ", 'MaxFragments=1,MaxWords=30')"
		folderMatch = folderVector + " @@ " + tsQuery
		folderRank = "ts_rank(" + folderVector + ", " + tsQuery + ")"
		args = []any{q.OwnerID, text}
	} else {
		like := func(column string) string { return "lower(" + column + ") LIKE ?2 ESCAPE '\\'" }
		pageMatch = "(" + like("title") + " OR " + like("body_text") + ")"
		pageRank = "CASE WHEN " + like("title") + " THEN 1.0 ELSE 0.5 END"
		pageSnippet = "body_text"
		folderMatch = like("name")
		folderRank = "1.0"
		args = []any{q.OwnerID, "%" + escapeLike(strings.ToLower(text)) + "%"}
	}
	owner := "$1"
	if p.dialect != store.DialectPostgres {
		owner = "?1"
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultPage {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'page' AS type, id, title, %s AS snippet, parent_id, %s AS rank
			FROM pages
			WHERE owner_id = %s AND %s`, pageSnippet, pageRank, owner, pageMatch))
	}
	if q.FilterType == "" || q.FilterType == ResultFolder {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'folder' AS type, id, name AS title, '' AS snippet, parent_id, %s AS rank
			FROM folders
			WHERE owner_id = %s AND %s`, folderRank, owner, folderMatch))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+union+") sub", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sql search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, parent_id
		FROM (%s) sub
		ORDER BY rank DESC, title, id
		LIMIT %d OFFSET %d`, union, q.limit(), q.offset()), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sql search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		var parentID sql.NullString
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &parentID); err != nil {
			return nil, 0, fmt.Errorf("sql search scan: %w", err)
		}
		r.Type = ResultType(typ)
		r.Snippet = content.Snippet(r.Snippet, snippetLength)
		if parentID.Valid {
			parent := parentID.String
			r.ParentID = &parent
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// LoadAllRecords returns every searchable record for full reindexing.
func (p *SQLSearch) LoadAllRecords(ctx context.Context) ([]PageRecord, []FolderRecord, error) {
	pageRows, err := p.db.QueryContext(ctx, `SELECT id, owner_id, parent_id, title, body_text FROM pages`)
	if err != nil {
		return nil, nil, fmt.Errorf("load pages: %w", err)
	}
	defer pageRows.Close()

	pages := make([]PageRecord, 0)
	for pageRows.Next() {
		var r PageRecord
		var parentID sql.NullString
		if err := pageRows.Scan(&r.ID, &r.OwnerID, &parentID, &r.Title, &r.Body); err != nil {
			return nil, nil, fmt.Errorf("scan page: %w", err)
		}
		if parentID.Valid {
			r.ParentID = &parentID.String
		}
		pages = append(pages, r)
	}
	if err := pageRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate pages: %w", err)
	}

	folderRows, err := p.db.QueryContext(ctx, `SELECT id, owner_id, parent_id, name FROM folders`)
	if err != nil {
		return nil, nil, fmt.Errorf("load folders: %w", err)
	}
	defer folderRows.Close()

	folders := make([]FolderRecord, 0)
	for folderRows.Next() {
		var r FolderRecord
		var parentID sql.NullString
		if err := folderRows.Scan(&r.ID, &r.OwnerID, &parentID, &r.Name); err != nil {
			return nil, nil, fmt.Errorf("scan folder: %w", err)
		}
		if parentID.Valid {
			r.ParentID = &parentID.String
		}
		folders = append(folders, r)
	}
	if err := folderRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate folders: %w", err)
	}

	return pages, folders, nil
}
