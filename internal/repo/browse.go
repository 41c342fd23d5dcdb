package repo

import (
	"context"

	"datarequest/internal/domain"
)

// Sort columns accepted by Browse.
const (
	SortByName       = "name"
	SortByCreateTime = "create_time"
)

type BrowseOptions struct {
	SortBy     string
	Descending bool
	Offset     int
	Limit      int
}

type BrowseResult struct {
	Total int                     `json:"total"`
	Items []domain.RequestSummary `json:"items"`
}

// Browse returns a page of request summaries under the root collection,
// sorted by submitter name or creation time. A missing root collection means
// the workspace was never initialised.
func (r Repo) Browse(ctx context.Context, opts BrowseOptions) (BrowseResult, error) {
	exists, err := r.Colls.Exists(ctx, r.DB, r.RootPath())
	if err != nil {
		return BrowseResult{}, err
	}
	if !exists {
		return BrowseResult{}, domain.ErrNotFound.New("collection %s is nonexistent", r.RootPath())
	}

	result := BrowseResult{Items: []domain.RequestSummary{}}
	err = r.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM collections WHERE parent_path=?`, r.RootPath()).Scan(&result.Total)
	if err != nil {
		return BrowseResult{}, domain.ErrStorage.Wrap(err)
	}

	order := "c.owner"
	if opts.SortBy == SortByCreateTime {
		order = "c.created_at"
	}
	dir := "ASC"
	if opts.Descending {
		dir = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	// Status and title live as attributes on the request document inside
	// each collection; left joins keep rows with missing attributes visible.
	rows, err := r.DB.QueryContext(ctx, `
SELECT substr(c.path, length(c.parent_path)+2), c.owner, c.created_at,
       COALESCE(ms.value,''), COALESCE(mt.value,'')
FROM collections c
LEFT JOIN metadata ms ON ms.obj_path = c.path || '/' || ? AND ms.attr = ?
LEFT JOIN metadata mt ON mt.obj_path = c.path || '/' || ? AND mt.attr = ?
WHERE c.parent_path = ?
ORDER BY `+order+` `+dir+`
LIMIT ? OFFSET ?`,
		string(domain.ArtifactDatarequest), AttrStatus,
		string(domain.ArtifactDatarequest), AttrTitle,
		r.RootPath(), limit, opts.Offset)
	if err != nil {
		return BrowseResult{}, domain.ErrStorage.Wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.RequestSummary
		if err := rows.Scan(&item.ID, &item.Name, &item.CreateTime, &item.Status, &item.Title); err != nil {
			return BrowseResult{}, domain.ErrStorage.Wrap(err)
		}
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return BrowseResult{}, domain.ErrStorage.Wrap(err)
	}
	return result, nil
}
