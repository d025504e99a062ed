package torm

import "context"

// Page wraps one page of a paged query result
type Page[T any] struct {
	PageNumber int   `json:"pageNumber"` // page number, 1-based
	PageSize   int   `json:"pageSize"`   // requested page size
	TotalPage  int   `json:"totalPage"`  // total page
	TotalRow   int64 `json:"totalRow"`   // total row
	List       []T   `json:"list"`       // list result of this page
}

// NewPage creates a new Page instance and calculates the total pages
func NewPage[T any](list []T, pageNumber, pageSize int, totalRow int64) *Page[T] {
	totalPage := 0
	if pageSize > 0 {
		totalPage = int((totalRow + int64(pageSize) - 1) / int64(pageSize))
	}
	return &Page[T]{
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalPage:  totalPage,
		TotalRow:   totalRow,
		List:       list,
	}
}

// IsFirstPage returns true if the current page is the first page
func (p *Page[T]) IsFirstPage() bool {
	return p.PageNumber <= 1
}

// IsLastPage returns true if the current page is the last page
func (p *Page[T]) IsLastPage() bool {
	return p.PageNumber >= p.TotalPage
}

// ToJson serializes the page to JSON
func (p *Page[T]) ToJson() string {
	return ToJson(p)
}

// QueryPage returns one page of records wrapped with paging totals.
// 总行数取自主键缓存的键集大小，与当页数据同源
func (to *TableOperations[T]) QueryPage(sortField string, ascending bool, page, pageSize int, restriction *Restriction) (*Page[*T], error) {
	return to.QueryPageContext(context.Background(), sortField, ascending, page, pageSize, restriction)
}

// QueryPageContext is the cancellable variant of QueryPage
func (to *TableOperations[T]) QueryPageContext(ctx context.Context, sortField string, ascending bool, page, pageSize int, restriction *Restriction) (*Page[*T], error) {
	records, err := to.QueryRecordsPagedContext(ctx, sortField, ascending, page, pageSize, restriction)
	if err != nil {
		return nil, err
	}
	totalRow := int64(0)
	if size := to.PrimaryKeyCacheSize(); size >= 0 {
		totalRow = int64(size)
	}
	if page < 1 {
		page = 1
	}
	return NewPage(records, page, pageSize, totalRow), nil
}
