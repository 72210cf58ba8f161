package document

import (
	"context"
	"fmt"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// PageRequest is the listing contract: optional filters, optional order,
// and page coordinates. Build it with NewPageRequest so omitted fields
// keep their defaults when decoded over it.
type PageRequest[F any] struct {
	Filters   *F          `json:"filters,omitempty"`
	Order     []OrderItem `json:"order,omitempty"`
	Page      int         `json:"page"`
	PageSize  int         `json:"page_size"`
	SortBy    string      `json:"sort_by,omitempty"`
	SortOrder string      `json:"sort_order,omitempty"`
}

// NewPageRequest returns a request on the first page with the default size.
func NewPageRequest[F any]() PageRequest[F] {
	return PageRequest[F]{Page: DefaultPage, PageSize: DefaultPageSize}
}

// Validate checks page >= 0, 1 <= page_size <= MaxPageSize and the
// sort_order literal.
func (r PageRequest[F]) Validate() error {
	if r.Page < 0 {
		return fmt.Errorf("%w: page must be >= 0", ErrInvalidPage)
	}
	if r.PageSize < 1 || r.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidPage, MaxPageSize)
	}
	switch r.SortOrder {
	case "", "asc", "desc":
	default:
		return fmt.Errorf("%w: sort_order must be asc or desc", ErrInvalidPage)
	}
	return nil
}

// Offset is the number of documents before the page. Pages 0 and 1 both
// start at the beginning.
func (r PageRequest[F]) Offset() int64 {
	if r.Page <= 1 {
		return 0
	}
	return int64(r.Page-1) * int64(r.PageSize)
}

// Limit is the page size.
func (r PageRequest[F]) Limit() int64 { return int64(r.PageSize) }

// Sort resolves the request's ordering against shape. Order wins over the
// sort_by/sort_order pair; with neither the result is the zero Sort.
func (r PageRequest[F]) Sort(shape *Shape) (Sort, error) {
	if len(r.Order) > 0 {
		return shape.SortFromOrder(r.Order)
	}
	if r.SortBy != "" {
		return shape.Sort([]string{r.SortBy}, r.SortOrder != "desc")
	}
	return Sort{}, nil
}

// PageResponse is one page of a listing.
type PageResponse[I any] struct {
	Page       int   `json:"page"`
	Pages      int64 `json:"pages"`
	TotalCount int64 `json:"total_count"`
	Items      []I   `json:"items"`
}

// PageCount is ceil(total / pageSize).
func PageCount(total int64, pageSize int) int64 {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	size := int64(pageSize)
	return (total + size - 1) / size
}

// Paginate lists one page of repo. The request filters are compiled against
// the repository shape and conjoined with base; the page and the total
// count are computed over that same clause.
func Paginate[T any, P interface {
	*T
	Document
}, F any](ctx context.Context, repo *Repository[T, P], req PageRequest[F], base Clause, resolveLinks bool) (PageResponse[P], error) {
	if err := req.Validate(); err != nil {
		return PageResponse[P]{}, err
	}
	order, err := req.Sort(repo.Shape())
	if err != nil {
		return PageResponse[P]{}, err
	}

	where := AllOf(Compile(req.Filters, repo.Shape()), base)
	items, err := repo.GetMany(ctx, FindOptions{
		Where:        where,
		Sort:         order,
		Skip:         req.Offset(),
		Limit:        req.Limit(),
		ResolveLinks: resolveLinks,
	})
	if err != nil {
		return PageResponse[P]{}, err
	}
	total, err := repo.Count(ctx, where)
	if err != nil {
		return PageResponse[P]{}, err
	}
	return PageResponse[P]{
		Page:       req.Page,
		Pages:      PageCount(total, req.PageSize),
		TotalCount: total,
		Items:      items,
	}, nil
}

// MapPage converts the items of a page, keeping its coordinates.
func MapPage[A, B any](p PageResponse[A], fn func(A) B) PageResponse[B] {
	items := make([]B, len(p.Items))
	for i, it := range p.Items {
		items[i] = fn(it)
	}
	return PageResponse[B]{Page: p.Page, Pages: p.Pages, TotalCount: p.TotalCount, Items: items}
}
