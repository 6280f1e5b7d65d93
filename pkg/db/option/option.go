package option

import (
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/dealflow/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

func WithOrder(order string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		order = strings.TrimSpace(order)
		if order == "" {
			return db
		}
		return db.Order(order)
	})
}

func WithLimit(limit int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithOffset(offset int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if offset <= 0 {
			return db
		}
		return db.Offset(offset)
	})
}

// ApplyPagination applies keyset pagination over (created_at, id) descending.
// One extra row is fetched so callers can detect a further page.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if token := strings.TrimSpace(page.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil && cursor != nil {
				createdAt, perr := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
				id, ierr := strconv.ParseInt(cursor.ID, 10, 64)
				if perr == nil && ierr == nil {
					db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
						createdAt.UTC(), createdAt.UTC(), id)
				}
			}
		}
		size := page.PageSize
		if size <= 0 {
			size = 50
		}
		return db.Limit(size + 1)
	})
}

// WithSortBy orders by an allow-listed column, then by id of the same table. Unknown
// fields fall back to fallback, and any direction other than "asc" sorts descending.
func WithSortBy(field, direction string, allowed map[string]string, fallback string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column, ok := allowed[strings.TrimSpace(field)]
		if !ok {
			column = fallback
		}
		if column == "" {
			return db
		}
		dir := "DESC"
		if strings.EqualFold(strings.TrimSpace(direction), "asc") {
			dir = "ASC"
		}
		tiebreak := "id"
		if table, _, found := strings.Cut(column, "."); found {
			tiebreak = table + ".id"
		}
		return db.Order(column + " " + dir).Order(tiebreak + " " + dir)
	})
}
