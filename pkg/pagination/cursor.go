package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/medicore/opd-api/pkg/errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is the decoded form of an opaque page cursor. SortValue is the
// last-seen value of the collection's sort key, ID the last-seen row id as
// the stability tie-break.
type Cursor struct {
	SortValue string    `json:"v"`
	ID        uuid.UUID `json:"id"`
}

// Encode produces an opaque cursor string from the sort value and id of the
// last row on a page.
func Encode(sortValue string, id uuid.UUID) string {
	raw, _ := json.Marshal(Cursor{SortValue: sortValue, ID: id})
	return base64.URLEncoding.EncodeToString(raw)
}

// Decode parses an opaque cursor. A malformed cursor is a validation error,
// never an internal one: clients can send arbitrary strings here.
func Decode(cursor string) (*Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, errors.Validation("invalid cursor", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errors.Validation("invalid cursor", err)
	}
	if c.ID == uuid.Nil {
		return nil, errors.Validation("invalid cursor", fmt.Errorf("missing id"))
	}
	return &c, nil
}

// Page holds the pagination parameters of a list request.
type Page struct {
	Limit  int    `json:"limit" form:"limit"`
	Cursor string `json:"cursor" form:"cursor"`
}

// Normalize clamps the limit into [1, MaxLimit], applying the default for
// an unset limit, and decodes the cursor if one was supplied.
func (p Page) Normalize() (limit int, cursor *Cursor, err error) {
	limit = p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if p.Cursor != "" {
		cursor, err = Decode(p.Cursor)
		if err != nil {
			return 0, nil, err
		}
	}
	return limit, cursor, nil
}

// Trim implements the limit+1 protocol: repositories fetch one row more than
// requested, and Trim derives hasMore and drops the extra row. nextFn maps
// the last retained row to its (sortValue, id) pair for the next cursor.
func Trim[T any](rows []T, limit int, nextFn func(T) (string, uuid.UUID)) (items []T, nextCursor string, hasMore bool) {
	if len(rows) > limit {
		rows = rows[:limit]
		hasMore = true
	}
	if hasMore && len(rows) > 0 {
		v, id := nextFn(rows[len(rows)-1])
		nextCursor = Encode(v, id)
	}
	return rows, nextCursor, hasMore
}
