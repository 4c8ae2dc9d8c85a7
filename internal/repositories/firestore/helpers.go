package firestore

import (
	"errors"
	"time"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/perfume-decants/api/internal/platform/firestore"
	"github.com/perfume-decants/api/internal/platform/pagination"
)

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isIteratorDone(err error) bool {
	return errors.Is(err, iterator.Done)
}

// createdAtCursor encodes a createdAt-desc position as [RFC3339Nano, id].
func createdAtCursor(createdAt time.Time, id string) pagination.Cursor {
	return pagination.Cursor{StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), id}}
}

// decodeCreatedAtCursor restores the typed [time, id] pair from a decoded token.
func decodeCreatedAtCursor(cursor pagination.Cursor) ([]any, error) {
	if cursor.IsZero() {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}
	str, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	ts, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	return []any{ts, id}, nil
}

// encodeNextToken produces the next page token when more documents remain.
func encodeNextToken[T any](docs []pfirestore.Document[T], hasMore bool, position func(pfirestore.Document[T]) pagination.Cursor) (string, error) {
	if !hasMore || len(docs) == 0 {
		return "", nil
	}
	return pagination.EncodeToken(position(docs[len(docs)-1]))
}
