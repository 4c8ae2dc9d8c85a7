package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/perfume-decants/api/internal/domain"
	pfirestore "github.com/perfume-decants/api/internal/platform/firestore"
	"github.com/perfume-decants/api/internal/platform/pagination"
	"github.com/perfume-decants/api/internal/repositories"
)

const auditLogsCollection = "auditLogs"

// AuditLogRepository implements repositories.AuditLogRepository backed by Firestore.
type AuditLogRepository struct {
	provider *pfirestore.Provider
	entries  *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	return &AuditLogRepository{
		provider: provider,
		entries:  pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection),
	}, nil
}

// Append stores the entry. Entries are never updated or deleted.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.provider == nil {
		return errors.New("audit log repository not initialised")
	}
	ref, err := r.entries.DocumentRef(ctx, entry.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newAuditLogDocument(entry)); err != nil {
		return pfirestore.WrapError("auditlogs.append", err)
	}
	return nil
}

// List returns audit entries newest first, optionally narrowed by actor or action.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("audit log repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}
	startAfter, err := decodeCreatedAtCursor(cursor)
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	docs, err := r.entries.Query(ctx, func(q firestore.Query) firestore.Query {
		if actor := strings.TrimSpace(filter.Actor); actor != "" {
			q = q.Where("actor", "==", actor)
		}
		if action := strings.TrimSpace(filter.Action); action != "" {
			q = q.Where("action", "==", action)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	page := domain.CursorPage[domain.AuditLogEntry]{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	token, err := encodeNextToken(docs, hasMore, func(doc pfirestore.Document[auditLogDocument]) pagination.Cursor {
		return createdAtCursor(doc.Data.CreatedAt, doc.ID)
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}
	page.NextPageToken = token
	return page, nil
}
