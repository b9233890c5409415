package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

const auditLogCollection = "auditLogs"

// AuditLogRepository stores immutable audit trail entries.
type AuditLogRepository struct {
	provider *pfirestore.Provider
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	return &AuditLogRepository{provider: provider}, nil
}

// Append writes the entry. Entries are never updated or deleted afterwards.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}

	ref := coll.NewDoc()
	if id := strings.TrimSpace(entry.ID); id != "" {
		ref = coll.Doc(id)
	}
	doc := fromDomainAuditEntry(entry)
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("auditLogs.append", err)
	}
	return nil
}

// List returns entries matching the filter, newest first.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	query := coll.Query
	if v := strings.TrimSpace(filter.TargetRef); v != "" {
		query = query.Where("targetRef", "==", v)
	}
	if v := strings.TrimSpace(filter.Actor); v != "" {
		query = query.Where("actor", "==", v)
	}
	if v := strings.TrimSpace(filter.ActorType); v != "" {
		query = query.Where("actorType", "==", v)
	}
	if v := strings.TrimSpace(filter.Action); v != "" {
		query = query.Where("action", "==", v)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}

	limit := filter.Pagination.PageSize
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query = query.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(limit + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeCursorToken(token)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("auditLogs.list: invalid page token: %w", err)
		}
		query = query.StartAfter(tokenTime, tokenID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []domain.AuditLogEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, pfirestore.WrapError("auditLogs.list", err)
		}
		var doc auditLogDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("decode audit log %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, doc.toDomain(snap.Ref.ID))
	}

	nextToken := ""
	if len(entries) > limit {
		last := entries[limit-1]
		nextToken = encodeCursorToken(last.CreatedAt, last.ID)
		entries = entries[:limit]
	}

	return domain.CursorPage[domain.AuditLogEntry]{
		Items:         entries,
		NextPageToken: nextToken,
	}, nil
}

func (r *AuditLogRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("audit log repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(auditLogCollection), nil
}

type auditLogDocument struct {
	Actor     string         `firestore:"actor"`
	ActorType string         `firestore:"actorType"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef,omitempty"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	IPHash    string         `firestore:"ipHash,omitempty"`
	UserAgent string         `firestore:"userAgent,omitempty"`
	Severity  string         `firestore:"severity"`
	RequestID string         `firestore:"requestId,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

func fromDomainAuditEntry(entry domain.AuditLogEntry) auditLogDocument {
	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var metadata map[string]any
	if len(entry.Metadata) > 0 {
		metadata = make(map[string]any, len(entry.Metadata))
		for k, v := range entry.Metadata {
			metadata[k] = v
		}
	}
	return auditLogDocument{
		Actor:     strings.TrimSpace(entry.Actor),
		ActorType: strings.TrimSpace(entry.ActorType),
		Action:    strings.TrimSpace(entry.Action),
		TargetRef: strings.TrimSpace(entry.TargetRef),
		Metadata:  metadata,
		IPHash:    strings.TrimSpace(entry.IPHash),
		UserAgent: strings.TrimSpace(entry.UserAgent),
		Severity:  strings.TrimSpace(entry.Severity),
		RequestID: strings.TrimSpace(entry.RequestID),
		CreatedAt: createdAt,
	}
}

func (d auditLogDocument) toDomain(id string) domain.AuditLogEntry {
	var metadata map[string]any
	if len(d.Metadata) > 0 {
		metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			metadata[k] = v
		}
	}
	return domain.AuditLogEntry{
		ID:        id,
		Actor:     d.Actor,
		ActorType: d.ActorType,
		Action:    d.Action,
		TargetRef: d.TargetRef,
		Metadata:  metadata,
		IPHash:    d.IPHash,
		UserAgent: d.UserAgent,
		Severity:  d.Severity,
		RequestID: d.RequestID,
		CreatedAt: d.CreatedAt,
	}
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
