package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/platform/pagination"
)

const (
	defaultPageSize = pagination.DefaultPageSize
	maxPageSize     = pagination.MaxPageSize
)

func normalizePageRequest(req domain.PageRequest) domain.PageRequest {
	if req.Page < 1 {
		req.Page = 1
	}
	req.PageSize = pagination.ClampPageSize(req.PageSize)
	return req
}

func newPage[T any](items []T, req domain.PageRequest, total int64) domain.Page[T] {
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	}
	return domain.Page[T]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalItems: total,
		TotalPages: totalPages,
		HasNext:    req.Page < totalPages,
		HasPrev:    req.Page > 1 && totalPages > 0,
	}
}

// encodeCursorToken packs a timestamp+document ID pair into an opaque page
// token for cursor-based listings.
func encodeCursorToken(at time.Time, docID string) string {
	return pagination.EncodeToken(pagination.Cursor{SortKey: at.UTC(), DocID: docID})
}

func decodeCursorToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	return cursor.SortKey, cursor.DocID, nil
}

// notFoundf builds a NotFound status error so WrapError categorises query
// misses the same way as document misses.
func notFoundf(format string, args ...any) error {
	return status.Errorf(codes.NotFound, format, args...)
}

// countDocuments runs a server-side count aggregation over the query.
func countDocuments(ctx context.Context, query firestore.Query, op string) (int64, error) {
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError(op, err)
	}
	raw, ok := results["total"]
	if !ok {
		return 0, pfirestore.WrapError(op, errors.New("count aggregation missing result"))
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, pfirestore.WrapError(op, errors.New("count aggregation returned unexpected type"))
	}
	return value.GetIntegerValue(), nil
}
