package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	pstorage "github.com/solestride/api/internal/platform/storage"
)

const (
	maxCatalogImageSize = int64(10 * 1024 * 1024) // 10 MiB
	signedImageExpiry   = 15 * time.Minute

	assetLoggerEventIssued = "asset.upload.issued"
)

var (
	// ErrAssetInvalidInput indicates the caller provided an invalid argument.
	ErrAssetInvalidInput = errors.New("asset: invalid input")
	// ErrAssetUnavailable indicates the signing backend rejected the request.
	ErrAssetUnavailable = errors.New("asset: unavailable")
)

// AssetService issues signed URLs for catalog imagery: uploads for staff,
// short-lived read URLs for product pages.
type AssetService interface {
	IssueSignedUpload(ctx context.Context, cmd SignedUploadCommand) (SignedAssetResponse, error)
	SignImageURL(ctx context.Context, key string) (string, error)
}

// SignedUploadCommand describes a staff request for a catalog image upload URL.
type SignedUploadCommand struct {
	ActorID     string
	Kind        string
	FileName    string
	ContentType string
	SizeBytes   int64
	ContentMD5  string
}

var catalogImageKinds = map[string][]string{
	"png":  {"image/png"},
	"jpg":  {"image/jpeg", "image/jpg"},
	"webp": {"image/webp"},
}

// AssetServiceDeps wires dependencies for the asset service implementation.
type AssetServiceDeps struct {
	Storage     *pstorage.Client
	Bucket      string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type assetService struct {
	storage *pstorage.Client
	bucket  string
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewAssetService constructs an AssetService backed by the storage signing client.
func NewAssetService(deps AssetServiceDeps) (AssetService, error) {
	if deps.Storage == nil {
		return nil, errors.New("asset service: storage client is required")
	}
	if strings.TrimSpace(deps.Bucket) == "" {
		return nil, errors.New("asset service: bucket is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &assetService{
		storage: deps.Storage,
		bucket:  strings.TrimSpace(deps.Bucket),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *assetService) IssueSignedUpload(ctx context.Context, cmd SignedUploadCommand) (SignedAssetResponse, error) {
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: actor id is required", ErrAssetInvalidInput)
	}

	kind := strings.ToLower(strings.TrimSpace(cmd.Kind))
	allowedTypes, ok := catalogImageKinds[kind]
	if !ok {
		return SignedAssetResponse{}, fmt.Errorf("%w: image kind %q not allowed", ErrAssetInvalidInput, cmd.Kind)
	}

	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if contentType == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: content_type is required", ErrAssetInvalidInput)
	}

	if cmd.SizeBytes <= 0 {
		return SignedAssetResponse{}, fmt.Errorf("%w: size_bytes must be positive", ErrAssetInvalidInput)
	}
	if cmd.SizeBytes > maxCatalogImageSize {
		return SignedAssetResponse{}, fmt.Errorf("%w: size_bytes exceeds maximum (%d)", ErrAssetInvalidInput, maxCatalogImageSize)
	}

	key, err := pstorage.CatalogImageKey(s.newID(), kind)
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("%w: %v", ErrAssetInvalidInput, err)
	}

	result, err := s.storage.SignedURL(ctx, s.bucket, key, pstorage.SignedURLOptions{
		Upload: &pstorage.UploadOptions{
			ContentType:         contentType,
			ContentMD5:          strings.TrimSpace(cmd.ContentMD5),
			AllowedContentTypes: allowedTypes,
			MaxSize:             cmd.SizeBytes,
			ExpiresIn:           signedImageExpiry,
		},
	})
	if err != nil {
		return SignedAssetResponse{}, s.mapSigningError(err)
	}

	s.logger(ctx, assetLoggerEventIssued, map[string]any{
		"actorId":   actorID,
		"key":       key,
		"method":    result.Method,
		"expiresAt": result.ExpiresAt,
	})

	return SignedAssetResponse{
		Key:       key,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
		Method:    result.Method,
		Headers:   result.Headers,
	}, nil
}

// SignImageURL resolves a stored object key into a short-lived read URL.
// Catalog imagery is public, so no identity check applies.
func (s *assetService) SignImageURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: object key is required", ErrAssetInvalidInput)
	}
	if !pstorage.IsCatalogImageKey(key) {
		return "", fmt.Errorf("%w: key is outside catalog imagery", ErrAssetInvalidInput)
	}

	result, err := s.storage.SignedURL(ctx, s.bucket, key, pstorage.SignedURLOptions{
		Download: &pstorage.DownloadOptions{
			ExpiresIn:      signedImageExpiry,
			CacheControl:   "public, max-age=300",
			AllowAnonymous: true,
		},
	})
	if err != nil {
		return "", s.mapSigningError(err)
	}
	return result.URL, nil
}

func (s *assetService) mapSigningError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
}
