package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/services"
)

type stubInventoryService struct {
	adjustFn func(context.Context, services.AdjustStockCommand) (services.ShoeSize, error)
}

func (s *stubInventoryService) AdjustStock(ctx context.Context, cmd services.AdjustStockCommand) (services.ShoeSize, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, cmd)
	}
	return services.ShoeSize{}, errors.New("not implemented")
}

type stubAssetService struct {
	issueFn func(context.Context, services.SignedUploadCommand) (services.SignedAssetResponse, error)
	signFn  func(context.Context, string) (string, error)
}

func (s *stubAssetService) IssueSignedUpload(ctx context.Context, cmd services.SignedUploadCommand) (services.SignedAssetResponse, error) {
	if s.issueFn != nil {
		return s.issueFn(ctx, cmd)
	}
	return services.SignedAssetResponse{}, errors.New("not implemented")
}

func (s *stubAssetService) SignImageURL(ctx context.Context, key string) (string, error) {
	if s.signFn != nil {
		return s.signFn(ctx, key)
	}
	return "", errors.New("not implemented")
}

func staffIdentity() *auth.Identity {
	return &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}}
}

func TestAdminHandlersSaveBrand(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	var captured services.UpsertBrandCommand
	catalog := &stubCatalogService{
		upsertBrandFn: func(_ context.Context, cmd services.UpsertBrandCommand) (services.Brand, error) {
			captured = cmd
			id := "brand-1"
			if cmd.BrandID != nil {
				id = *cmd.BrandID
			}
			return services.Brand{ID: id, Name: cmd.Name, Slug: cmd.Slug, CreatedAt: now, UpdatedAt: now}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Catalog: catalog})

	body := []byte(`{"name":" Stride ","slug":"stride","logo_path":"brands/stride.png"}`)

	t.Run("create", func(t *testing.T) {
		req := authedRequest(http.MethodPost, "/admin/catalog/brands", body, staffIdentity())
		rec := httptest.NewRecorder()
		handlers.createBrand(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
		if captured.BrandID != nil {
			t.Fatalf("create must not carry a brand id, got %+v", captured.BrandID)
		}
		if captured.Name != "Stride" || captured.ActorID != "staff-1" {
			t.Fatalf("unexpected command %+v", captured)
		}
	})

	t.Run("update", func(t *testing.T) {
		router := chi.NewRouter()
		router.Put("/admin/catalog/brands/{brandID}", handlers.updateBrand)

		req := authedRequest(http.MethodPut, "/admin/catalog/brands/brand-7", body, staffIdentity())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if captured.BrandID == nil || *captured.BrandID != "brand-7" {
			t.Fatalf("unexpected brand id %+v", captured.BrandID)
		}
		var resp adminBrandResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Brand.ID != "brand-7" {
			t.Fatalf("unexpected brand payload %+v", resp.Brand)
		}
	})
}

func TestAdminHandlersSaveBrandUnauthenticated(t *testing.T) {
	handlers := NewAdminHandlers(AdminHandlersDeps{Catalog: &stubCatalogService{}})

	req := httptest.NewRequest(http.MethodPost, "/admin/catalog/brands", nil)
	rec := httptest.NewRecorder()
	handlers.createBrand(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminHandlersSaveShoeNormalizesGender(t *testing.T) {
	var captured services.UpsertShoeCommand
	catalog := &stubCatalogService{
		upsertShoeFn: func(_ context.Context, cmd services.UpsertShoeCommand) (services.Shoe, error) {
			captured = cmd
			return services.Shoe{ID: "shoe-1", Name: cmd.Name, Gender: cmd.Gender}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Catalog: catalog})

	body := []byte(`{"brand_id":"brand-1","category_id":"cat-1","name":"Trail Runner","gender":"WOMEN","attributes":{"waterproof":"yes"}}`)
	req := authedRequest(http.MethodPost, "/admin/catalog/shoes", body, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.createShoe(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.Gender != domain.ShoeGenderWomen {
		t.Fatalf("expected lower-cased gender, got %q", captured.Gender)
	}
	if captured.Attributes["waterproof"] != "yes" {
		t.Fatalf("unexpected attributes %+v", captured.Attributes)
	}
}

func TestAdminHandlersListShoesIncludeDeleted(t *testing.T) {
	var captured services.ShoeListFilter
	catalog := &stubCatalogService{
		listShoesFn: func(_ context.Context, filter services.ShoeListFilter) (domain.Page[services.Shoe], error) {
			captured = filter
			return domain.Page[services.Shoe]{}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Catalog: catalog})

	req := authedRequest(http.MethodGet, "/admin/catalog/shoes?include_deleted=true", nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.listShoes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !captured.IncludeDeleted {
		t.Fatal("expected include_deleted filter to be set")
	}
}

func TestAdminHandlersSaveClassificationUppercasesCurrency(t *testing.T) {
	var captured services.UpsertClassificationCommand
	catalog := &stubCatalogService{
		upsertClassificationFn: func(_ context.Context, cmd services.UpsertClassificationCommand) (services.Classification, error) {
			captured = cmd
			return services.Classification{ID: "cls-1", ShoeID: cmd.ShoeID, Currency: cmd.Currency}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Catalog: catalog})

	body := []byte(`{"shoe_id":"shoe-1","color":"black","unit_price":1200000,"currency":"vnd"}`)
	req := authedRequest(http.MethodPost, "/admin/catalog/classifications", body, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.createClassification(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.Currency != "VND" {
		t.Fatalf("expected upper-cased currency, got %q", captured.Currency)
	}
}

func TestAdminHandlersAdjustStock(t *testing.T) {
	var captured services.AdjustStockCommand
	inventory := &stubInventoryService{
		adjustFn: func(_ context.Context, cmd services.AdjustStockCommand) (services.ShoeSize, error) {
			captured = cmd
			return services.ShoeSize{ID: cmd.SizeID, ClassificationID: "cls-1", EUSize: 42, Quantity: 7}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Inventory: inventory})

	router := chi.NewRouter()
	router.Post("/admin/catalog/sizes/{sizeID}:adjust-stock", handlers.adjustStock)

	req := authedRequest(http.MethodPost, "/admin/catalog/sizes/size-1:adjust-stock", []byte(`{"delta":5}`), staffIdentity())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.SizeID != "size-1" || captured.Delta != 5 || captured.ActorID != "staff-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var resp adminSizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Size.Quantity != 7 {
		t.Fatalf("unexpected size payload %+v", resp.Size)
	}
}

func TestAdminHandlersAdjustStockErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid input", err: services.ErrInventoryInvalidInput, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "size not found", err: services.ErrInventorySizeNotFound, wantStatus: http.StatusNotFound, wantCode: "size_not_found"},
		{name: "insufficient stock", err: services.ErrInventoryInsufficientStock, wantStatus: http.StatusConflict, wantCode: "insufficient_stock"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inventory := &stubInventoryService{
				adjustFn: func(context.Context, services.AdjustStockCommand) (services.ShoeSize, error) {
					return services.ShoeSize{}, tc.err
				},
			}
			handlers := NewAdminHandlers(AdminHandlersDeps{Inventory: inventory})

			router := chi.NewRouter()
			router.Post("/admin/catalog/sizes/{sizeID}:adjust-stock", handlers.adjustStock)

			req := authedRequest(http.MethodPost, "/admin/catalog/sizes/size-1:adjust-stock", []byte(`{"delta":-10}`), staffIdentity())
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
			var resp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Error != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, resp.Error)
			}
		})
	}
}

func TestAdminHandlersIssueSignedUpload(t *testing.T) {
	expires := time.Date(2024, time.March, 5, 9, 15, 0, 0, time.UTC)
	var captured services.SignedUploadCommand
	assets := &stubAssetService{
		issueFn: func(_ context.Context, cmd services.SignedUploadCommand) (services.SignedAssetResponse, error) {
			captured = cmd
			return services.SignedAssetResponse{
				Key:       "shoes/thumbs/abc123.jpg",
				URL:       "https://storage.example.com/signed",
				Method:    http.MethodPut,
				Headers:   map[string]string{"Content-Type": cmd.ContentType},
				ExpiresAt: expires,
			}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Assets: assets})

	body := []byte(`{"kind":"THUMBNAIL","file_name":"runner.jpg","content_type":"image/jpeg","size_bytes":204800}`)
	req := authedRequest(http.MethodPost, "/admin/assets/uploads", body, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.issueSignedUpload(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.Kind != "thumbnail" || captured.ActorID != "staff-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var resp signedUploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Method != http.MethodPut || resp.ExpiresAt != expires.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected payload %+v", resp)
	}
}

func TestAdminHandlersIssueSignedUploadInvalid(t *testing.T) {
	assets := &stubAssetService{
		issueFn: func(context.Context, services.SignedUploadCommand) (services.SignedAssetResponse, error) {
			return services.SignedAssetResponse{}, services.ErrAssetInvalidInput
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Assets: assets})

	body := []byte(`{"kind":"thumbnail","file_name":"runner.exe","content_type":"application/octet-stream"}`)
	req := authedRequest(http.MethodPost, "/admin/assets/uploads", body, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.issueSignedUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}
