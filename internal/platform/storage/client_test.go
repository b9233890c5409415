package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/solestride/api/internal/platform/auth"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func newTestClient(t *testing.T, now time.Time) (*Client, *fakeSigner) {
	t.Helper()
	signer := &fakeSigner{email: "signer@solestride.iam.gserviceaccount.com"}
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, signer
}

func TestSignedURLUploadSuccess(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client, signer := newTestClient(t, now)

	res, err := client.SignedURL(context.Background(), "solestride-assets", "catalog/images/img123.png", SignedURLOptions{
		Upload: &UploadOptions{
			Method:              "PUT",
			ContentType:         "image/png",
			ContentMD5:          "xN0dYbCPv0CM0k9d1u8G7g==",
			RequireMD5:          true,
			AllowedContentTypes: []string{"image/png"},
			MaxSize:             1 << 20,
			ExpiresIn:           10 * time.Minute,
		},
	})
	if err != nil {
		t.Fatalf("SignedURL returned error: %v", err)
	}

	if res.Method != httpMethodPut {
		t.Fatalf("expected method PUT, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", res.ExpiresAt)
	}
	wantHeaders := map[string]string{
		"Content-Type":                "image/png",
		"Content-MD5":                 "xN0dYbCPv0CM0k9d1u8G7g==",
		"x-goog-content-length-range": "0,1048576",
	}
	for name, want := range wantHeaders {
		if got := res.Headers[name]; got != want {
			t.Fatalf("header %s = %q, want %q", name, got, want)
		}
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if len(signer.payloads) == 0 {
		t.Fatalf("expected signer to be invoked")
	}
}

func TestSignedURLDownloadAllowsStaff(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client, _ := newTestClient(t, now)

	res, err := client.SignedURL(context.Background(), "solestride-assets", "catalog/images/img123.png", SignedURLOptions{
		Download: &DownloadOptions{
			OwnerID:   "user-123",
			Identity:  &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}},
			ExpiresIn: 5 * time.Minute,
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Method != httpMethodGet {
		t.Fatalf("expected GET method, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", res.ExpiresAt)
	}
}

func TestSignedURLValidation(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client, _ := newTestClient(t, now)

	cases := []struct {
		name    string
		bucket  string
		object  string
		opts    SignedURLOptions
		wantErr error
	}{
		{
			name:    "missing bucket",
			object:  "catalog/images/a.png",
			opts:    SignedURLOptions{Upload: &UploadOptions{ContentType: "image/png"}},
			wantErr: errInvalidBucket,
		},
		{
			name:    "missing object",
			bucket:  "solestride-assets",
			opts:    SignedURLOptions{Upload: &UploadOptions{ContentType: "image/png"}},
			wantErr: errInvalidObject,
		},
		{
			name:    "no intent",
			bucket:  "solestride-assets",
			object:  "catalog/images/a.png",
			wantErr: errInvalidOptions,
		},
		{
			name:   "both intents",
			bucket: "solestride-assets",
			object: "catalog/images/a.png",
			opts: SignedURLOptions{
				Upload:   &UploadOptions{ContentType: "image/png"},
				Download: &DownloadOptions{AllowAnonymous: true},
			},
			wantErr: errBothIntents,
		},
		{
			name:   "content type denied",
			bucket: "solestride-assets",
			object: "catalog/images/a.pdf",
			opts: SignedURLOptions{
				Upload: &UploadOptions{
					ContentType:         "application/pdf",
					AllowedContentTypes: []string{"image/png"},
				},
			},
			wantErr: errContentTypeDenied,
		},
		{
			name:   "md5 required",
			bucket: "solestride-assets",
			object: "catalog/images/a.png",
			opts: SignedURLOptions{
				Upload: &UploadOptions{ContentType: "image/png", RequireMD5: true},
			},
			wantErr: errMD5Required,
		},
		{
			name:   "upload method denied",
			bucket: "solestride-assets",
			object: "catalog/images/a.png",
			opts: SignedURLOptions{
				Upload: &UploadOptions{Method: "DELETE", ContentType: "image/png"},
			},
			wantErr: errMethodNotAllowed,
		},
		{
			name:   "download expiry too long",
			bucket: "solestride-assets",
			object: "catalog/images/a.png",
			opts: SignedURLOptions{
				Download: &DownloadOptions{
					Identity:  &auth.Identity{UID: "user-1", Roles: []string{auth.RoleUser}},
					OwnerID:   "user-1",
					ExpiresIn: 30 * time.Minute,
				},
			},
			wantErr: errExpiryTooLong,
		},
		{
			name:   "download other shopper denied",
			bucket: "solestride-assets",
			object: "catalog/images/a.png",
			opts: SignedURLOptions{
				Download: &DownloadOptions{
					OwnerID:  "user-123",
					Identity: &auth.Identity{UID: "user-456"},
				},
			},
			wantErr: ErrPermissionDenied,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.SignedURL(context.Background(), tc.bucket, tc.object, tc.opts)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
