package storage

import (
	"errors"

	"github.com/solestride/api/internal/platform/auth"
)

// ErrPermissionDenied is returned when the caller lacks permission to access the asset.
var ErrPermissionDenied = errors.New("storage: permission denied")

// AuthorizeDownload decides whether identity may read the object owned by
// ownerID. Catalog imagery is signed with allowAnonymous; owner-scoped
// objects admit the owner and back-office staff.
func AuthorizeDownload(identity *auth.Identity, ownerID string, allowAnonymous bool) error {
	switch {
	case allowAnonymous:
		return nil
	case identity == nil:
		return ErrPermissionDenied
	case ownerID != "" && identity.UID == ownerID:
		return nil
	case identity.IsStaff():
		return nil
	default:
		return ErrPermissionDenied
	}
}
