package auth

import (
	"slices"

	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/model"
)

// Authorize is the role stage. An empty required set admits any
// authenticated principal; otherwise the principal's role must be listed.
// It never looks at session state.
func Authorize(p Principal, operation string, required []model.Role) error {
	if len(required) == 0 {
		return nil
	}
	if slices.Contains(required, p.Role) {
		return nil
	}
	return autherr.New(autherr.RoleForbidden, "role %q denied on %s (requires %v)", p.Role, operation, required)
}
