package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// Permissions guarding the knowledge graph API.
const (
	PermArticleCreate = "article.create"
	PermArticleView   = "article.view"
	PermGraphView     = "graph.view"
	PermConceptRelink = "concept.relink"
)

const RoleAdmin = "admin"

var allPermissions = []string{
	PermArticleCreate,
	PermArticleView,
	PermGraphView,
	PermConceptRelink,
}

// PermissionsForRole is the grant of a caller whose token carries no
// permissions claim. Admins get everything; everyone else may only read
// articles and the graph.
func PermissionsForRole(role string) []string {
	if role == RoleAdmin {
		return slices.Clone(allPermissions)
	}
	return []string{PermArticleView, PermGraphView}
}

// HasPermission reports whether user may use permission. Admins hold every
// permission even when their token lists fewer.
func HasPermission(user *AppUser, permission string) bool {
	if user == nil {
		return false
	}
	return IsAdmin(user) || slices.Contains(user.Permissions, permission)
}

func HasAnyPermission(user *AppUser, permissions ...string) bool {
	return slices.ContainsFunc(permissions, func(p string) bool {
		return HasPermission(user, p)
	})
}

func IsAdmin(user *AppUser) bool {
	return user != nil && user.Role == RoleAdmin
}

func RequirePermission(permission string) echo.MiddlewareFunc {
	return requireWith(func(user *AppUser) bool {
		return HasPermission(user, permission)
	}, "Forbidden: missing permission "+permission)
}

func RequireAnyPermission(permissions ...string) echo.MiddlewareFunc {
	return requireWith(func(user *AppUser) bool {
		return HasAnyPermission(user, permissions...)
	}, "Forbidden: missing required permission")
}

func requireWith(allowed func(*AppUser) bool, forbidden string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			if !allowed(user) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": forbidden})
			}
			return next(c)
		}
	}
}
