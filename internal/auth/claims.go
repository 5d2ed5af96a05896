package auth

import (
	"strings"

	"github.com/oidc-demo/oidc-demo-web/internal/web/session"
)

// keycloakRealmRoles is where Keycloak puts realm roles when no roles mapper is configured.
const keycloakRealmRoles = "realm_access.roles"

type claimSource interface {
	Claims(v any) error
}

// identityClaims are the ID token claims shown in the UI.
type identityClaims struct {
	Sub               string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
}

// identityFromToken extracts the identity of a verified token.
// rolesClaim may be a dotted path into nested objects like "resource_access.web.roles".
func identityFromToken(tok claimSource, rolesClaim string) (session.Identity, error) {
	var c identityClaims
	if err := tok.Claims(&c); err != nil {
		return session.Identity{}, err
	}

	var all map[string]any
	if err := tok.Claims(&all); err != nil {
		return session.Identity{}, err
	}

	name := c.Name
	if name == "" {
		name = strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	}

	roles, ok := stringsAt(all, rolesClaim)
	if !ok {
		roles, _ = stringsAt(all, keycloakRealmRoles)
	}

	return session.Identity{
		Subject:  c.Sub,
		Username: c.PreferredUsername,
		Email:    c.Email,
		Name:     name,
		Roles:    roles,
	}, nil
}

// stringsAt resolves path in claims and returns the string values found there.
func stringsAt(claims map[string]any, path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}

	var v any = claims

	for _, part := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}

		if v, ok = m[part]; !ok {
			return nil, false
		}
	}

	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		tmp := make([]string, 0, len(vv))
		for _, r := range vv {
			if s, ok := r.(string); ok {
				tmp = append(tmp, s)
			}
		}

		return tmp, true
	case string:
		return strings.Fields(vv), true
	default:
		return nil, false
	}
}
