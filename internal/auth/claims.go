package auth

import (
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/staffmanagement/authservice/internal/policy"
)

// Claims is the normalised view of a verified ID token.
type Claims struct {
	Subject       string
	Email         string
	Username      string
	Name          string
	PhoneNumber   string
	Locale        string
	EmailVerified bool
	PhoneVerified bool
	Groups        policy.GroupSet
}

// standardClaims are decoded with mapstructure from the raw claim map.
type standardClaims struct {
	Subject       string `mapstructure:"sub"`
	Email         string `mapstructure:"email"`
	Name          string `mapstructure:"name"`
	PhoneNumber   string `mapstructure:"phone_number"`
	Locale        string `mapstructure:"locale"`
	EmailVerified bool   `mapstructure:"email_verified"`
	PhoneVerified bool   `mapstructure:"phone_number_verified"`
}

// ClaimsFromMap normalises raw token claims. groupsClaim and usernameClaim name the
// provider specific claims, e.g. cognito:groups and cognito:username.
func ClaimsFromMap(raw map[string]interface{}, groupsClaim, usernameClaim string) Claims {
	var std standardClaims

	// WeaklyTypedInput accepts "true" for the verified flags, some providers send strings.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &std,
	})
	if err == nil {
		_ = decoder.Decode(raw) //nolint:errcheck // partial decodes are fine
	}

	c := Claims{
		Subject:       std.Subject,
		Email:         strings.TrimSpace(std.Email),
		Name:          std.Name,
		PhoneNumber:   std.PhoneNumber,
		Locale:        std.Locale,
		EmailVerified: std.EmailVerified,
		PhoneVerified: std.PhoneVerified,
		Groups:        ExtractGroups(raw, groupsClaim),
	}

	for _, claim := range []string{usernameClaim, "preferred_username", "username"} {
		if claim == "" {
			continue
		}

		if v, ok := raw[claim].(string); ok && v != "" {
			c.Username = v
			break
		}
	}

	return c
}

// ExtractGroups reads the group claim. It accepts an absent claim, string arrays, arrays of
// objects with a name field ([{"name": "ADMIN"}]) and comma joined strings. Entries are trimmed
// and blanks dropped.
func ExtractGroups(raw map[string]interface{}, claim string) policy.GroupSet {
	groups := policy.NewGroupSet()

	if claim == "" {
		claim = "groups"
	}

	value, ok := raw[claim]
	if !ok || value == nil {
		return groups
	}

	switch v := value.(type) {
	case string:
		return policy.ParseList(v)
	case []string:
		for _, g := range v {
			groups.Add(g)
		}
	case []interface{}:
		for _, item := range v {
			switch g := item.(type) {
			case string:
				groups.Add(g)
			case map[string]interface{}:
				groups.Add(nestedGroupName(g))
			}
		}
	}

	return groups
}

// nestedGroupName decodes {"name": ...} objects, falling back to value and id.
func nestedGroupName(obj map[string]interface{}) string {
	var named struct {
		Name  string `mapstructure:"name"`
		Value string `mapstructure:"value"`
		ID    string `mapstructure:"id"`
	}

	if err := mapstructure.WeakDecode(obj, &named); err != nil {
		return ""
	}

	switch {
	case named.Name != "":
		return named.Name
	case named.Value != "":
		return named.Value
	default:
		return named.ID
	}
}
