package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/config"
)

const ldapTimeout = 10 * time.Second

// ldapConn is the subset of *ldap.Conn used by the backend.
type ldapConn interface {
	Bind(username, password string) error
	Modify(req *ldap.ModifyRequest) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// LDAP is a Directory backed by LDAP group entries below GroupBaseDN.
// Keys are user DNs; a key that is not a DN is reported as ErrIdentityNotFound
// so Client resolves it through the configured attributes.
type LDAP struct {
	cfg  config.LDAP
	dial func() (ldapConn, error)
}

// NewLDAP creates the backend. Connections are opened per call.
func NewLDAP(cfg config.LDAP) *LDAP {
	if cfg.GroupMemberAttribute == "" {
		cfg.GroupMemberAttribute = "member"
	}

	l := &LDAP{cfg: cfg}
	l.dial = l.connect

	return l
}

// connect dials the server, upgrades to TLS if requested and binds the service account.
func (l *LDAP) connect() (ldapConn, error) {
	var tlsConfig *tls.Config

	u, err := url.Parse(l.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid LDAP url: %w", err)
	}

	if u.Scheme == "ldaps" || l.cfg.StartTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: l.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test servers
			ServerName:         u.Hostname(),
		}
	}

	conn, err := ldap.DialURL(l.cfg.URL, ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}

	if u.Scheme != "ldaps" && l.cfg.StartTLS {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			closeLDAP(conn)
			return nil, fmt.Errorf("failed to start TLS: %w", errStartTLS)
		}
	}

	conn.SetTimeout(ldapTimeout)

	if l.cfg.BindDN != "" {
		if errBind := conn.Bind(l.cfg.BindDN, l.cfg.BindPassword); errBind != nil {
			closeLDAP(conn)
			return nil, fmt.Errorf("failed to bind with service account: %w", errBind)
		}
	}

	return conn, nil
}

func closeLDAP(conn ldapConn) {
	if errClose := conn.Close(); errClose != nil {
		log.Warn().Err(errClose).Msg("failed to close LDAP connection")
	}
}

func (l *LDAP) groupDN(group string) string {
	return fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(group), l.cfg.GroupBaseDN)
}

func checkDN(key string) error {
	dn, err := ldap.ParseDN(key)
	if err != nil || len(dn.RDNs) == 0 {
		return fmt.Errorf("%w: %q is not a DN", ErrIdentityNotFound, key)
	}

	return nil
}

func (l *LDAP) modify(key, group string, add bool) error {
	if err := checkDN(key); err != nil {
		return err
	}

	conn, err := l.dial()
	if err != nil {
		return err
	}
	defer closeLDAP(conn)

	req := ldap.NewModifyRequest(l.groupDN(group), nil)
	if add {
		req.Add(l.cfg.GroupMemberAttribute, []string{key})
	} else {
		req.Delete(l.cfg.GroupMemberAttribute, []string{key})
	}

	err = conn.Modify(req)

	switch {
	case err == nil:
		return nil
	case add && ldap.IsErrorWithCode(err, ldap.LDAPResultAttributeOrValueExists):
		return nil
	case !add && ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchAttribute):
		return nil
	default:
		return fmt.Errorf("failed to modify group %s: %w", group, err)
	}
}

// AddMemberToGroup implements Directory.
func (l *LDAP) AddMemberToGroup(_ context.Context, key, group string) error {
	return l.modify(key, group, true)
}

// RemoveMemberFromGroup implements Directory.
func (l *LDAP) RemoveMemberFromGroup(_ context.Context, key, group string) error {
	return l.modify(key, group, false)
}

// FindIdentityKeyByAttribute implements Directory and returns the DN of the matching user entry.
func (l *LDAP) FindIdentityKeyByAttribute(_ context.Context, attribute, value string) (string, error) {
	var ldapAttr string

	switch attribute {
	case AttributeSubject:
		ldapAttr = l.cfg.SubjectAttribute
	case AttributeEmail:
		ldapAttr = l.cfg.EmailAttribute
	case AttributeUsername:
		ldapAttr = l.cfg.UsernameAttribute
	}

	if ldapAttr == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownAttribute, attribute)
	}

	conn, err := l.dial()
	if err != nil {
		return "", err
	}
	defer closeLDAP(conn)

	searchRequest := ldap.NewSearchRequest(
		l.cfg.UserBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2, //nolint:mnd // one match is enough to detect ambiguity
		int(ldapTimeout.Seconds()),
		false,
		fmt.Sprintf("(%s=%s)", ldapAttr, ldap.EscapeFilter(value)),
		[]string{"dn"},
		nil,
	)

	result, err := conn.Search(searchRequest)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return "", fmt.Errorf("failed to search for user: %w", err)
	}

	if result == nil || len(result.Entries) == 0 {
		return "", fmt.Errorf("%w: %s=%s", ErrIdentityNotFound, attribute, value)
	}

	if len(result.Entries) > 1 {
		return "", fmt.Errorf("%w: %s=%s", ErrMultipleIdentities, attribute, value)
	}

	return result.Entries[0].DN, nil
}

// ListGroupsForMember implements Directory and returns the cn of every group listing the DN.
func (l *LDAP) ListGroupsForMember(_ context.Context, key string) ([]string, error) {
	if err := checkDN(key); err != nil {
		return nil, err
	}

	conn, err := l.dial()
	if err != nil {
		return nil, err
	}
	defer closeLDAP(conn)

	searchRequest := ldap.NewSearchRequest(
		l.cfg.GroupBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		int(ldapTimeout.Seconds()),
		false,
		fmt.Sprintf("(%s=%s)", l.cfg.GroupMemberAttribute, ldap.EscapeFilter(key)),
		[]string{"cn"},
		nil,
	)

	result, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search for groups: %w", err)
	}

	groups := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		groups = append(groups, entry.GetAttributeValue("cn"))
	}

	return groups, nil
}
