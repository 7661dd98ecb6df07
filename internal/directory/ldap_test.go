package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffmanagement/authservice/internal/config"
)

type fakeLDAPConn struct {
	modifyErr error
	modifies  []*ldap.ModifyRequest
	searches  []*ldap.SearchRequest
	entries   []*ldap.Entry
	closed    int
}

func (f *fakeLDAPConn) Bind(_, _ string) error { return nil }

func (f *fakeLDAPConn) Modify(req *ldap.ModifyRequest) error {
	f.modifies = append(f.modifies, req)
	return f.modifyErr
}

func (f *fakeLDAPConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.searches = append(f.searches, req)
	return &ldap.SearchResult{Entries: f.entries}, nil
}

func (f *fakeLDAPConn) Close() error {
	f.closed++
	return nil
}

func newTestLDAP(conn *fakeLDAPConn) *LDAP {
	l := NewLDAP(config.LDAP{
		GroupBaseDN:      "ou=groups,dc=example,dc=org",
		UserBaseDN:       "ou=people,dc=example,dc=org",
		SubjectAttribute: "entryUUID",
		EmailAttribute:   "mail",
	})
	l.dial = func() (ldapConn, error) { return conn, nil }

	return l
}

const aliceDN = "uid=alice,ou=people,dc=example,dc=org"

func TestLDAPModify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		add       bool
		modifyErr error
		wantErr   bool
	}{
		{name: "add", add: true},
		{name: "add existing", add: true, modifyErr: ldap.NewError(ldap.LDAPResultAttributeOrValueExists, errors.New("exists"))},
		{name: "remove", add: false},
		{name: "remove missing", add: false, modifyErr: ldap.NewError(ldap.LDAPResultNoSuchAttribute, errors.New("missing"))},
		{
			name:      "add into missing group",
			add:       true,
			modifyErr: ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no group")),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeLDAPConn{modifyErr: tt.modifyErr}
			l := newTestLDAP(conn)

			var err error
			if tt.add {
				err = l.AddMemberToGroup(ctx, aliceDN, "ADMIN")
			} else {
				err = l.RemoveMemberFromGroup(ctx, aliceDN, "ADMIN")
			}

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			require.Len(t, conn.modifies, 1)
			assert.Equal(t, "cn=ADMIN,ou=groups,dc=example,dc=org", conn.modifies[0].DN)
			assert.Equal(t, 1, conn.closed)
		})
	}
}

func TestLDAPRejectsNonDNKeys(t *testing.T) {
	conn := &fakeLDAPConn{}
	l := newTestLDAP(conn)

	err := l.AddMemberToGroup(context.Background(), "sub-1", "ADMIN")
	require.ErrorIs(t, err, ErrIdentityNotFound)

	_, err = l.ListGroupsForMember(context.Background(), "")
	require.ErrorIs(t, err, ErrIdentityNotFound)

	assert.Empty(t, conn.modifies)
}

func TestLDAPFindIdentityKey(t *testing.T) {
	ctx := context.Background()

	conn := &fakeLDAPConn{entries: []*ldap.Entry{ldap.NewEntry(aliceDN, nil)}}
	l := newTestLDAP(conn)

	key, err := l.FindIdentityKeyByAttribute(ctx, AttributeSubject, "sub-(1)")
	require.NoError(t, err)
	assert.Equal(t, aliceDN, key)
	assert.Equal(t, `(entryUUID=sub-\281\29)`, conn.searches[0].Filter)

	conn.entries = nil
	_, err = l.FindIdentityKeyByAttribute(ctx, AttributeEmail, "x@example.com")
	require.ErrorIs(t, err, ErrIdentityNotFound)

	_, err = l.FindIdentityKeyByAttribute(ctx, AttributeUsername, "alice")
	require.ErrorIs(t, err, ErrUnknownAttribute)
}

func TestLDAPListGroups(t *testing.T) {
	conn := &fakeLDAPConn{entries: []*ldap.Entry{
		ldap.NewEntry("cn=ADMIN,ou=groups,dc=example,dc=org", map[string][]string{"cn": {"ADMIN"}}),
		ldap.NewEntry("cn=USER,ou=groups,dc=example,dc=org", map[string][]string{"cn": {"USER"}}),
	}}

	groups, err := newTestLDAP(conn).ListGroupsForMember(context.Background(), aliceDN)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN", "USER"}, groups)
}

func TestNewBackend(t *testing.T) {
	d, err := New(context.Background(), config.Directory{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, d)

	d, err = New(context.Background(), config.Directory{Backend: "ldap"})
	require.NoError(t, err)
	assert.IsType(t, &LDAP{}, d)

	_, err = New(context.Background(), config.Directory{Backend: "graph"})
	require.ErrorIs(t, err, ErrUnknownBackend)
}
