package config

import (
	"time"

	"github.com/staffmanagement/authservice/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	Title     string
	DB        DB
	Log       logger.Log
	Webserver Webserver
	Auth      Auth
	Directory Directory
	Audit     Audit
}

// Session settings.
type Session struct {
	ExpiryTime time.Duration // lifetime of a server side session
	CookieName string
	Storage    string // memory, db
}

// Webserver implement webserver settings.
type Webserver struct {
	DisableRecover      bool    // disable recover middleware
	Port                int     // listening port for the webserver
	ShutDownTime        int     // wait time for shutdown
	URL                 string  // base url for the webserver, used for the OIDC redirect
	CookieEncryptionKey string  // base64 key for the encryptcookie middleware, empty disables it
	Session             Session // session settings
}

// Auth holds the login gate settings.
type Auth struct {
	// AllowedGroups comma separated list of groups that may obtain a session. Empty denies everyone.
	AllowedGroups string

	// DefaultRole assigned to users on first login.
	DefaultRole string

	// AdminRole required by the admin API.
	AdminRole string

	// AuthorityPrefix added to role names when checking authorities, e.g. ROLE_.
	AuthorityPrefix string

	OIDC OIDC
}

// OIDC provider settings.
type OIDC struct {
	Enabled        bool
	IssuerURL      string
	ClientID       string
	ClientSecret   string
	Scopes         []string
	GroupsClaim    string // claim holding the group list, e.g. cognito:groups
	UsernameClaim  string // claim holding the provider username, e.g. cognito:username
	MobileClientID string // audience accepted on the mobile sync endpoint, defaults to ClientID
}

// Directory holds the remote group directory settings.
type Directory struct {
	SyncEnabled      bool
	Backend          string // cognito, ldap, memory
	AdminGroup       string
	ElevatedRoles    []string
	ResolveCacheSize int
	Cognito          Cognito
	LDAP             LDAP
}

// Cognito user pool settings.
type Cognito struct {
	Region          string
	UserPoolID      string
	AccessKeyID     string // empty uses the default credential chain
	SecretAccessKey string
	Endpoint        string // override for local emulators
}

// LDAP directory settings.
type LDAP struct {
	URL                  string
	BindDN               string
	BindPassword         string
	StartTLS             bool
	InsecureSkipVerify   bool
	UserBaseDN           string
	GroupBaseDN          string
	GroupMemberAttribute string // member, uniqueMember
	SubjectAttribute     string // attribute holding the provider subject, e.g. entryUUID
	EmailAttribute       string
	UsernameAttribute    string
}

// Audit holds the audit dispatcher settings.
type Audit struct {
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
}
