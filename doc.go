// Package main provides the entry point of staff-auth, the authorization gate of the staff
// management app. It admits OIDC logins by group allow-list, reconciles local roles with the
// remote group directory (Cognito, LDAP or in memory) and appends security events to the audit
// log. The service uses fiber for HTTP, gorm for persistence and zerolog for logging.
package main
