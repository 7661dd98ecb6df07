package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("toml config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrUnknownGormEngine error if config db.gormEngine is not supported.
	ErrUnknownGormEngine = errors.New("toml config db.gormEngine must be mysql, postgres or sqlite")

	// ErrUnknownDirectoryBackend error if config directory.backend is not supported.
	ErrUnknownDirectoryBackend = errors.New("toml config directory.backend must be cognito, ldap or memory")

	// ErrEmptyDefaultRole error if config auth.defaultRole is empty.
	ErrEmptyDefaultRole = errors.New("toml config auth.defaultRole can not be empty")
)
