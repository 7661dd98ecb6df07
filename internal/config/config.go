// Package config handles input from etc/*.toml files
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvConfigJSON names the environment variable whose JSON content overrides the file config.
const EnvConfigJSON = "STAFFAUTH_CONFIG_JSON"

// ReadConfig from config file.
func ReadConfig(path string) (Config, error) {
	var c Config

	// Read main configuration
	if path == "" {
		path = "./etc/"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filepath.Join(path, "main.toml"))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode main config file")
	}

	// override it from env
	if JSONConfigEnv := os.Getenv(EnvConfigJSON); JSONConfigEnv != "" {
		var err error

		c, err = decodeAndMergeConfig(c, JSONConfigEnv)
		if err != nil {
			return c, err
		}
	}

	if err := validate(&c); err != nil {
		return c, err
	}

	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("title", "Staff Auth")
	v.SetDefault("db.gormEngine", "sqlite")
	v.SetDefault("db.path", "staffauth.db")
	v.SetDefault("webserver.shutDownTime", 5) //nolint:mnd
	v.SetDefault("webserver.session.expiryTime", "8h")
	v.SetDefault("webserver.session.cookieName", "staffauth_session")
	v.SetDefault("webserver.session.storage", "db")
	v.SetDefault("auth.defaultRole", "USER")
	v.SetDefault("auth.adminRole", "ADMIN")
	v.SetDefault("auth.authorityPrefix", "ROLE_")
	v.SetDefault("auth.oidc.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("auth.oidc.groupsClaim", "cognito:groups")
	v.SetDefault("auth.oidc.usernameClaim", "cognito:username")
	v.SetDefault("directory.backend", "memory")
	v.SetDefault("directory.adminGroup", "ADMIN")
	v.SetDefault("directory.elevatedRoles", []string{"MANAGER_L1", "MANAGER_L2", "MANAGER_L3", "HR"})
	v.SetDefault("directory.resolveCacheSize", 1024) //nolint:mnd
	v.SetDefault("directory.ldap.groupMemberAttribute", "member")
	v.SetDefault("directory.ldap.subjectAttribute", "entryUUID")
	v.SetDefault("directory.ldap.emailAttribute", "mail")
	v.SetDefault("directory.ldap.usernameAttribute", "uid")
	v.SetDefault("audit.workers", 4)      //nolint:mnd
	v.SetDefault("audit.queueSize", 1024) //nolint:mnd
	v.SetDefault("audit.writeTimeout", "5s")
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config from "+EnvConfigJSON)
	}

	return c, nil
}

// DumpConfig config as TOML String.
func DumpConfig(c Config) (string, error) {
	var buffer bytes.Buffer
	t := toml.NewEncoder(&buffer)

	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c Config) (string, error) {
	var buffer bytes.Buffer
	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validate minimal config settings and fill the remaining defaults.
func validate(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5 // set default of 5 seconds
	}

	if !slices.Contains([]string{"mysql", "postgres", "sqlite"}, c.DB.GormEngine) {
		return errors.Wrap(ErrUnknownGormEngine, invalidErrMessage)
	}

	if !slices.Contains([]string{"cognito", "ldap", "memory"}, c.Directory.Backend) {
		return errors.Wrap(ErrUnknownDirectoryBackend, invalidErrMessage)
	}

	if strings.TrimSpace(c.Auth.DefaultRole) == "" {
		return errors.Wrap(ErrEmptyDefaultRole, invalidErrMessage)
	}

	if c.Audit.Workers <= 0 {
		c.Audit.Workers = 1
	}

	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = 1
	}

	if c.Audit.WriteTimeout <= 0 {
		c.Audit.WriteTimeout = 5 * time.Second //nolint:mnd
	}

	if c.Auth.OIDC.MobileClientID == "" {
		c.Auth.OIDC.MobileClientID = c.Auth.OIDC.ClientID
	}

	if strings.TrimSpace(c.Auth.AllowedGroups) == "" {
		log.Warn().Msg("auth.allowedGroups is empty: every login will be denied")
	}

	return nil
}
