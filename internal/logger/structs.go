package logger

// Console implements a console based logger.
type Console struct {
	Enabled          bool `toml:"enabled" mapstructure:"enabled"`
	UseConsoleWriter bool `mapstructure:"useconsolewriter"`
}

// RollingFile holds the lumberjack rotation settings of a single log stream.
type RollingFile struct {
	Name       string `toml:"name" mapstructure:"name"`
	MaxSize    int    `toml:"maxSize" mapstructure:"maxsize"`       // megabytes
	MaxBackups int    `toml:"maxBackups" mapstructure:"maxbackups"` // number of rotated files kept
	MaxAge     int    `toml:"maxAge" mapstructure:"maxage"`         // days
}

// LogFile implements a file based logger.
// Every stream is written to its own rotated file below Path.
type LogFile struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`

	Access RollingFile `toml:"access" mapstructure:"access"`
	Error  RollingFile `toml:"error" mapstructure:"error"`
	Info   RollingFile `toml:"info" mapstructure:"info"`
	Trace  RollingFile `toml:"trace" mapstructure:"trace"`
	Warn   RollingFile `toml:"warn" mapstructure:"warn"`
}

// Log implements the logger config.
type Log struct {
	LogLevel string `mapstructure:"loglevel"` // trace, debug, info, warn, error.
	LogEnv   string `mapstructure:"logenv"`

	// EnableAccessLogToConsole writes the fiber access log to the console as well.
	// Does not overrule Console.Enabled.
	EnableAccessLogToConsole bool `mapstructure:"enableaccesslogtoconsole"`
	ReportCaller             bool `mapstructure:"reportcaller"`
	DisableCheckAlive        bool `mapstructure:"disablecheckalive"` // do not log /healthz calls

	AppName     string `mapstructure:"appname"`
	ServiceName string `mapstructure:"servicename"`

	// Console used mainly for docker and dev.
	Console Console `mapstructure:"console"`

	// File based logging for non container deployments.
	File LogFile `toml:"file" mapstructure:"file"`
}
