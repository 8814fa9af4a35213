package log

const (
	// LogFormatPlain defines a logging format used for human-readable text
	// output, without colors.
	LogFormatPlain string = "plain"

	// LogFormatText defines a logging format used for human-readable text
	// output.
	LogFormatText string = "text"

	// LogFormatJSON defines a logging format for structured JSON output.
	LogFormatJSON string = "json"

	// Supported loging levels
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Logger defines a generic logging interface compatible with the rest of the
// codebase.
type Logger interface {
	Debug(msg string, keyVals ...interface{})
	Info(msg string, keyVals ...interface{})
	Error(msg string, keyVals ...interface{})

	With(keyVals ...interface{}) Logger
}
