package core

// Logger is the logging contract used across services.
// args are usually an error and/or a map[string]interface{} of fields.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Fields is a shorthand for structured log fields.
type Fields = map[string]interface{}
