package core

// Logger is the application logger.
// args may hold an error, a map[string]interface{} of extras, or the record being processed.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person is the authenticated caller attached to a log entry, when there is one.
type Person interface {
	PersonID() string
	PersonName() string
	PersonEmail() string
}
