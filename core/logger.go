package core

// Logger logs application events. args may carry errors, extra data maps and the account involved.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// LogPerson identifies the account behind a logged event.
type LogPerson struct {
	ID    string
	Email string
}
