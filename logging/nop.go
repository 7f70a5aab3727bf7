package logging

// NewNop creates a logger that discards all output.
func NewNop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

var _ Logger = nopLogger{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) With(...any) Logger { return n }
