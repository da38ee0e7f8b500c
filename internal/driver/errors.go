package driver

import "fmt"

// ConfigurationError reports a printer profile the drivers cannot use. It
// calls for fixing the settings, not for a retry.
type ConfigurationError struct {
	Printer string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("printer %q is misconfigured: %v", e.Printer, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DeviceHandshakeError reports a failed preflight check. Nothing was printed.
type DeviceHandshakeError struct {
	Check string
	Err   error
}

func (e *DeviceHandshakeError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Check, e.Err)
}

func (e *DeviceHandshakeError) Unwrap() error { return e.Err }

// TransportError reports a connect, read or write failure. The connection has
// been closed by the time it is returned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
