package norflash

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is matched by every *ConfigError.
	ErrConfig = errors.New("invalid configuration")
	// ErrNoResources indicates the transaction pipeline could not be allocated.
	ErrNoResources = errors.New("transaction pipeline allocation failed")
	ErrBusInit     = errors.New("SPI bus initialization failed")
	ErrAttach      = errors.New("SPI device attach failed")
	// ErrGeometry indicates neither SFDP nor the JEDEC ID gave a sector size
	// and capacity.
	ErrGeometry = errors.New("flash geometry detection failed")
	// ErrComm is matched by every *CommError.
	ErrComm               = errors.New("flash communication failed")
	ErrNotInitialized     = errors.New("flash not initialized")
	ErrAlreadyInitialized = errors.New("flash already initialized")
	ErrOutOfRange         = errors.New("address range outside flash")
)

// ConfigError reports a contradictory or out-of-range Config field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// CommError reports a transaction the bus failed to queue or complete.
type CommError struct {
	Op  string // "queue", "result" or "order"
	Err error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("flash communication failed: %s: %v", e.Op, e.Err)
}

func (e *CommError) Is(target error) bool { return target == ErrComm }

func (e *CommError) Unwrap() error { return e.Err }
