package common

import "fmt"

// ConfigError is returned when command-line arguments or loaded configuration are invalid.
type ConfigError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error during '%s': %s", e.Op, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DataValidationError is returned when a source document cannot be decoded into a Record.
type DataValidationError struct {
	Database string
	Op       string
	Reason   string
	Err      error
}

func (e *DataValidationError) Error() string {
	return fmt.Sprintf("data validation error on '%s' (%s): %s", e.Database, e.Op, e.Reason)
}

func (e *DataValidationError) Unwrap() error {
	return e.Err
}

// DatabaseConnectionError is returned when the source database is unreachable or rejects the connection.
type DatabaseConnectionError struct {
	Database string
	Reason   string
	Err      error
}

func (e *DatabaseConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to database '%s': %s", e.Database, e.Reason)
}

func (e *DatabaseConnectionError) Unwrap() error {
	return e.Err
}

// DatabaseOperationError is returned when the source rejects the aggregation or the cursor fails mid-stream.
type DatabaseOperationError struct {
	Database string
	Op       string
	Reason   string
	Err      error
}

func (e *DatabaseOperationError) Error() string {
	return fmt.Sprintf("database operation error on '%s' (%s): %s", e.Database, e.Op, e.Reason)
}

func (e *DatabaseOperationError) Unwrap() error {
	return e.Err
}

// FileIOError is returned for output sink and config file errors.
type FileIOError struct {
	Path   string
	Op     string
	Reason string
	Err    error
}

func (e *FileIOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("file I/O error during '%s' on '%s': %s", e.Op, e.Path, e.Reason)
	}
	return fmt.Sprintf("file I/O error during '%s': %s", e.Op, e.Reason)
}

func (e *FileIOError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a pipeline definition file is not valid Extended JSON.
type ParseError struct {
	Source string
	Op     string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("pipeline parse error during '%s' for '%s': %s", e.Op, e.Source, e.Reason)
	}
	return fmt.Sprintf("pipeline parse error during '%s': %s", e.Op, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractError is returned when the record source cannot be created or is misused.
type ExtractError struct {
	Reason string
	Err    error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract error: %s", e.Reason)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// TransformError is returned when a field value cannot be rendered as CSV text.
type TransformError struct {
	Field  string
	Reason string
	Err    error
}

func (e *TransformError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("transform error on field '%s': %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("transform error: %s", e.Reason)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}
