package cli

import "errors"

// ErrConfigFileNotFound reports that an explicit --config path does not exist.
// Callers should use errors.Is(err, ErrConfigFileNotFound).
var ErrConfigFileNotFound = errors.New("config file not found")

// ErrConfigFileRead reports that a config file exists but could not be read.
// Callers should use errors.Is(err, ErrConfigFileRead).
var ErrConfigFileRead = errors.New("cannot read config file")

// ErrConfigInvalid reports a config file that is not valid JSONC/JSON or
// fails field-level validation.
// Callers should use errors.Is(err, ErrConfigInvalid).
var ErrConfigInvalid = errors.New("invalid config file")

// ErrOutputFileOpen reports that --output-file could not be opened for append.
// Callers should use errors.Is(err, ErrOutputFileOpen).
var ErrOutputFileOpen = errors.New("cannot open output file")
