package prince

import "errors"

// ErrWordTooShort reports a stdin word shorter than IN_LEN_MIN.
// Callers should use errors.Is(err, ErrWordTooShort).
var ErrWordTooShort = errors.New("word too short")

// ErrWordTooLong reports a stdin word longer than IN_LEN_MAX.
// Callers should use errors.Is(err, ErrWordTooLong).
var ErrWordTooLong = errors.New("word too long")

// ErrLengthOutOfRange reports a length outside [LenMin, LenMax].
// Callers should use errors.Is(err, ErrLengthOutOfRange).
var ErrLengthOutOfRange = errors.New("length out of range")

// ErrPwMinInvalid reports pw-min outside [LenMin, LenMax].
// Callers should use errors.Is(err, ErrPwMinInvalid).
var ErrPwMinInvalid = errors.New("pw-min out of range")

// ErrPwMaxInvalid reports pw-max outside [LenMin, LenMax].
// Callers should use errors.Is(err, ErrPwMaxInvalid).
var ErrPwMaxInvalid = errors.New("pw-max out of range")

// ErrPwRangeInverted reports pw-min greater than pw-max.
// Callers should use errors.Is(err, ErrPwRangeInverted).
var ErrPwRangeInverted = errors.New("pw-min greater than pw-max")

// ErrElemCntMinInvalid reports elem-cnt-min less than 1.
// Callers should use errors.Is(err, ErrElemCntMinInvalid).
var ErrElemCntMinInvalid = errors.New("elem-cnt-min out of range")

// ErrElemCntRangeInverted reports elem-cnt-min greater than elem-cnt-max.
// Callers should use errors.Is(err, ErrElemCntRangeInverted).
var ErrElemCntRangeInverted = errors.New("elem-cnt-min greater than elem-cnt-max")

// ErrSkipExceedsKeyspace reports a --skip value greater than the total keyspace.
// Callers should use errors.Is(err, ErrSkipExceedsKeyspace).
var ErrSkipExceedsKeyspace = errors.New("skip exceeds total keyspace")

// ErrLimitExceedsKeyspace reports a --limit value greater than the total keyspace.
// Callers should use errors.Is(err, ErrLimitExceedsKeyspace).
var ErrLimitExceedsKeyspace = errors.New("limit exceeds total keyspace")

// ErrSkipLimitExceedsKeyspace reports skip+limit greater than the total keyspace.
// Callers should use errors.Is(err, ErrSkipLimitExceedsKeyspace).
var ErrSkipLimitExceedsKeyspace = errors.New("skip plus limit exceeds total keyspace")

// ErrNegativeInt reports an attempt to parse or construct a negative [Int].
// Callers should use errors.Is(err, ErrNegativeInt).
var ErrNegativeInt = errors.New("negative integer")

// ErrChainTooLong reports a chain with more parts than the stats cache key can hold.
// Callers should use errors.Is(err, ErrChainTooLong).
var ErrChainTooLong = errors.New("chain has too many parts for stats cache key")

// ErrNoCandidateLengths reports a configuration where no length in
// [pw-min, pw-max] has any valid chain.
// Callers should use errors.Is(err, ErrNoCandidateLengths).
var ErrNoCandidateLengths = errors.New("no candidate lengths have valid chains")
