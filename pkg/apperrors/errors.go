package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoValidCandidate = errors.New("no valid SQL candidate")
	ErrEmptyResponse    = errors.New("empty LLM response")
	ErrExtractFailed    = errors.New("could not extract structured content from response")
	ErrCacheVersion     = errors.New("cache version mismatch")
)
