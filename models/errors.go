package models

import "errors"

// Failure taxonomy for a pipeline run. Acquisition and normalization
// failures on required sources are fatal for the run; callers classify
// with errors.Is.
var (
	// ErrResourceNotFound indicates no download link matched the selector
	// within the bounded wait.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrTransfer indicates a network or HTTP level failure while
	// retrieving a resource or an API page.
	ErrTransfer = errors.New("transfer failed")

	// ErrUnexpectedArchiveContents indicates a downloaded archive did not
	// contain exactly one report file.
	ErrUnexpectedArchiveContents = errors.New("unexpected archive contents")

	// ErrAuthenticationFailed indicates the token endpoint response lacked
	// the expected token field.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrMalformedResponse indicates an API response missing the expected
	// structure.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnparseableTimestamp indicates a date or hour field that could not
	// be parsed, which likely signals an upstream schema change.
	ErrUnparseableTimestamp = errors.New("unparseable timestamp")

	// ErrAmbiguousColumn indicates a column name collision between two join
	// inputs that was not disambiguated by a rename map.
	ErrAmbiguousColumn = errors.New("ambiguous column")

	// ErrNoMatchingRows indicates an inner join produced an empty result.
	ErrNoMatchingRows = errors.New("no matching rows")

	// ErrMissingCapacityValue indicates the capacity workbook's expected
	// cell was absent or non-numeric.
	ErrMissingCapacityValue = errors.New("missing capacity value")
)
