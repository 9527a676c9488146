package handlers

import "errors"

var (
	ErrInvalidLimit  = errors.New("limit must be a positive integer")
	ErrInvalidOffset = errors.New("offset must be a non-negative integer")

	ErrInvalidResourceID = errors.New("resourceId must be a UUID")
)
