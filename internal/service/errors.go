package service

import "errors"

// ErrConfig marks missing or unusable upstream configuration (no active
// personas, no eligible channels, empty topic pool). Jobs failing with this
// error are not retried; retrying cannot fix configuration.
var ErrConfig = errors.New("configuration error")

// ErrBelowThreshold marks a slot whose best candidate scored under the
// project's minimum quality bar. It fails the slot, not the run.
var ErrBelowThreshold = errors.New("best candidate below quality threshold")
