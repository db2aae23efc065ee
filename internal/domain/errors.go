package domain

import "errors"

// ErrInvalidCorrection indicates that a correction failed struct validation after normalization.
var ErrInvalidCorrection = errors.New("invalid correction")

// ErrInvalidTransition indicates an attempt to move a job out of a terminal status.
var ErrInvalidTransition = errors.New("invalid job status transition")

// ErrInvalidProblem indicates that a problem record is missing required fields.
var ErrInvalidProblem = errors.New("invalid problem")

// ErrInvalidStudent indicates that a student submission is missing required fields.
var ErrInvalidStudent = errors.New("invalid student submission")
