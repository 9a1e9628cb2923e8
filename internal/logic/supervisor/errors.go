package supervisor

import (
	"errors"
	"fmt"
)

var (
	ErrProcessNotFound      = errors.New("process not found")
	ErrProcessCrashed       = errors.New("process crashed")
	ErrProcessSampleFailed  = errors.New("process sample failed")
	ErrResourceSampleFailed = errors.New("resource sample failed")
	ErrRepoCheckFailed      = errors.New("repository check failed")
	ErrThresholdsOrder      = errors.New("thresholds must be strictly increasing")
	ErrNoRestartCommand     = errors.New("no restart command configured")
)

// ProcessErrorKind classifies a ProcessError.
type ProcessErrorKind string

const (
	ProcessNotFound     ProcessErrorKind = "not_found"
	ProcessCrashed      ProcessErrorKind = "crashed"
	ProcessSampleFailed ProcessErrorKind = "sample_failed"
)

var processKindSentinels = map[ProcessErrorKind]error{
	ProcessNotFound:     ErrProcessNotFound,
	ProcessCrashed:      ErrProcessCrashed,
	ProcessSampleFailed: ErrProcessSampleFailed,
}

// ProcessError describes a failure observed for a managed process.
type ProcessError struct {
	Kind    ProcessErrorKind
	Process string
	Err     error
}

func (e *ProcessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("process %s: %s", e.Process, e.Kind)
	}

	return fmt.Sprintf("process %s: %s: %v", e.Process, e.Kind, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

func (e *ProcessError) Is(target error) bool {
	return processKindSentinels[e.Kind] == target
}

// ResourceError wraps a failed host resource sample.
type ResourceError struct {
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %v", ErrResourceSampleFailed, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

func (e *ResourceError) Is(target error) bool {
	return target == ErrResourceSampleFailed
}
