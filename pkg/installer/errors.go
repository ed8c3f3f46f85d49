package installer

import (
	"errors"
	"fmt"
)

// Kind classifies why an install failed
type Kind string

const (
	KindArtifactNotFound        Kind = "ArtifactNotFound"
	KindUnsupportedArtifactType Kind = "UnsupportedArtifactType"
	KindValidationFailed        Kind = "ValidationFailed"
	KindInsufficientDiskSpace   Kind = "InsufficientDiskSpace"
	KindExtractionFailed        Kind = "ExtractionFailed"
	KindPlacementFailed         Kind = "PlacementFailed"
	KindPermissionFailed        Kind = "PermissionFailed"
	KindVerificationFailed      Kind = "VerificationFailed"
	KindPlatformOperationFailed Kind = "PlatformOperationFailed"
)

// Sentinels for errors.Is, matched on Kind alone
var (
	ErrArtifactNotFound        = &InstallError{Kind: KindArtifactNotFound}
	ErrUnsupportedArtifactType = &InstallError{Kind: KindUnsupportedArtifactType}
	ErrValidationFailed        = &InstallError{Kind: KindValidationFailed}
	ErrInsufficientDiskSpace   = &InstallError{Kind: KindInsufficientDiskSpace}
	ErrExtractionFailed        = &InstallError{Kind: KindExtractionFailed}
	ErrPlacementFailed         = &InstallError{Kind: KindPlacementFailed}
	ErrPermissionFailed        = &InstallError{Kind: KindPermissionFailed}
	ErrVerificationFailed      = &InstallError{Kind: KindVerificationFailed}
	ErrPlatformOperationFailed = &InstallError{Kind: KindPlatformOperationFailed}
)

// InstallError is the single typed error an install call returns. Message is meant to be shown to users as is.
type InstallError struct {
	Kind    Kind
	State   State
	Message string
	Err     error
}

func (e *InstallError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

func (e *InstallError) Is(target error) bool {
	t, ok := target.(*InstallError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of an install error, or "" for any other error
func KindOf(err error) Kind {
	var ie *InstallError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

func newError(kind Kind, err error, format string, args ...any) *InstallError {
	return &InstallError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
