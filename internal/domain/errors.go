package domain

import "errors"

var (
	// ErrNoClassSelected is returned when an operation needs an active class and none is selected.
	ErrNoClassSelected = errors.New("no class selected")
	// ErrUnknownStudent indicates a participation event referenced a student that does not exist.
	ErrUnknownStudent = errors.New("unknown student")
	// ErrProtectedStudent is returned when deleting a student whose protection flag is set.
	ErrProtectedStudent = errors.New("student is protected")
	// ErrClassNotFound indicates a class id does not reference a live class.
	ErrClassNotFound = errors.New("class not found")
	// ErrSectionNotFound indicates a section id does not reference a live section.
	ErrSectionNotFound = errors.New("section not found")
	// ErrUnknownQuality indicates a quality keyword is not in the catalog.
	ErrUnknownQuality = errors.New("unknown participation quality")
	// ErrInvalidNameMode indicates an unsupported name detection mode.
	ErrInvalidNameMode = errors.New("invalid name detection mode")

	// ErrPermissionDenied is terminal for a recognition session; the user must grant access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrRecognitionTransient marks a retryable speech capability failure.
	ErrRecognitionTransient = errors.New("speech recognition interrupted")
	// ErrRecognitionFailed is surfaced once reconnection attempts are exhausted.
	ErrRecognitionFailed = errors.New("speech recognition failed to connect")
)
