package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable is returned when the realtime channel never connected or dropped.
	ErrTransportUnavailable = errors.New("realtime transport unavailable")
	// ErrSendRejected is returned when an emit could not be written to a connected channel.
	ErrSendRejected = errors.New("send rejected")
	// ErrHistoryFetchFailed wraps every history paging failure.
	ErrHistoryFetchFailed = errors.New("history fetch failed")
	// ErrUploadFailed wraps attachment upload failures.
	ErrUploadFailed = errors.New("upload failed")
	// ErrNotReady is returned when sending while no conversation is ready.
	ErrNotReady = errors.New("conversation not ready")
	// ErrMalformedPayload is returned for wire payloads missing required fields.
	ErrMalformedPayload = errors.New("malformed payload")
)

// NotConnectedError is returned by a send attempted while the channel is down.
type NotConnectedError struct {
	Event string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("cannot emit %q: not connected", e.Event)
}

func (e *NotConnectedError) Unwrap() error {
	return ErrTransportUnavailable
}

// UploadError carries the reason supplied by the server for a failed upload.
type UploadError struct {
	Reason string
}

func (e *UploadError) Error() string {
	if e.Reason == "" {
		return "upload failed: unknown error"
	}
	return "upload failed: " + e.Reason
}

func (e *UploadError) Unwrap() error {
	return ErrUploadFailed
}
