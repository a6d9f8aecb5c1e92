package apiclient

import "fmt"

// Operation names used in RemoteError.
const (
	OpStory = "story"
	OpVoice = "voice"
	OpImage = "image"
)

// genericMessages are used when the server gives no error text.
var genericMessages = map[string]string{
	OpStory: "story generation failed",
	OpVoice: "voice generation failed",
	OpImage: "image generation failed",
}

// RemoteError is any failed remote call: a non-success status, a success body missing
// the expected field, a transport failure or a timeout. Message is safe to show to users.
type RemoteError struct {
	Operation  string
	StatusCode int // HTTP status, or 0 for transport/gRPC failures
	Message    string
	Cause      error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error { return e.Cause }

func newRemoteError(op string, statusCode int, message string, cause error) *RemoteError {
	if message == "" {
		message = genericMessages[op]
	}
	return &RemoteError{Operation: op, StatusCode: statusCode, Message: message, Cause: cause}
}

func transportError(op string, err error) *RemoteError {
	return newRemoteError(op, 0, fmt.Sprintf("%s: %v", genericMessages[op], err), err)
}
