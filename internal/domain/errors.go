package domain

import "errors"

// Domain errors for the stream worker pool.
var (
	// ErrNoMessages is returned when a claim times out without receiving an entry.
	// It is the "no work" outcome of a consume cycle, not a failure.
	ErrNoMessages = errors.New("no messages to process")

	// ErrMalformedEntry is returned when a source entry lacks a usable message_id field.
	ErrMalformedEntry = errors.New("malformed stream entry")

	// ErrInvalidMessage is returned when a message cannot be turned into a processed record.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidPayload is returned when a processed_message payload cannot be decoded.
	ErrInvalidPayload = errors.New("invalid processed message payload")

	// ErrInvalidEntryID is returned when a stream entry id is not of the form <millis>-<seq>.
	ErrInvalidEntryID = errors.New("invalid stream entry id")

	// ErrPublishFailed is returned when appending to the target stream fails.
	// The source entry is not acknowledged.
	ErrPublishFailed = errors.New("failed to publish processed message")

	// ErrAckFailed is returned when the source entry could not be acknowledged
	// after its processed message was published. The entry stays pending.
	ErrAckFailed = errors.New("failed to acknowledge stream entry")

	// ErrGroupCreateFailed is returned when the consumer group cannot be created
	// for a reason other than it already existing.
	ErrGroupCreateFailed = errors.New("failed to create consumer group")
)
