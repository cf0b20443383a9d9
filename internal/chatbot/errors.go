package chatbot

import "errors"

var (
	// ErrConfigMissing: the chatbot configuration, provider credentials or
	// vector-search credentials are absent when required.
	ErrConfigMissing = errors.New("chatbot: configuration missing")

	// ErrQuotaExceeded: the pre-flight token quota check failed. The user
	// message row is retained; no assistant row was created.
	ErrQuotaExceeded = errors.New("chatbot: token quota exceeded")

	// ErrStreamTruncated: the upstream stream ended without a [DONE]
	// sentinel. Whatever was accumulated is still persisted by the guard.
	ErrStreamTruncated = errors.New("chatbot: upstream stream truncated")

	// ErrConversationNotFound: no live conversation for the id/user pair.
	ErrConversationNotFound = errors.New("chatbot: conversation not found")
)
