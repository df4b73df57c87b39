package engine

import "errors"

// ErrPullUnsupported is returned by backends that host models remotely.
var ErrPullUnsupported = errors.New("engine: model pull not supported by this backend")

// Message is one chat turn. Role is "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a chat call. JSON asks the backend to constrain the reply
// to a single JSON object.
type ChatOptions struct {
	JSON        bool
	Temperature float64
}

type PullProgress struct {
	Status    string
	Total     int64
	Completed int64
}
