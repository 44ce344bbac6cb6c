package dialogue

import (
	"errors"
	"fmt"
)

// DefaultWebhookURL is the REST channel endpoint of a locally running dialogue server
const DefaultWebhookURL = "http://localhost:5005/webhooks/rest/webhook"

// Request represents the request body for the webhook
type Request struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// Reply represents a single reply object in the webhook response array
type Reply struct {
	RecipientID string `json:"recipient_id,omitempty"`
	Text        string `json:"text"`
	Intent      string `json:"intent,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Response is a successfully decoded webhook exchange
type Response struct {
	StatusCode int
	Replies    []Reply
}

// ErrUnavailable covers every failure mode of a webhook call: connection
// errors, non-2xx statuses and undecodable bodies.
var ErrUnavailable = errors.New("dialogue service unavailable")

// StatusError is returned when the webhook answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook error: %s - %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnavailable
}
