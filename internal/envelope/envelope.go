// Package envelope decodes the push notification that names the video to
// process. The request body is a Pub/Sub push envelope whose message.data is
// base64-encoded JSON carrying the object name.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"vidproc/internal/pkg/errors"
)

// ProcessedPrefix is prepended to the input name to form the output name.
const ProcessedPrefix = "processed-"

// PushRequest is the outer push envelope.
type PushRequest struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription,omitempty"`
}

// PushMessage is the message part of a push envelope.
type PushMessage struct {
	Data        *string `json:"data"`
	MessageID   string  `json:"messageId,omitempty"`
	PublishTime string  `json:"publishTime,omitempty"`
}

// payload is the decoded message.data. Object-finalize notifications also
// carry the bucket.
type payload struct {
	Name   *string `json:"name"`
	Bucket string  `json:"bucket,omitempty"`
}

// Notification is a validated request to process one video.
type Notification struct {
	Name         string
	Bucket       string
	MessageID    string
	PublishTime  string
	Subscription string
}

// OutputName is the processed object name for this notification.
func (n Notification) OutputName() string {
	return ProcessedName(n.Name)
}

// ProcessedName returns "processed-" + name.
func ProcessedName(name string) string {
	return ProcessedPrefix + name
}

// Decode parses a push request body. Every failure is a BAD_REQUEST error.
func Decode(body []byte) (Notification, error) {
	var req PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return Notification{}, errors.WrapWithCode(err, errors.CodeBadRequest, "envelope.decode", "invalid push envelope")
	}
	if req.Message.Data == nil {
		return Notification{}, errors.BadRequest("message.data is missing")
	}

	n, err := DecodeData(*req.Message.Data)
	if err != nil {
		return Notification{}, err
	}

	n.MessageID = req.Message.MessageID
	n.PublishTime = req.Message.PublishTime
	n.Subscription = req.Subscription
	return n, nil
}

// DecodeData decodes a bare base64 message.data value.
func DecodeData(data string) (Notification, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return Notification{}, errors.WrapWithCode(err, errors.CodeBadRequest, "envelope.base64", "message.data is not valid base64")
	}
	if !utf8.Valid(raw) {
		return Notification{}, errors.BadRequest("message.data is not valid UTF-8")
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Notification{}, errors.WrapWithCode(err, errors.CodeBadRequest, "envelope.json", "message.data is not a JSON object")
	}
	if p.Name == nil || *p.Name == "" {
		return Notification{}, errors.BadRequest("invalid message payload: name is required")
	}

	return Notification{Name: *p.Name, Bucket: p.Bucket}, nil
}

// Encode builds the base64 message.data for name. Used by producers and tests.
func Encode(name string) string {
	b, _ := json.Marshal(map[string]string{"name": name})
	return base64.StdEncoding.EncodeToString(b)
}
