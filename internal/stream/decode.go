package stream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/core-coin/mintviewer/internal/gifts"
	"github.com/core-coin/mintviewer/internal/models"
)

var unrecognized = models.Event{Kind: models.EventUnrecognized}

// DecodeFrame turns the data argument of an upstream event into an Event.
// data is either an array whose second element is the payload object, or
// the payload object itself. Anything else, and any payload whose type is
// not newMint, decodes to an unrecognized event.
func DecodeFrame(data json.RawMessage) models.Event {
	payload, ok := extractPayload(data)
	if !ok {
		return unrecognized
	}
	if stringField(payload["type"]) != string(models.EventNewMint) {
		return unrecognized
	}

	var owner map[string]json.RawMessage
	if raw, ok := payload["owner"]; ok {
		// A non-object owner leaves the name empty.
		_ = json.Unmarshal(raw, &owner)
	}

	giftName := stringField(payload["gift_name"])
	return models.Event{
		Kind:               models.EventNewMint,
		Slug:               stringField(payload["slug"]),
		OwnerName:          stringField(owner["name"]),
		GiftName:           giftName,
		GiftNameNormalized: gifts.Normalize(giftName),
	}
}

func extractPayload(data json.RawMessage) (map[string]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil || len(items) < 2 {
			return nil, false
		}
		return decodeObject(items[1])
	case '{':
		return decodeObject(data)
	}
	return nil, false
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// stringField reads a JSON string. Null or absent yields ""; other scalars
// are rendered as their JSON text.
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return text
}
