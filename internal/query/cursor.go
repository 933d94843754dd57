package query

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/flora-iot/flora-core/internal/reading"
)

var errMalformedCursor = errors.New("malformed page token")

// cursorEncodings are tried in order when decoding. Clients sometimes
// hand back URL-safe or unpadded variants of the token they were given.
var cursorEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// cursorToken is the decoded page token: the store key plus the order of
// the walk it continues.
type cursorToken struct {
	reading.Key
	Order string `json:"Order"`
}

// EncodeCursor turns a store continuation key into an opaque page token
// bound to the order the page was read in. A nil key means the result set
// is exhausted and yields nil.
func EncodeCursor(key *reading.Key, order reading.Order) *string {
	if key == nil {
		return nil
	}
	//nolint:errchkjson // strings and an int64 always marshal
	data, _ := json.Marshal(cursorToken{Key: *key, Order: order.String()})
	s := base64.StdEncoding.EncodeToString(data)
	return &s
}

// DecodeCursor parses a page token produced by EncodeCursor and returns
// the key and the order it was issued for.
func DecodeCursor(token string) (*reading.Key, reading.Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, 0, errMalformedCursor
	}

	var raw []byte
	for _, enc := range cursorEncodings {
		if b, err := enc.DecodeString(token); err == nil {
			raw = b
			break
		}
	}
	if raw == nil {
		return nil, 0, errMalformedCursor
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var tok cursorToken
	if err := dec.Decode(&tok); err != nil {
		return nil, 0, errMalformedCursor
	}
	if dec.More() {
		return nil, 0, errMalformedCursor
	}
	if tok.ID == "" || tok.DeviceID == "" {
		return nil, 0, errMalformedCursor
	}

	var order reading.Order
	switch tok.Order {
	case reading.Ascending.String():
		order = reading.Ascending
	case reading.Descending.String():
		order = reading.Descending
	default:
		return nil, 0, errMalformedCursor
	}
	key := tok.Key
	return &key, order, nil
}
