package history

import (
	"encoding/base64"
	"strings"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// nullPayload stands in for a payload whose data field is absent.
const nullPayload = "null"

// DecodePayloads renders a payload list as a readable string.
//
// No payloads yield nil. A single payload yields its decoded data. Several
// payloads yield "[d1, d2, ...]", joined verbatim without re-encoding, so
// the result is only JSON when every element already is.
func DecodePayloads(payloads []schema.Payload) *string {
	switch len(payloads) {
	case 0:
		return nil
	case 1:
		s := decodePayload(payloads[0])
		return &s
	}

	parts := make([]string, len(payloads))
	for i, p := range payloads {
		parts[i] = decodePayload(p)
	}
	s := "[" + strings.Join(parts, ", ") + "]"
	return &s
}

func decodePayload(p schema.Payload) string {
	if p.Data == nil || *p.Data == "" {
		return nullPayload
	}
	return decodeBase64(*p.Data)
}

// decodeBase64 tries the padded and unpadded standard and URL alphabets and
// returns the input unchanged when none of them applies.
func decodeBase64(data string) string {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(data); err == nil {
			return string(b)
		}
	}
	return data
}
