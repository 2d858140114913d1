package gateway

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Response content types
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// encMode uses Core Deterministic Encoding so identical session lists
// always produce identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("gateway: cbor encoder setup: %v", err))
	}
}

// MarshalCBOR encodes v with the gateway's deterministic encoder
func MarshalCBOR(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// negotiate picks the response content type from the "format" query
// parameter or the Accept header. JSON is the default.
func negotiate(r *http.Request) string {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "cbor":
		return ContentTypeCBOR
	case "json":
		return ContentTypeJSON
	}

	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case ContentTypeCBOR:
			return ContentTypeCBOR
		case ContentTypeJSON:
			return ContentTypeJSON
		}
	}
	return ContentTypeJSON
}

// encode marshals v for the given content type
func encode(contentType string, v interface{}) ([]byte, error) {
	if contentType == ContentTypeCBOR {
		return MarshalCBOR(v)
	}
	return json.Marshal(v)
}
