package pages

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeMarkupPayload unpacks the compressed HTML page list sent by job
// producers: a base64 string of a gzip stream holding a JSON array of HTML
// documents, one per page.
func DecodeMarkupPayload(payload string) ([]string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("payload is not base64: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("payload is not gzip: %w", err)
	}
	defer zr.Close()

	var html []string
	if err := json.NewDecoder(zr).Decode(&html); err != nil {
		return nil, fmt.Errorf("payload is not a JSON array of pages: %w", err)
	}
	return html, nil
}
