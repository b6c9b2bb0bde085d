// Package openapi acquires and parses backend interface documents. It
// accepts both OpenAPI 3.x and legacy Swagger 2.0 JSON; 2.0 documents are
// converted to 3.x once at parse time so the rest of the engine only ever
// sees one document shape.
package openapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/goccy/go-json"
)

// Document is one parsed interface document plus its structural identity.
type Document struct {
	Spec        *openapi3.T
	Raw         []byte
	Fingerprint string
	// SourcePath is the conventional path the document was fetched from,
	// empty for documents parsed from local data.
	SourcePath string
}

type versionProbe struct {
	OpenAPI string `json:"openapi"`
	Swagger string `json:"swagger"`
}

// Parse decodes data as an OpenAPI 3.x or Swagger 2.0 JSON document.
func Parse(data []byte) (*Document, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("openapi: not a JSON document: %w", err)
	}

	var spec *openapi3.T
	switch {
	case probe.Swagger != "":
		var v2 openapi2.T
		if err := json.Unmarshal(data, &v2); err != nil {
			return nil, fmt.Errorf("openapi: invalid swagger 2.0 document: %w", err)
		}
		converted, err := openapi2conv.ToV3(&v2)
		if err != nil {
			return nil, fmt.Errorf("openapi: convert swagger 2.0: %w", err)
		}
		spec = converted
	case probe.OpenAPI != "":
		loader := &openapi3.Loader{IsExternalRefsAllowed: false}
		parsed, err := loader.LoadFromData(data)
		if err != nil {
			return nil, fmt.Errorf("openapi: invalid openapi 3.x document: %w", err)
		}
		spec = parsed
	default:
		return nil, fmt.Errorf("openapi: document declares neither openapi nor swagger version")
	}

	return &Document{
		Spec:        spec,
		Raw:         data,
		Fingerprint: Fingerprint(data),
	}, nil
}

// Fingerprint returns the structural identity of a raw document. Two
// documents with identical bytes are identical structures; change detection
// compares fingerprints, never pointers.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintSpec computes the fingerprint of an in-memory specification by
// marshalling it to canonical JSON first. Used by tests and in-memory
// providers that never had raw bytes.
func FingerprintSpec(spec *openapi3.T) string {
	data, err := json.Marshal(spec)
	if err != nil {
		return ""
	}
	return Fingerprint(data)
}
