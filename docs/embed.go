// Package docs carries the OpenAPI description compiled into the binary so
// /docs/ works regardless of the working directory.
package docs

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
