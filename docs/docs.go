// Package docs carries the OpenAPI document served at /swagger.json and
// rendered by the Swagger UI at /api-docs/. The host and schemes fields are
// placeholders; the server injects the deployment's public URL at serve time.
package docs

import _ "embed"

// SwaggerJSON is the raw OpenAPI 2.0 description of the HTTP API.
//
//go:embed swagger.json
var SwaggerJSON []byte
