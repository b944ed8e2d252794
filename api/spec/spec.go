// Package spec embeds the published API description.
package spec

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte

//go:embed docs.html
var DocsPage []byte
