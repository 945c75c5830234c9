// Package configs embeds the configuration template written by
// `coderag config init`.
package configs

import _ "embed"

// ProjectConfigTemplate is a commented .coderag.yaml with every section.
//
//go:embed coderag.example.yaml
var ProjectConfigTemplate string
