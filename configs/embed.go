// Package configs holds the embedded configuration template.
//
// The template is compiled into the binary with go:embed so `filesense
// config init` works in every distribution, including plain go install.
package configs

import _ "embed"

// ConfigTemplate is the annotated starter config written by
// `filesense config init` to <data_dir>/filesense.yaml.
//
//go:embed filesense.example.yaml
var ConfigTemplate string
