// Package configs provides embedded configuration templates.
// Templates are embedded at build time so they are available in all
// distributions, and are written out by `codechatd config init`.
package configs

import _ "embed"

// UserConfigTemplate is the template for the machine-level JSON
// configuration created at ~/.config/codechat/config.json.
//
//go:embed config.example.json
var UserConfigTemplate string

// ProjectConfigTemplate is the template for the per-project
// .codechat.yaml settings file.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
