package wayper

import (
	_ "embed"
)

//go:embed VERSION
var Version string

//go:embed wayper.toml
var DefaultConfig string
