package imports

import (
	// Registers the conversion and clipboard tools with the registry
	_ "github.com/sammcj/yaml-bridge/internal/tools/convert"
	_ "github.com/sammcj/yaml-bridge/internal/tools/copytext"
)
