// Package config loads layered inspectbridge configuration.
//
// Configuration is merged from, in increasing priority: the global config
// directory (~/.config/inspectbridge), the project directory
// (inspectbridge.json[c]/.yaml at the root or under .inspectbridge/), an
// explicit INSPECTBRIDGE_CONFIG file, inline INSPECTBRIDGE_CONFIG_CONTENT
// JSON, and finally INSPECTBRIDGE_* environment variables.
//
// JSON files may contain JSONC comments. Values support {env:VAR} and
// {file:path} interpolation, so secrets can live outside the config file.
package config
