// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the optional gparallel configuration file.
//
// The file is named by the --config flag or, failing that, the
// GPARALLEL_CONFIG environment variable. Without either, [Default]
// applies. There is no search path: the configuration in effect is
// always the one named explicitly.
//
// Files ending in .json or .jsonc are JSON with // and /* */ comments
// and trailing commas allowed; anything else is YAML. Unknown keys are
// errors in both formats so a misspelled setting is caught instead of
// silently ignored.
//
// Path fields support ${VAR} and ${VAR:-default} expansion, so a
// shared file can say "${HOME}/gparallel/logs". Command-line flags are
// applied on top of the loaded file by the caller.
package config
