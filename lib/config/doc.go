// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the Pulse client's YAML configuration.
//
// Configuration comes from exactly one file, named either by the
// --config flag ([LoadFile]) or by the PULSE_CONFIG environment
// variable ([Load]). Values absent from the file keep their
// [Default]. After loading, ${HOME}, ${PULSE_STATE} and
// ${VAR:-default} are expanded in path fields; no other environment
// variable overrides a config value.
//
// This package depends on no other Pulse packages.
package config
