// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package runconfig loads staged training run configs.
//
// A run config is a single YAML document with model_params, args and stages.
// The stages mapping holds shared default blocks (data_params, state_params,
// criterion_params, optimizer_params, scheduler_params, callbacks_params)
// and one or more named stage blocks. Loading goes through five steps:
//
//	Parse    bytes -> yaml.Node document (single document, mapping root)
//	Anchors  every alias must follow its anchor in source order
//	Expand   aliases and << merge keys are replaced by copies of their targets
//	Resolve  each stage = shared blocks deep-merged with the stage block
//	Validate typed checks plus the callback/optimizer/scheduler catalog
//
// The trainer that consumes these documents is external; this package only
// knows the schema and the names listed in catalog.yaml.
package runconfig
