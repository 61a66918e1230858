// Package manager coordinates stateful-model inference. It is structured
// into small files by concern:
//
//   - manager.go: multi-model Manager, construction, routing, status.
//   - instance.go: StatefulModel: compiled model, handle pool, sequence
//     manager, reaper registration lifecycle.
//   - extract.go: special-input extraction and cross-field validation.
//   - validate.go: generic input validation against the declared input set.
//   - infer.go: the stateful inference pipeline for one request.
//   - metrics.go: per-model metric reporter.
//   - errors.go: error types and helpers (IsModelNotFound).
//
// External packages should treat this package as the orchestration layer and
// use public methods only (NewWithConfig, Infer, ListModels, Status, Ready,
// ReloadModel, RetireModel, Close).
package manager
