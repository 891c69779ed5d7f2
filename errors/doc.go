// Package errors provides the error types used by pipefy.
//
// A failing stage is always reported as a *StageError. Every other failure
// (an invalid pipeline, an invalid configuration, a refused reconnect) is an
// *AppError carrying a machine-readable ErrorCode.
package errors
