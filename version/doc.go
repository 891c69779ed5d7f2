// Package version reports the pipefy build version.
//
// Version and GitCommit are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/pipefy/version.Version=1.2.0"
//
// Without ldflags the version is read from the module build info, so a
// binary depending on pipefy reports the pipefy version it was built with.
package version
