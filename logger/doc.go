// Package logger provides structured logging for pipefy using zerolog.
//
// It supports JSON and console output, level configuration, named loggers
// and component-scoped loggers with structured fields. A pipeline logs
// nothing unless it is given a logger with pipeline.WithLogger or a logger
// is registered under ComponentPipeline.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&logger.Config{Level: "debug", Format: "console"}, "ingest")
//	logger.Register(logger.ComponentPipeline, log)
//	log.Info("pipeline composed", logger.Fields(logger.FieldStages, 4))
package logger
