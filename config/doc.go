// Package config loads and validates pipeline configuration.
//
// Configuration comes from a YAML file, an optional .env file and the
// process environment, in increasing order of precedence. Environment
// variables carry the PIPEFY_ prefix with underscore-separated paths:
//
//	PIPEFY_BUFFER_SIZE=32            -> buffer_size
//	PIPEFY_BREAKER_MAX_FAILURES=3    -> breaker.max_failures
//	PIPEFY_LOGGING_LEVEL=debug       -> logging.level
//
// # Usage
//
//	cfg, err := config.LoadPipelineConfig("ingest")
//	if err != nil {
//		return err
//	}
//	p, err := pipeline.Compose(stages, pipeline.WithConfig(cfg))
package config
