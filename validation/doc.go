// Package validation validates configuration structs with struct tags.
//
// Field names in messages come from the mapstructure tag, so they match the
// keys a user writes in config.yml.
//
//	type BreakerConfig struct {
//	    MaxFailures int `mapstructure:"max_failures" validate:"gte=1"`
//	}
//	err := validation.Validate(cfg) // *errors.AppError with code INVALID_CONFIG
package validation
