// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv (for .env files) and
// github.com/caarlos0/env/v11 (for struct tag parsing). Parsed structs are
// cached per type, so hot paths can call Load freely.
//
//	var cfg backend.Config
//	config.MustLoad(&cfg)
//
// Sentinel errors (ErrParsingConfig, ErrLoadingEnvFile, ErrNilPointer) can be
// matched with errors.Is. Tests call Reset after changing the environment.
package config
