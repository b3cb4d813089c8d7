// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv for .env files and
// github.com/caarlos0/env/v11 for struct parsing. Every component in this
// module exposes a Config struct with `env` tags; the daemon assembles them:
//
//	recoveryCfg, err := config.Load[recovery.Config](config.WithPrefix("RECOVERY_"))
//	if err != nil {
//	    return err
//	}
//
// Tests pass an explicit environment instead of mutating the process:
//
//	cfg, err := config.Load[AppConfig](config.WithEnvironment(map[string]string{
//	    "STORE_DRIVER": "redis",
//	}))
package config
