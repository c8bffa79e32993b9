package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its struct tags plus the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	switch cfg.ObjectStore.Driver {
	case "minio", "s3":
		if cfg.ObjectStore.AccessKey == "" || cfg.ObjectStore.SecretKey == "" {
			return fmt.Errorf("object store driver %q requires OBJECT_STORE_ACCESS_KEY and OBJECT_STORE_SECRET_KEY", cfg.ObjectStore.Driver)
		}
	}

	if cfg.Mailer.RelayURL != "" {
		if err := validate.Var(cfg.Mailer.RelayURL, "url"); err != nil {
			return fmt.Errorf("MAIL_RELAY_URL: %w", formatValidationError(err))
		}
	}

	if cfg.IsProduction() && cfg.ObjectStore.Driver == "memory" {
		return errors.New("memory object store is not allowed in production")
	}
	if cfg.IsProduction() && cfg.Mailer.Driver == "log" {
		return errors.New("log mailer is not allowed in production")
	}

	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
