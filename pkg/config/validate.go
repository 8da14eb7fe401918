package config

import (
	"errors"
	"fmt"
	"time"
)

type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing required env %s", e.Name)
}

// Validate reports every problem at once rather than the first one.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) == 0 {
		errs = append(errs, &MissingEnvError{Name: "JWT_SECRET"})
	}
	if c.StaffPassword == "" {
		errs = append(errs, &MissingEnvError{Name: "STAFF_PASSWORD"})
	}
	if c.DeleteSecret == "" {
		errs = append(errs, &MissingEnvError{Name: "DELETE_SECRET"})
	}
	if c.TableCount < 1 {
		errs = append(errs, fmt.Errorf("TABLE_COUNT must be at least 1, got %d", c.TableCount))
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT out of range: %d", c.ServerPort))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	if c.ESURL == "" && (c.ESUser != "" || c.ESPassword != "") {
		errs = append(errs, errors.New("ES_USER/ES_PASSWORD set without ES_URL"))
	}
	return errors.Join(errs...)
}
