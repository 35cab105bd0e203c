package config

import (
	"errors"
	"fmt"
)

// socketURL builds a PostgreSQL DSN for a Cloud SQL instance mounted under
// /cloudsql. An empty password selects IAM authentication.
func (d DatabaseConfig) socketURL() (string, error) {
	if d.User == "" || d.Name == "" {
		return "", errors.New("invalid INSTANCE_CONNECTION_NAME: DB_USER and DB_NAME must be set")
	}
	socketPath := fmt.Sprintf("/cloudsql/%s", d.Instance)
	if d.Password == "" {
		return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socketPath, d.User, d.Name), nil
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
		socketPath, d.User, d.Password, d.Name), nil
}

// resolve fills URL from the Cloud SQL settings when DATABASE_URL is unset.
func (d *DatabaseConfig) resolve() error {
	if d.URL != "" || d.Instance == "" {
		return nil
	}
	url, err := d.socketURL()
	if err != nil {
		return err
	}
	d.URL = url
	return nil
}
