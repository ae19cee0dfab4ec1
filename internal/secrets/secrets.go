package secrets

import (
	"fmt"
	"os"
	"strings"
)

// GetSecret retrieves a secret value, supporting both direct env vars and the
// Docker secrets pattern: if SECRET_NAME_FILE is set, the secret is read from
// that file path instead of the environment.
func GetSecret(envKey string, defaultValue string) (string, error) {
	filePathKey := envKey + "_FILE"
	if filePath := os.Getenv(filePathKey); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read secret file %s: %w", filePath, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if value := os.Getenv(envKey); value != "" {
		return value, nil
	}

	return defaultValue, nil
}

// GetOptionalSecret retrieves a secret with a default value, never fails
func GetOptionalSecret(envKey string, defaultValue string) string {
	value, err := GetSecret(envKey, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}
