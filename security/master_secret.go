package security

import (
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-social-sync/core"
	"github.com/joho/godotenv"
)

const DefaultMasterSecretEnv = "SOCIALSYNC_MASTER_SECRET"

// MasterSecretFromEnv reads the master secret from the process environment,
// falling back to the given dotenv files in order. Process values win.
func MasterSecretFromEnv(key string, files ...string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultMasterSecretEnv
	}
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value, nil
	}
	for _, file := range files {
		if strings.TrimSpace(file) == "" {
			continue
		}
		values, err := godotenv.Read(file)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", core.NewConfigurationError(fmt.Sprintf("read env file %q: %v", file, err))
		}
		if value := strings.TrimSpace(values[key]); value != "" {
			return value, nil
		}
	}
	return "", core.NewConfigurationError(fmt.Sprintf("%s is not set", key))
}
