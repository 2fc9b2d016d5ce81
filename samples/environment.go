package samples

import (
	"fmt"
	"os"
	"strings"

	"github.com/Nuvalence/kinesis-quality-toolkit/config"
)

// Environment variables that select the deployed sample application.
const (
	ApplicationNameVar = "KIQT_SAMPLE_APPLICATION_NAME"
	ConfigFileVar      = "KIQT_SAMPLE_CONFIG"
)

// SampleEnvironment returns the configuration of the deployed sample application: the file
// named by KIQT_SAMPLE_CONFIG if set, with the application name overridden by
// KIQT_SAMPLE_APPLICATION_NAME.
func SampleEnvironment() (config.Environment, error) {
	var env config.Environment
	if path := os.Getenv(ConfigFileVar); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // the path is supplied by the user
		if err != nil {
			return env, fmt.Errorf("failed to read %q: %w", path, err)
		}
		if err := config.ParseJSONOrYAML(data, &env); err != nil {
			return env, fmt.Errorf("error parsing %q: %w", path, err)
		}
	}
	if name := strings.TrimSpace(os.Getenv(ApplicationNameVar)); name != "" {
		env.ApplicationName = name
	}
	if env.ApplicationName == "" {
		return env, fmt.Errorf("must specify the sample application with %s or %s", ApplicationNameVar, ConfigFileVar)
	}
	return env, env.Validate()
}
