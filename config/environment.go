// Package config loads the settings that describe which application a quality run targets
// and how it talks to AWS.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	yaml "gopkg.in/yaml.v3"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/opt"
)

// Environment variables that override values from the environment file.
const (
	ApplicationNameVar = "KIQT_APPLICATION_NAME"
	RegionVar          = "KIQT_REGION"
	EndpointVar        = "KIQT_ENDPOINT"
)

// Environment describes one Kinesis Data Analytics application under test.
type Environment struct {
	ApplicationName       string              `json:"applicationName"`
	Region                string              `json:"region,omitempty"`
	Endpoint              string              `json:"endpoint,omitempty"`
	StatusPollInterval    opt.Maybe[Duration] `json:"statusPollInterval,omitempty"`
	MaxStatusAttempts     opt.Maybe[int]      `json:"maxStatusAttempts,omitempty"`
	OutputRefreshInterval opt.Maybe[Duration] `json:"outputRefreshInterval,omitempty"`
	// Outputs lists the application output names that tools should read by default.
	Outputs []string `json:"outputs,omitempty"`
}

// Duration is a time.Duration that is written in files as a Go duration string ("10s")
// or as a number of milliseconds.
type Duration time.Duration

func (d Duration) Value() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms float64
	if err := json.Unmarshal(data, &ms); err == nil {
		if ms < 0 {
			return fmt.Errorf("duration must not be negative: %s", string(data))
		}
		*d = Duration(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string or a number of milliseconds: %s", string(data))
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration must not be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

// LoadEnvironment is ReadEnvironment followed by Validate.
func LoadEnvironment(path string) (Environment, error) {
	env, err := ReadEnvironment(path)
	if err != nil {
		return env, err
	}
	return env, env.Validate()
}

// ReadEnvironment reads an Environment from a JSON or YAML file, then applies any overrides
// from environment variables. An empty path means variables only. The result is not
// validated, so that callers can fill in more settings first.
func ReadEnvironment(path string) (Environment, error) {
	var env Environment
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // the path is supplied by the user
		if err != nil {
			return env, fmt.Errorf("failed to read %q: %w", path, err)
		}
		if err := ParseJSONOrYAML(data, &env); err != nil {
			return env, fmt.Errorf("error parsing %q: %w", path, err)
		}
	}
	env.applyOverrides(os.LookupEnv)
	return env, nil
}

func (e *Environment) applyOverrides(lookup func(string) (string, bool)) {
	if v, ok := lookup(ApplicationNameVar); ok && v != "" {
		e.ApplicationName = v
	}
	if v, ok := lookup(RegionVar); ok && v != "" {
		e.Region = v
	}
	if v, ok := lookup(EndpointVar); ok && v != "" {
		e.Endpoint = v
	}
}

// Validate checks that the Environment names an application and that its numbers make sense.
func (e Environment) Validate() error {
	var errs []error
	if strings.TrimSpace(e.ApplicationName) == "" {
		errs = append(errs, errors.New("applicationName is required"))
	}
	if d, ok := e.StatusPollInterval.Get(); ok && d < 0 {
		errs = append(errs, errors.New("statusPollInterval must not be negative"))
	}
	if n, ok := e.MaxStatusAttempts.Get(); ok && n < 1 {
		errs = append(errs, fmt.Errorf("maxStatusAttempts must be at least 1, was %d", n))
	}
	if d, ok := e.OutputRefreshInterval.Get(); ok && d <= 0 {
		errs = append(errs, errors.New("outputRefreshInterval must be positive"))
	}
	return errors.Join(errs...)
}

// AWSConfig loads the default AWS configuration chain, applying the Environment's region and
// endpoint if they are set.
func (e Environment) AWSConfig(ctx context.Context) (aws.Config, error) {
	var loadOptions []func(*awsconfig.LoadOptions) error
	if e.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(e.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return cfg, fmt.Errorf("unable to load AWS configuration: %w", err)
	}
	if e.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(e.Endpoint)
	}
	return cfg, nil
}

// ParseJSONOrYAML unmarshals data into target, trying JSON first. YAML is normalized to JSON
// so that the same struct tags and custom unmarshalers apply to both.
func ParseJSONOrYAML(data []byte, target interface{}) error {
	if err := json.Unmarshal(data, target); err == nil {
		return nil
	}
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	normalized, err := normalizeYAML(raw)
	if err != nil {
		return err
	}
	jsonData, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}

func normalizeYAML(data interface{}) (interface{}, error) {
	switch data := data.(type) {
	case []interface{}:
		out := make([]interface{}, 0, len(data))
		for _, v := range data {
			v1, err := normalizeYAML(v)
			if err != nil {
				return nil, err
			}
			out = append(out, v1)
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(data))
		for k, v := range data {
			v1, err := normalizeYAML(v)
			if err != nil {
				return nil, err
			}
			out[k] = v1
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(data))
		for k, v := range data {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("YAML data contained a map key of type %T; only string keys are allowed", k)
			}
			v1, err := normalizeYAML(v)
			if err != nil {
				return nil, err
			}
			out[key] = v1
		}
		return out, nil
	default:
		return data, nil
	}
}
