package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/tmc/mcpdiag"
)

// fileConfig is the YAML shape of a probe configuration file.
type fileConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Workdir string            `yaml:"workdir"`
	Env     map[string]string `yaml:"env"`
	Timeout duration          `yaml:"timeout"`
	Settle  duration          `yaml:"settle"`
	Grace   duration          `yaml:"grace"`
}

// duration parses YAML strings like "10s" into a time.Duration.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// envOverrides are environment-variable knobs for the timeouts, applied on
// top of file values and below explicit flags.
type envOverrides struct {
	Timeout time.Duration `env:"MCPDIAG_TIMEOUT"`
	Settle  time.Duration `env:"MCPDIAG_SETTLE"`
	Grace   time.Duration `env:"MCPDIAG_GRACE"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// resolveTimeouts layers the timeout sources: diagnostic defaults, then the
// config file, then MCPDIAG_* environment variables, then flags.
func resolveTimeouts(file *fileConfig, flagTimeout, flagSettle, flagGrace time.Duration) mcpdiag.Timeouts {
	t := mcpdiag.DefaultTimeouts()

	if file != nil {
		if file.Timeout > 0 {
			t.Step = time.Duration(file.Timeout)
		}
		if file.Settle > 0 {
			t.Settle = time.Duration(file.Settle)
		}
		if file.Grace > 0 {
			t.Grace = time.Duration(file.Grace)
		}
	}

	var env envOverrides
	// All fields are optional; decode errors just leave the zero values.
	_ = envdecode.Decode(&env)
	if env.Timeout > 0 {
		t.Step = env.Timeout
	}
	if env.Settle > 0 {
		t.Settle = env.Settle
	}
	if env.Grace > 0 {
		t.Grace = env.Grace
	}

	if flagTimeout > 0 {
		t.Step = flagTimeout
	}
	if flagSettle > 0 {
		t.Settle = flagSettle
	}
	if flagGrace > 0 {
		t.Grace = flagGrace
	}
	return t
}

// buildEnv turns the config file's env mapping plus --env KEY=VAL flags into
// the full process environment. The harness environment is the base; an
// empty result means inherit unchanged.
func buildEnv(fileEnv map[string]string, flagEnv []string) []string {
	if len(fileEnv) == 0 && len(flagEnv) == 0 {
		return nil
	}
	env := os.Environ()
	keys := make([]string, 0, len(fileEnv))
	for k := range fileEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+fileEnv[k])
	}
	env = append(env, flagEnv...)
	return env
}
