// Package chooserconfig loads the dotted-key chooser configuration
// grammar (task.chooser.batch.size, task.chooser.priorities.<sys>.<stream>,
// task.chooser.bootstrap.<sys>.<stream>) into a typed chooser.Config,
// the way internal/config.LoadConfig projects a flat YAML map onto
// types.Config: read the file, overlay CHOOSER_-prefixed environment
// variables, apply defaults, then validate.
package chooserconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/streamrt/chooser/pkg/chooser"
	apperrors "github.com/streamrt/chooser/pkg/errors"
)

const (
	keyBatchSize              = "task.chooser.batch.size"
	prefixPriorities           = "task.chooser.priorities."
	prefixBootstrap            = "task.chooser.bootstrap."
	keyDefaultSelectorFactory = "task.chooser.default-selector-factory"

	envPrefix = "CHOOSER_"
)

// Load reads a flat dotted-key YAML document from path, overlays any
// CHOOSER_-prefixed environment variables (underscore-for-dot,
// uppercased — e.g. CHOOSER_TASK_CHOOSER_BATCH_SIZE), applies defaults,
// and validates the result into a chooser.Config.
func Load(path string) (chooser.Config, error) {
	raw := make(map[string]string)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return chooser.Config{}, apperrors.ConfigurationError("load", "reading configuration file").Wrap(err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return chooser.Config{}, apperrors.ConfigurationError("load", "parsing configuration YAML").Wrap(err)
		}
	}

	applyEnvironmentOverrides(raw)

	cfg := project(raw)
	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return chooser.Config{}, err
	}

	return cfg, nil
}

// project turns the flat dotted-key map into the typed Config fields
// the composer consumes, mirroring applyDefaults/loadFilePipeline's
// generic-map-to-typed-field projection in internal/config.
func project(raw map[string]string) chooser.Config {
	cfg := chooser.Config{
		Priorities:       make(map[string]int),
		BootstrapStreams: make(map[string]bool),
	}

	for key, value := range raw {
		switch {
		case key == keyBatchSize:
			if n, err := strconv.Atoi(value); err == nil {
				cfg.BatchSize = n
			}
		case key == keyDefaultSelectorFactory:
			cfg.DefaultSelectorFactory = value
		case strings.HasPrefix(key, prefixPriorities):
			stream := lastDottedSegment(strings.TrimPrefix(key, prefixPriorities))
			if n, err := strconv.Atoi(value); err == nil {
				cfg.Priorities[stream] = n
			}
		case strings.HasPrefix(key, prefixBootstrap):
			stream := lastDottedSegment(strings.TrimPrefix(key, prefixBootstrap))
			if b, err := strconv.ParseBool(value); err == nil {
				cfg.BootstrapStreams[stream] = b
			}
		}
	}

	return cfg
}

// lastDottedSegment extracts the stream name from a "<system>.<stream>"
// suffix. The system component is not separately modeled by
// chooser.Config — priority and bootstrap are keyed purely by stream
// name, per spec's Composer algorithm — so only the final segment
// matters here.
func lastDottedSegment(s string) string {
	idx := strings.LastIndex(s, ".")
	if idx == -1 {
		return s
	}
	return s[idx+1:]
}

// applyDefaults fills in the composer's documented defaults: no
// batching, no priorities, round-robin tie-breaking.
func applyDefaults(cfg *chooser.Config) {
	if cfg.DefaultSelectorFactory == "" {
		cfg.DefaultSelectorFactory = "round-robin"
	}
}

// applyEnvironmentOverrides mirrors internal/config's getEnvString
// family: environment variables take precedence over the file when
// present. CHOOSER_TASK_CHOOSER_BATCH_SIZE overrides task.chooser.batch.size.
func applyEnvironmentOverrides(raw map[string]string) {
	for _, entry := range os.Environ() {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], envPrefix) {
			continue
		}
		dotted := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(parts[0], envPrefix), "_", "."))
		raw[dotted] = parts[1]
	}
}

// Validate rejects configurations the composer cannot act on. The only
// check is for a negative batch size. A stream that has both an explicit
// priority and a bootstrap declaration is not an error (the composer
// lets the explicit priority win), and an empty default-selector-factory
// name is accepted, since the composer treats empty as "use round-robin".
func Validate(cfg chooser.Config) error {
	if cfg.BatchSize < 0 {
		return apperrors.ConfigurationError("validate",
			fmt.Sprintf("task.chooser.batch.size must be non-negative, got %d", cfg.BatchSize))
	}
	return nil
}
