package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sam-e/fabric/internal/domain"
)

// configEnvVar is the variable the original implementation's five
// independent processes each read to avoid re-parsing and re-resolving the
// template on every process boot: one process materializes the graph once,
// serializes it, and every other process (here: every other listener
// started from the same binary) loads it back verbatim.
const configEnvVar = "CONFIG"

// templateEnvVar lists the SAM/CloudFormation template paths to parse when
// CONFIG is not already set, colon-separated to match PATH-style env var
// conventions.
const templateEnvVar = "SAM_TEMPLATE"

// LoadGraphFromEnv is the single entrypoint cmd/invoker uses to load the
// graph that every listener it starts shares. If CONFIG is set, it is YAML-decoded directly
// into a ResourceGraph — compiled route regexes are not serialized, so every
// APIRouteBinding is recompiled after decoding. Otherwise SAM_TEMPLATE is
// split on ':' and parsed fresh via ParseTemplates.
func LoadGraphFromEnv() (*domain.ResourceGraph, error) {
	if raw, ok := os.LookupEnv(configEnvVar); ok && raw != "" {
		var graph domain.ResourceGraph
		if err := yaml.Unmarshal([]byte(raw), &graph); err != nil {
			return nil, fmt.Errorf("decode %s: %w", configEnvVar, err)
		}
		if err := recompileRoutes(&graph); err != nil {
			return nil, err
		}
		return &graph, nil
	}

	paths := os.Getenv(templateEnvVar)
	if paths == "" {
		return nil, fmt.Errorf("neither %s nor %s is set", configEnvVar, templateEnvVar)
	}
	return ParseTemplates(strings.Split(paths, ":"))
}

// SaveGraphToEnv serializes graph as the original implementation did: a YAML
// document suitable for handing to a child process (or, here, for a test to
// round-trip through) via the CONFIG environment variable.
func SaveGraphToEnv(graph *domain.ResourceGraph) (string, error) {
	out, err := yaml.Marshal(graph)
	if err != nil {
		return "", fmt.Errorf("encode graph: %w", err)
	}
	return string(out), nil
}

// recompileRoutes re-derives every APIRouteBinding's compiled regex after a
// graph has been decoded from YAML, since regexp.Regexp does not implement
// yaml.Marshaler/Unmarshaler and the field is unexported besides.
func recompileRoutes(graph *domain.ResourceGraph) error {
	for _, fn := range graph.Functions {
		for i := range fn.Events {
			ev := &fn.Events[i]
			if ev.Kind != domain.BindingAPIRoute || ev.API == nil {
				continue
			}
			if err := ev.API.CompileRoute(); err != nil {
				return fmt.Errorf("recompile route for %s: %w", fn.Name, err)
			}
		}
	}
	return nil
}
