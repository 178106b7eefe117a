package steps

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/systemstart/stackctl/pkg/engine"
)

// render executes text as a template with sprig functions and an
// "output" function reading dependency outputs from in.
func render(name, text string, data map[string]any, in engine.Inputs) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	funcs := sprig.TxtFuncMap()
	funcs["output"] = func(step, key string) (string, error) {
		return in.MustOutput(engine.StepID(step), key)
	}

	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func renderMap(prefix string, in map[string]string, data map[string]any, inputs engine.Inputs) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for _, k := range slices.Sorted(maps.Keys(in)) {
		v, err := render(prefix+"."+k, in[k], data, inputs)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
