// Package steps binds stack step configurations to gcloud backed probes,
// actions and deleters.
package steps

import (
	"maps"

	"github.com/systemstart/stackctl/pkg/config"
	"github.com/systemstart/stackctl/pkg/gcloud"
)

// Env is what every binding needs at runtime.
type Env struct {
	Runner gcloud.Runner
	Config *config.Config
	// Data is the template data for names and params. Config values are
	// used when it is nil.
	Data map[string]any
}

func (e Env) templateData() map[string]any {
	if e.Data != nil {
		return e.Data
	}
	if e.Config != nil {
		return e.Config.TemplateData()
	}
	return map[string]any{}
}

// WithContext returns a copy of e whose template data is overlaid with ctx.
func (e Env) WithContext(ctx map[string]any) Env {
	data := maps.Clone(e.templateData())
	maps.Copy(data, ctx)
	e.Data = data
	return e
}

func (e Env) region() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Region()
}

func (e Env) project() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Project()
}
