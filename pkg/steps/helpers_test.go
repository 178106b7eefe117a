package steps

import (
	"testing"

	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/config"
	"github.com/systemstart/stackctl/pkg/engine"
	"github.com/systemstart/stackctl/pkg/gcloud/gcloudtest"
)

const notFound = "ERROR: (gcloud) Could not fetch resource:\n - The resource was not found"

// testEnv returns an Env over f with project "proj", region
// "europe-west4" and prefix "demo".
func testEnv(t *testing.T, f *gcloudtest.Fake) Env {
	t.Helper()
	cfg, err := config.New(map[string]string{
		config.KeyProject: "proj",
		config.KeyRegion:  "europe-west4",
		config.KeyPrefix:  "demo",
	})
	if err != nil {
		t.Fatal(err)
	}
	return Env{Runner: f, Config: cfg}
}

// mustStep builds a definition, failing the test on error.
func mustStep(t *testing.T, cfg api.StepConfig, env Env) engine.Definition {
	t.Helper()
	def, err := NewStep(cfg, env)
	if err != nil {
		t.Fatal(err)
	}
	return def
}

func names(pairs ...string) map[engine.StepID]engine.Outputs {
	out := map[engine.StepID]engine.Outputs{}
	for i := 0; i+1 < len(pairs); i += 2 {
		out[engine.StepID(pairs[i])] = engine.Outputs{"name": pairs[i+1]}
	}
	return out
}
