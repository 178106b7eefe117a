package processing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/engine"
	"github.com/systemstart/stackctl/pkg/gcloud/gcloudtest"
	"github.com/systemstart/stackctl/pkg/stacks"
)

func TestApply_ConvergesAndResumes(t *testing.T) {
	f := &gcloudtest.Fake{}
	f.On("compute", "addresses", "describe").Fails(notFound).Once()
	opts := testOptions(t, f)
	list := []*api.Stack{mustParse(t, edgeStack), mustParse(t, armorStack)}

	results, err := Apply(t.Context(), list, opts)
	require.NoError(t, err)
	require.Len(t, results, 2)
	ip, _ := results[0].Report.Result("ip")
	assert.Equal(t, engine.StatusCreated, ip.Status)
	cert, _ := results[0].Report.Result("cert")
	assert.Equal(t, engine.StatusExistedAlready, cert.Status)
	assert.Equal(t, results[0].Report.RunID, results[1].Report.RunID)

	assert.FileExists(t, filepath.Join(opts.StateDir, "edge", "ip.done.yaml"))
	assert.FileExists(t, filepath.Join(opts.StateDir, "armor", "policy.done.yaml"))
	assert.Equal(t, []string{"compute addresses create demo-ip --ip-version=IPV4 --global"},
		f.CallsTo("compute", "addresses", "create"))

	calls := len(f.Calls())
	results, err = Apply(t.Context(), list, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, results[0].Report.Count(engine.StatusSkipped))
	assert.Len(t, f.Calls(), calls)
}

func TestApply_StopsAtFirstFailedStack(t *testing.T) {
	f := &gcloudtest.Fake{}
	f.On("compute", "addresses", "describe").Fails(notFound)
	f.On("compute", "addresses", "create").Fails("ERROR: PERMISSION_DENIED")
	opts := testOptions(t, f)
	list := []*api.Stack{mustParse(t, edgeStack), mustParse(t, armorStack)}

	results, err := Apply(t.Context(), list, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "ip"`)
	require.Len(t, results, 1)

	cert, _ := results[0].Report.Result("cert")
	assert.Equal(t, engine.StatusBlocked, cert.Status)
	assert.Empty(t, f.CallsTo("compute", "security-policies"))
}

func TestApply_ConfigurationErrorBeforeAnyCall(t *testing.T) {
	f := &gcloudtest.Fake{}
	opts := testOptions(t, f)
	cyclic := mustParse(t, `
name: loop
steps:
  - id: a
    kind: global-address
    name: a
    dependsOn: [b]
  - id: b
    kind: global-address
    name: b
    dependsOn: [a]
`)

	_, err := Apply(t.Context(), []*api.Stack{mustParse(t, armorStack), cyclic}, opts)
	require.Error(t, err)
	var cfgErr *engine.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, engine.ReasonCycle, cfgErr.Reason)
	assert.Empty(t, f.Calls())
}

func TestDestroy_ReverseOrderAndBestEffort(t *testing.T) {
	f := &gcloudtest.Fake{}
	f.On("compute", "security-policies", "delete").Fails("ERROR: resource is in use")
	f.On("compute", "addresses", "delete").Fails(notFound)
	opts := testOptions(t, f)
	list := []*api.Stack{mustParse(t, edgeStack), mustParse(t, armorStack)}

	_, err := Apply(t.Context(), list, opts)
	require.NoError(t, err)

	results, err := Destroy(t.Context(), list, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource is in use")
	require.Len(t, results, 2)
	assert.Equal(t, "armor", results[0].Stack)
	assert.Equal(t, "edge", results[1].Stack)

	edge := results[1].Report
	cert, _ := edge.Result("cert")
	assert.Equal(t, engine.StatusDeleted, cert.Status)
	ip, _ := edge.Result("ip")
	assert.Equal(t, engine.StatusAlreadyAbsent, ip.Status)
	assert.Equal(t, []engine.StepID{"policy"}, results[0].Report.Unreclaimed())

	assert.NoFileExists(t, filepath.Join(opts.StateDir, "edge", "ip.done.yaml"))
	assert.FileExists(t, filepath.Join(opts.StateDir, "armor", "policy.done.yaml"))
}

func applyIAM(t *testing.T, f *gcloudtest.Fake, opts Options) []*api.Stack {
	t.Helper()
	f.On("iam", "service-accounts", "describe").Fails(notFound).Once()
	f.On("projects", "get-iam-policy").Returns(`{"bindings": []}`)
	f.On("run", "services", "get-iam-policy").Returns(`{"bindings": []}`)

	iam, err := stacks.Load("iam")
	require.NoError(t, err)
	list := []*api.Stack{iam}
	_, err = Apply(t.Context(), list, opts)
	require.NoError(t, err)
	return list
}

func stepStatuses(r *engine.Report) map[engine.StepID]engine.Status {
	out := make(map[engine.StepID]engine.Status, len(r.Results))
	for _, res := range r.Results {
		out[res.ID] = res.Status
	}
	return out
}

func TestDestroy_BuiltinIAMStackTwice(t *testing.T) {
	f := &gcloudtest.Fake{}
	opts := testOptions(t, f)
	list := applyIAM(t, f, opts)

	results, err := Destroy(t.Context(), list, opts)
	require.NoError(t, err)
	assert.Equal(t, map[engine.StepID]engine.Status{
		"armor-user": engine.StatusDeleted,
		"invoker":    engine.StatusDeleted,
		"sa":         engine.StatusDeleted,
	}, stepStatuses(results[0].Report))

	f.On("iam", "service-accounts", "delete").Fails(notFound)
	f.On("projects", "remove-iam-policy-binding").Fails(notFound)
	f.On("run", "services", "remove-iam-policy-binding").Fails(notFound)

	results, err = Destroy(t.Context(), list, opts)
	require.NoError(t, err)
	assert.Equal(t, map[engine.StepID]engine.Status{
		"armor-user": engine.StatusAlreadyAbsent,
		"invoker":    engine.StatusAlreadyAbsent,
		"sa":         engine.StatusAlreadyAbsent,
	}, stepStatuses(results[0].Report))
}

func TestDestroy_BindingLeftBehindIsRemovedLater(t *testing.T) {
	f := &gcloudtest.Fake{}
	opts := testOptions(t, f)
	list := applyIAM(t, f, opts)

	f.On("run", "services", "remove-iam-policy-binding").Fails("ERROR: UNAVAILABLE").Once()
	results, err := Destroy(t.Context(), list, opts)
	require.Error(t, err)
	assert.Equal(t, []engine.StepID{"invoker"}, results[0].Report.Unreclaimed())
	sa, _ := results[0].Report.Result("sa")
	assert.Equal(t, engine.StatusDeleted, sa.Status)

	results, err = Destroy(t.Context(), list, opts)
	require.NoError(t, err)
	invoker, _ := results[0].Report.Result("invoker")
	assert.Equal(t, engine.StatusDeleted, invoker.Status)
	assert.Equal(t, []string{
		"run services remove-iam-policy-binding vllm --region=europe-west4 --member=serviceAccount:demo-guardian@proj.iam.gserviceaccount.com --role=roles/run.invoker",
		"run services remove-iam-policy-binding vllm --region=europe-west4 --member=serviceAccount:demo-guardian@proj.iam.gserviceaccount.com --role=roles/run.invoker",
	}, f.CallsTo("run", "services", "remove-iam-policy-binding"))
}

func TestStatus(t *testing.T) {
	f := &gcloudtest.Fake{}
	opts := testOptions(t, f)
	edge := mustParse(t, edgeStack)

	states, err := Status([]*api.Stack{edge}, opts)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.False(t, states[0].Done)

	_, err = Apply(t.Context(), []*api.Stack{edge}, opts)
	require.NoError(t, err)

	states, err = Status([]*api.Stack{edge}, opts)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "ip", states[0].Step)
	assert.True(t, states[0].Done)
	assert.Equal(t, string(engine.StatusExistedAlready), states[0].Outcome)
	assert.Equal(t, "demo-ip", states[0].Outputs["name"])
	assert.Equal(t, "cert", states[1].Step)
}

func TestReset(t *testing.T) {
	f := &gcloudtest.Fake{}
	opts := testOptions(t, f)
	edge := mustParse(t, edgeStack)

	_, err := Apply(t.Context(), []*api.Stack{edge}, opts)
	require.NoError(t, err)

	cleared, err := Reset(edge, "c*", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"cert"}, cleared)
	assert.FileExists(t, filepath.Join(opts.StateDir, "edge", "ip.done.yaml"))

	cleared, err = Reset(edge, "", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"ip"}, cleared)

	entries, err := os.ReadDir(filepath.Join(opts.StateDir, "edge"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreFor_DefaultStateDir(t *testing.T) {
	assert.Equal(t, filepath.Join(DefaultStateDir, "edge"), Options{}.StoreFor("edge").Dir())
}
