package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemstart/stackctl/pkg/markers"
)

func newTestTeardown(t *testing.T, defs []Definition, store markers.Store) *Teardown {
	t.Helper()
	td, err := NewTeardown(defs, store, WithLogger(quietLogger()), WithName("test"))
	require.NoError(t, err)
	return td
}

func provision(t *testing.T, f *fakeCloud, store markers.Store) {
	t.Helper()
	_, err := newTestPipeline(t, loadBalancerDefs(f), store).Run(context.Background())
	require.NoError(t, err)
}

func TestTeardown_DeletesInReverseOrderAndClearsMarkers(t *testing.T) {
	f := newFakeCloud()
	store := markers.NewMemoryStore()
	provision(t, f, store)

	report, err := newTestTeardown(t, loadBalancerDefs(f), store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"delete:rule", "delete:proxy", "delete:ip"}, f.CallsWithPrefix("delete:"))
	assert.Equal(t, map[StepID]Status{
		"rule":  StatusDeleted,
		"proxy": StatusDeleted,
		"ip":    StatusDeleted,
	}, statuses(report))

	left, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestTeardown_DeleterSeesRecordedOutputs(t *testing.T) {
	f := newFakeCloud()
	store := markers.NewMemoryStore()
	provision(t, f, store)

	_, err := newTestTeardown(t, loadBalancerDefs(f), store).Run(context.Background())
	require.NoError(t, err)

	in := f.inputs["rule"]
	assert.Equal(t, Outputs{"name": "rule-res"}, in.Self())
	ip, ok := in.Output("ip", "name")
	assert.True(t, ok, "dependency markers are still present when a dependent is deleted")
	assert.Equal(t, "ip-res", ip)
}

func TestTeardown_TwiceIsSuccessBothTimes(t *testing.T) {
	f := newFakeCloud()
	store := markers.NewMemoryStore()
	provision(t, f, store)

	_, err := newTestTeardown(t, loadBalancerDefs(f), store).Run(context.Background())
	require.NoError(t, err)

	report, err := newTestTeardown(t, loadBalancerDefs(f), store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Count(StatusAlreadyAbsent))
	assert.False(t, report.Failed())
}

func TestTeardown_FailureDoesNotHaltRemainingSteps(t *testing.T) {
	f := newFakeCloud()
	store := markers.NewMemoryStore()
	provision(t, f, store)
	f.deleteErr["proxy"] = errors.New("resource is in use")

	report, err := newTestTeardown(t, loadBalancerDefs(f), store).Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"delete:rule", "delete:proxy", "delete:ip"}, f.CallsWithPrefix("delete:"))
	assert.Equal(t, []StepID{"proxy"}, report.Unreclaimed())

	var delErr *DeleteFailedError
	assert.ErrorAs(t, err, &delErr)

	has, err := store.Has("proxy")
	require.NoError(t, err)
	assert.True(t, has, "marker of an unreclaimed resource is kept")
	has, err = store.Has("ip")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestTeardown_AggregatesEveryFailure(t *testing.T) {
	f := newFakeCloud()
	store := markers.NewMemoryStore()
	provision(t, f, store)
	f.deleteErr["proxy"] = errors.New("in use")
	f.deleteErr["ip"] = errors.New("permission denied")

	report, err := newTestTeardown(t, loadBalancerDefs(f), store).Run(context.Background())
	require.Error(t, err)
	assert.ElementsMatch(t, []StepID{"proxy", "ip"}, report.Unreclaimed())
	assert.Contains(t, err.Error(), "in use")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestTeardown_StepWithoutDeleterIsUnmarked(t *testing.T) {
	f := newFakeCloud()
	store := markers.NewMemoryStore()
	def := f.def("binding")
	def.Delete = nil
	require.NoError(t, store.Put(markers.Marker{StepID: "binding", Outcome: string(StatusCreated)}))

	report, err := newTestTeardown(t, []Definition{def}, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, statuses(report)["binding"])

	has, _ := store.Has("binding")
	assert.False(t, has)
}

func TestTeardown_Cancelled(t *testing.T) {
	f := newFakeCloud()
	store := markers.NewMemoryStore()
	provision(t, f, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestTeardown(t, loadBalancerDefs(f), store).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 3, report.Count(StatusCancelled))
	assert.Empty(t, f.CallsWithPrefix("delete:"))
}

func TestTeardown_CancelledDuringDelete(t *testing.T) {
	f := newFakeCloud()
	store := markers.NewMemoryStore()
	provision(t, f, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defs := loadBalancerDefs(f)
	for i := range defs {
		if defs[i].ID != "rule" {
			continue
		}
		defs[i].Delete = DeleteFunc(func(ctx context.Context, _ Inputs) error {
			f.record("delete:rule")
			cancel()
			return ctx.Err()
		})
	}

	report, err := newTestTeardown(t, defs, store).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, map[StepID]Status{
		"rule":  StatusCancelled,
		"proxy": StatusCancelled,
		"ip":    StatusCancelled,
	}, statuses(report))
	assert.Empty(t, report.Unreclaimed())
	assert.Equal(t, []string{"delete:rule"}, f.CallsWithPrefix("delete:"))

	has, err := store.Has("rule")
	require.NoError(t, err)
	assert.True(t, has, "an interrupted delete keeps its marker")
}
