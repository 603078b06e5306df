package planner

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/stepflow/types"
)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	return New(log.NewLogger(log.DiscardHandler()))
}

func scenario(name string, tags ...string) *types.Scenario {
	return &types.Scenario{
		ID:   name,
		Name: name,
		Tags: tags,
		Steps: []*types.Step{
			{Keyword: "Given", Text: "a precondition"},
			{Keyword: "Then", Text: "an assertion"},
		},
	}
}

func feature(name string, scenarios ...*types.Scenario) *types.Feature {
	return &types.Feature{Name: name, URI: "feature:" + name, Scenarios: scenarios}
}

func orderOf(plan *types.ExecutionPlan) []string {
	return plan.ExecutionOrder
}

func TestPriorityStrategyOrdering(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("plain"),
		scenario("flaky one", "@flaky"),
		scenario("critical one", "@critical"),
		scenario("smoke one", "@smoke"),
		scenario("critical smoke", "@critical", "@smoke"),
	)}, Options{Strategy: "priority"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"critical smoke", // 180
		"critical one",   // 100
		"smoke one",      // 80
		"plain",          // 0
		"flaky one",      // -20
	}, orderOf(plan))
}

func TestPriorityStrategyIsStable(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("a"),
		scenario("b"),
		scenario("c"),
	)}, Options{Strategy: "priority"})
	require.NoError(t, err)

	// Equal priority keeps document order.
	assert.Equal(t, []string{"a", "b", "c"}, orderOf(plan))
}

func TestResourceStrategyOrdersByCardinality(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("heavy", "@database", "@api", "@network"),
		scenario("light", "@api"),
		scenario("free"),
		scenario("medium", "@database", "@api"),
	)}, Options{Strategy: "resource"})
	require.NoError(t, err)

	assert.Equal(t, []string{"free", "light", "medium", "heavy"}, orderOf(plan))
}

func TestDependencyStrategyTopologicalOrder(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("checkout", "@depends-on(login)"),
		scenario("login", "@depends-on(signup)"),
		scenario("signup"),
	)}, Options{Strategy: "dependency"})
	require.NoError(t, err)

	assert.Equal(t, []string{"signup", "login", "checkout"}, orderOf(plan))
}

func TestDependencyStrategyExplicitID(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("second scenario", "@depends-on(first)"),
		scenario("first scenario", "@id(first)"),
	)}, Options{Strategy: "dependency"})
	require.NoError(t, err)

	assert.Equal(t, []string{"first scenario", "second scenario"}, orderOf(plan))
}

func TestDependencyStrategyCycle(t *testing.T) {
	p := newTestPlanner(t)
	_, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("a", "@depends-on(b)"),
		scenario("b", "@depends-on(a)"),
	)}, Options{Strategy: "dependency"})
	require.Error(t, err)
	assert.True(t, IsCircularDependencyError(err))
}

func TestDependencyStrategyUnknownDependency(t *testing.T) {
	p := newTestPlanner(t)
	_, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("a", "@depends-on(ghost)"),
	)}, Options{Strategy: "dependency"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario")
}

func TestTimeOptimalStrategyOrdering(t *testing.T) {
	p := newTestPlanner(t)
	long := scenario("long")
	long.Steps = append(long.Steps, &types.Step{Keyword: "And", Text: "more work"},
		&types.Step{Keyword: "And", Text: "even more work"})

	plan, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("pinned", "@time(30)"), // 30s via explicit tag
		long,                            // 4 steps = 400ms
		scenario("short"),               // 2 steps = 200ms
		scenario("slow short", "@slow"), // 2 steps x3 = 600ms
	)}, Options{Strategy: "time-optimal"})
	require.NoError(t, err)

	assert.Equal(t, []string{"short", "long", "slow short", "pinned"}, orderOf(plan))
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, EstimateDuration(scenario("s", "@time(30)"), 0))
	assert.Equal(t, 200*time.Millisecond, EstimateDuration(scenario("s"), 0))
	assert.Equal(t, 600*time.Millisecond, EstimateDuration(scenario("s", "@slow"), 0))
	assert.Equal(t, 400*time.Millisecond, EstimateDuration(scenario("s", "@database"), 0))
	assert.Equal(t, 2*time.Second, EstimateDuration(scenario("s"), time.Second))
}

func TestRandomStrategyIsSeedDeterministic(t *testing.T) {
	feats := func() []*types.Feature {
		return []*types.Feature{feature("f",
			scenario("a"), scenario("b"), scenario("c"), scenario("d"),
			scenario("e"), scenario("g"), scenario("h"), scenario("i"),
		)}
	}

	p := newTestPlanner(t)
	first, err := p.CreatePlan(feats(), Options{Strategy: "random", Seed: 42})
	require.NoError(t, err)
	second, err := p.CreatePlan(feats(), Options{Strategy: "random", Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, orderOf(first), orderOf(second))
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "g", "h", "i"}, orderOf(first))
}

func TestUnknownStrategy(t *testing.T) {
	p := newTestPlanner(t)
	_, err := p.CreatePlan([]*types.Feature{feature("f", scenario("a"))}, Options{Strategy: "psychic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scheduling strategy")
}

func TestDefaultStrategyIsPriority(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f", scenario("a"))}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "priority", plan.Strategy)
}

func TestPlanIsIdempotent(t *testing.T) {
	feats := func() []*types.Feature {
		return []*types.Feature{feature("f",
			scenario("a", "@smoke"), scenario("b", "@critical"), scenario("c"),
		)}
	}

	p := newTestPlanner(t)
	for _, strategy := range []string{"priority", "resource", "dependency", "time-optimal"} {
		first, err := p.CreatePlan(feats(), Options{Strategy: strategy})
		require.NoError(t, err, strategy)
		second, err := p.CreatePlan(feats(), Options{Strategy: strategy})
		require.NoError(t, err, strategy)
		assert.Equal(t, orderOf(first), orderOf(second), strategy)
	}
}

func TestSerialGroupIsolation(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("parallel one"),
		scenario("serial one", "@serial"),
		scenario("parallel two"),
		scenario("serial two", "@no-parallel"),
	)}, Options{Parallel: true, Workers: 2})
	require.NoError(t, err)

	require.Len(t, plan.SerialGroup, 2)
	assert.Equal(t, "serial one", plan.SerialGroup[0].Name)
	assert.Equal(t, "serial two", plan.SerialGroup[1].Name)

	for _, group := range plan.ParallelGroups {
		for _, s := range group {
			assert.False(t, s.HasTag("serial"))
			assert.False(t, s.HasTag("no-parallel"))
		}
	}

	for _, item := range plan.WorkItems {
		for _, s := range item.Scenarios {
			if s.HasTag("serial") || s.HasTag("no-parallel") {
				assert.True(t, item.Serial, "serial scenarios must live in serial work items")
			}
		}
	}
}

func TestChunkingAcrossWorkers(t *testing.T) {
	var scenarios []*types.Scenario
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		scenarios = append(scenarios, scenario(name))
	}

	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f", scenarios...)},
		Options{Parallel: true, Workers: 3})
	require.NoError(t, err)

	// ceil(10/3) = 4 per chunk: 4 + 4 + 2.
	require.Len(t, plan.ParallelGroups, 3)
	assert.Len(t, plan.ParallelGroups[0], 4)
	assert.Len(t, plan.ParallelGroups[1], 4)
	assert.Len(t, plan.ParallelGroups[2], 2)
	assert.Equal(t, 10, plan.TotalScenarios())
}

func TestOutlineExpansionInPlan(t *testing.T) {
	outline := &types.Scenario{
		ID:   "out",
		Name: "login outline",
		Type: types.ScenarioTypeOutline,
		Steps: []*types.Step{
			{Keyword: "When", Text: "the user <name> logs in"},
		},
		Examples: []types.Example{
			{Rows: []map[string]string{{"name": "alice"}, {"name": "bob"}}},
		},
	}

	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f", outline)}, Options{})
	require.NoError(t, err)

	require.Equal(t, 2, plan.TotalScenarios())
	assert.Equal(t, "the user alice logs in", plan.Scenarios[0].Steps[0].Text)
	assert.Equal(t, "the user bob logs in", plan.Scenarios[1].Steps[0].Text)
	assert.NotEqual(t, plan.Scenarios[0].ID, plan.Scenarios[1].ID)
}

func TestFeatureTagsFoldIntoScenarios(t *testing.T) {
	f := feature("tagged", scenario("child"))
	f.Tags = []string{"@critical"}

	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{f, feature("plain", scenario("other"))}, Options{})
	require.NoError(t, err)

	// The feature-level @critical must bump the child's priority.
	assert.Equal(t, []string{"child", "other"}, orderOf(plan))
}

func TestCreatePlanLeavesInputUnmodified(t *testing.T) {
	f := feature("tagged", scenario("child", "@critical"))
	f.Tags = []string{"@smoke"}

	p := newTestPlanner(t)
	for i := 0; i < 3; i++ {
		plan, err := p.CreatePlan([]*types.Feature{f}, Options{Strategy: "priority"})
		require.NoError(t, err)
		require.Len(t, plan.Scenarios, 1)
		// The plan's copy carries the folded tags exactly once per rebuild.
		assert.Equal(t, []string{"@smoke", "@critical"}, plan.Scenarios[0].Tags)
	}

	// The parsed scenario is read-only; replanning must not fold feature
	// tags onto it.
	assert.Equal(t, []string{"@critical"}, f.Scenarios[0].Tags)
	assert.Empty(t, f.Scenarios[0].FeatureName)
}

func TestGroupByFeatureWorkItems(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{
		feature("alpha", scenario("a1"), scenario("a2")),
		feature("beta", scenario("b1")),
	}, Options{Grouping: types.GroupByFeature})
	require.NoError(t, err)

	require.Len(t, plan.WorkItems, 2)
	assert.Len(t, plan.WorkItems[0].Scenarios, 2)
	assert.Len(t, plan.WorkItems[1].Scenarios, 1)
}

func TestGroupByScenarioWorkItems(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{
		feature("alpha", scenario("a1"), scenario("a2")),
	}, Options{Grouping: types.GroupByScenario})
	require.NoError(t, err)

	require.Len(t, plan.WorkItems, 2)
	for _, item := range plan.WorkItems {
		assert.Len(t, item.Scenarios, 1)
		assert.NotEmpty(t, item.ID)
	}
}

func TestPlanDurationEstimate(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("serial", "@serial", "@time(10)"),
		scenario("par one", "@time(4)"),
		scenario("par two", "@time(6)"),
	)}, Options{Parallel: true, Workers: 2})
	require.NoError(t, err)

	// Serial total (10s) plus the largest parallel chunk.
	assert.GreaterOrEqual(t, plan.EstimatedDuration, 14*time.Second)
	assert.LessOrEqual(t, plan.EstimatedDuration, 20*time.Second)
}

func TestRegisterStrategyOverride(t *testing.T) {
	p := newTestPlanner(t)
	p.RegisterStrategy(reverseStrategy{})

	plan, err := p.CreatePlan([]*types.Feature{feature("f",
		scenario("a"), scenario("b"), scenario("c"),
	)}, Options{Strategy: "reverse"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, orderOf(plan))
}

type reverseStrategy struct{}

func (reverseStrategy) Name() string { return "reverse" }

func (reverseStrategy) Order(scenarios []*types.Scenario) ([]*types.Scenario, error) {
	out := make([]*types.Scenario, len(scenarios))
	for i, s := range scenarios {
		out[len(scenarios)-1-i] = s
	}
	return out, nil
}
