package workflow

import (
	"fmt"
	"sort"
)

// Node names in the decision graph.
const (
	NodeSeverityCheck     = "severity_check"
	NodeStructuredPredict = "structured_predict"
	NodeTextPredict       = "text_predict"
	NodePredict           = "predict"
	NodeFusion            = "fusion"
	NodeConfidenceCheck   = "confidence_check"
	NodeHumanReview       = "human_review"
	NodeFinalize          = "finalize"
)

// Edge is a directed transition between steps. Condition names the routing
// rule that selects it; an empty condition means unconditional.
type Edge struct {
	Step      string
	Condition string
}

// Step is a single node in the decision graph.
type Step struct {
	name string
	next []*Edge
	end  bool
}

// StepOptions configures a new step
type StepOptions struct {
	Name string
	Next []*Edge
	End  bool
}

func NewStep(opts StepOptions) *Step {
	return &Step{
		name: opts.Name,
		next: opts.Next,
		end:  opts.End,
	}
}

func (s *Step) Name() string {
	return s.name
}

// Next returns the outgoing edges for this step
func (s *Step) Next() []*Edge {
	return s.next
}

func (s *Step) End() bool {
	return s.end
}

// HasEdgeTo reports whether the step declares a transition to name.
func (s *Step) HasEdgeTo(name string) bool {
	for _, edge := range s.next {
		if edge.Step == name {
			return true
		}
	}
	return false
}

type Graph struct {
	steps map[string]*Step
	start *Step
}

// NewGraph creates a new graph containing the given steps
func NewGraph(steps []*Step, start *Step) *Graph {
	graphSteps := make(map[string]*Step, len(steps))
	for _, step := range steps {
		graphSteps[step.name] = step
	}
	return &Graph{
		steps: graphSteps,
		start: start,
	}
}

// Start returns the start step of the graph
func (g *Graph) Start() *Step {
	return g.start
}

// Get returns a step by name
func (g *Graph) Get(name string) (*Step, bool) {
	step, ok := g.steps[name]
	return step, ok
}

// Names returns the names of all steps in the graph
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.steps))
	for name := range g.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Graph) Validate() error {
	if len(g.steps) == 0 {
		return fmt.Errorf("graph must have at least one step")
	}
	if g.start == nil {
		return fmt.Errorf("graph must have a start step")
	}
	if _, ok := g.steps[g.start.name]; !ok {
		return fmt.Errorf("start step %q not found", g.start.name)
	}
	var hasEnd bool
	for _, step := range g.steps {
		if step.name == "" {
			return fmt.Errorf("step name cannot be empty")
		}
		if step.end {
			hasEnd = true
			continue
		}
		if len(step.next) == 0 {
			return fmt.Errorf("step %q has no outgoing edges and is not an end step", step.name)
		}
		for _, edge := range step.next {
			if _, ok := g.steps[edge.Step]; !ok {
				return fmt.Errorf("edge to step %q not found", edge.Step)
			}
		}
	}
	if !hasEnd {
		return fmt.Errorf("graph must have at least one end step")
	}
	return nil
}

// DecisionGraph builds the admission decision graph. The predict step fans
// out internally to the structured and text predictors; its outgoing edges
// describe the join.
func DecisionGraph() *Graph {
	severity := NewStep(StepOptions{
		Name: NodeSeverityCheck,
		Next: []*Edge{
			{Step: NodeFinalize, Condition: "severity_flag"},
			{Step: NodePredict},
		},
	})
	predict := NewStep(StepOptions{
		Name: NodePredict,
		Next: []*Edge{
			{Step: NodeFinalize, Condition: "insufficient_signal"},
			{Step: NodeFusion},
		},
	})
	fusion := NewStep(StepOptions{
		Name: NodeFusion,
		Next: []*Edge{{Step: NodeConfidenceCheck}},
	})
	confidence := NewStep(StepOptions{
		Name: NodeConfidenceCheck,
		Next: []*Edge{
			{Step: NodeHumanReview, Condition: "within_band"},
			{Step: NodeFinalize},
		},
	})
	review := NewStep(StepOptions{
		Name: NodeHumanReview,
		Next: []*Edge{
			{Step: NodeFusion, Condition: "note_provided"},
			{Step: NodeFinalize},
		},
	})
	finalize := NewStep(StepOptions{
		Name: NodeFinalize,
		End:  true,
	})
	return NewGraph([]*Step{
		severity, predict, fusion, confidence, review, finalize,
	}, severity)
}
