// Package category holds the fixed catalog of sustainability-oriented
// finding categories and the heuristics that assign findings to them.
package category

// Category ids. The catalog is fixed; findings always carry one of these.
const (
	PerformanceCritical   = "performance-critical"
	ResourceOptimization  = "resource-optimization"
	NetworkEfficiency     = "network-efficiency"
	DataEfficiency        = "data-efficiency"
	SecurityVulnerability = "security-vulnerability"
	CodeQuality           = "code-quality"
	Accessibility         = "accessibility"
	SustainabilityPattern = "sustainability-patterns"
)

// Impact levels.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
	ImpactNone   = "none"
)

// Priorities.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

type Category struct {
	ID                  string   `json:"id" yaml:"id"`
	Name                string   `json:"name" yaml:"name"`
	Description         string   `json:"description" yaml:"description"`
	EnvironmentalImpact string   `json:"environmentalImpact" yaml:"environmentalImpact"`
	PerformanceImpact   string   `json:"performanceImpact" yaml:"performanceImpact"`
	Priority            string   `json:"priority" yaml:"priority"`
	Tags                []string `json:"tags" yaml:"tags"`
	Examples            []string `json:"examples" yaml:"examples"`
}

var catalog = []Category{
	{
		ID:                  PerformanceCritical,
		Name:                "Performance Critical",
		Description:         "Issues that waste CPU time or block execution and directly increase energy use.",
		EnvironmentalImpact: ImpactHigh,
		PerformanceImpact:   ImpactHigh,
		Priority:            PriorityCritical,
		Tags:                []string{"cpu", "loops", "blocking"},
		Examples:            []string{"Infinite or unbounded loops", "Memory leaks", "Synchronous I/O on hot paths"},
	},
	{
		ID:                  ResourceOptimization,
		Name:                "Resource Optimization",
		Description:         "Unused or redundant code and resources that inflate bundles and memory.",
		EnvironmentalImpact: ImpactMedium,
		PerformanceImpact:   ImpactMedium,
		Priority:            PriorityHigh,
		Tags:                []string{"memory", "bundle-size", "dead-code"},
		Examples:            []string{"Unused variables and imports", "Dead code", "Unreleased resources"},
	},
	{
		ID:                  NetworkEfficiency,
		Name:                "Network Efficiency",
		Description:         "Patterns that cause avoidable network transfers or round trips.",
		EnvironmentalImpact: ImpactHigh,
		PerformanceImpact:   ImpactMedium,
		Priority:            PriorityHigh,
		Tags:                []string{"network", "http", "caching"},
		Examples:            []string{"Requests inside loops", "Missing caching", "Uncompressed payloads"},
	},
	{
		ID:                  DataEfficiency,
		Name:                "Data Efficiency",
		Description:         "Inefficient data access, storage formats, or queries.",
		EnvironmentalImpact: ImpactMedium,
		PerformanceImpact:   ImpactMedium,
		Priority:            PriorityMedium,
		Tags:                []string{"database", "queries", "serialization"},
		Examples:            []string{"SQL queries in loops", "Unbounded result sets", "Verbose file formats"},
	},
	{
		ID:                  SecurityVulnerability,
		Name:                "Security Vulnerability",
		Description:         "Security issues explicitly flagged for triage.",
		EnvironmentalImpact: ImpactLow,
		PerformanceImpact:   ImpactLow,
		Priority:            PriorityCritical,
		Tags:                []string{"security"},
		Examples:            []string{"Findings tagged by a tool as security-vulnerability"},
	},
	{
		ID:                  CodeQuality,
		Name:                "Code Quality",
		Description:         "General maintainability and correctness issues.",
		EnvironmentalImpact: ImpactLow,
		PerformanceImpact:   ImpactLow,
		Priority:            PriorityMedium,
		Tags:                []string{"maintainability", "style", "correctness"},
		Examples:            []string{"Console statements", "Complex conditionals", "Style violations"},
	},
	{
		ID:                  Accessibility,
		Name:                "Accessibility",
		Description:         "Barriers for users of assistive technologies.",
		EnvironmentalImpact: ImpactNone,
		PerformanceImpact:   ImpactNone,
		Priority:            PriorityMedium,
		Tags:                []string{"a11y", "aria", "ux"},
		Examples:            []string{"Images without alt text", "Insufficient contrast", "Missing ARIA labels"},
	},
	{
		ID:                  SustainabilityPattern,
		Name:                "Sustainability Patterns",
		Description:         "Energy-aware design patterns such as idleness and sobriety on devices.",
		EnvironmentalImpact: ImpactHigh,
		PerformanceImpact:   ImpactLow,
		Priority:            PriorityHigh,
		Tags:                []string{"energy", "battery", "carbon"},
		Examples:            []string{"Wake locks held too long", "High frame rates", "Continuous sensor polling"},
	},
}

var byID = func() map[string]Category {
	m := make(map[string]Category, len(catalog))
	for _, c := range catalog {
		m[c.ID] = c
	}
	return m
}()

// Catalog returns a copy of all categories in display order.
func Catalog() []Category {
	out := make([]Category, len(catalog))
	copy(out, catalog)
	return out
}

func Lookup(id string) (Category, bool) {
	c, ok := byID[id]
	return c, ok
}

func IsValid(id string) bool {
	_, ok := byID[id]
	return ok
}
