package category

// Security-flavoured entries deliberately land in code-quality or
// data-efficiency: the catalog's security-vulnerability id is only reachable
// through the metadata override.

var semgrepCategories = map[string]string{
	"security":        CodeQuality,
	"performance":     PerformanceCritical,
	"best-practice":   CodeQuality,
	"correctness":     CodeQuality,
	"maintainability": CodeQuality,
	"portability":     CodeQuality,
	"accessibility":   Accessibility,
	"sustainability":  SustainabilityPattern,
	"green-it":        SustainabilityPattern,
	"energy":          SustainabilityPattern,
}

var megalinterCategories = map[string]string{
	"copypaste":  ResourceOptimization,
	"html":       Accessibility,
	"css":        ResourceOptimization,
	"markdown":   CodeQuality,
	"spell":      CodeQuality,
	"repository": CodeQuality,
	"sql":        DataEfficiency,
	"json":       CodeQuality,
	"yaml":       CodeQuality,
}

var eslintRules = map[string]string{
	"no-eval":               PerformanceCritical,
	"no-implied-eval":       PerformanceCritical,
	"no-await-in-loop":      PerformanceCritical,
	"no-loop-func":          PerformanceCritical,
	"no-constant-condition": PerformanceCritical,
	"no-unused-vars":        ResourceOptimization,
	"no-unused-expressions": ResourceOptimization,
	"no-unreachable":        ResourceOptimization,
	"no-useless-concat":     ResourceOptimization,
	"no-useless-return":     ResourceOptimization,
	"no-dupe-keys":          CodeQuality,
	"no-script-url":         CodeQuality,
	"no-new-func":           PerformanceCritical,
}

// defaultPatterns is scanned in order; the first substring hit wins.
var defaultPatterns = []Pattern{
	{"infinite-loop", PerformanceCritical},
	{"memory-leak", PerformanceCritical},
	{"blocking", PerformanceCritical},
	{"await-in-loop", PerformanceCritical},
	{"in-loop", PerformanceCritical},
	{"in-the-loop", PerformanceCritical},
	{"bottleneck", PerformanceCritical},
	{"regex-pattern-not-static", PerformanceCritical},
	{"unused-var", ResourceOptimization},
	{"unused-import", ResourceOptimization},
	{"dead-code", ResourceOptimization},
	{"unreachable", ResourceOptimization},
	{"duplicate", ResourceOptimization},
	{"free-resources", ResourceOptimization},
	{"leakage", ResourceOptimization},
	{"cache-size", ResourceOptimization},
	{"caching", NetworkEfficiency},
	{"uncompressed", NetworkEfficiency},
	{"http-request", NetworkEfficiency},
	{"sql-injection", DataEfficiency},
	{"sql", DataEfficiency},
	{"csv", DataEfficiency},
	{"xss", CodeQuality},
	{"auth-bypass", CodeQuality},
	{"broken-auth", CodeQuality},
	{"a11y", Accessibility},
	{"aria-", Accessibility},
	{"alt-text", Accessibility},
	{"idleness", SustainabilityPattern},
	{"sobriety", SustainabilityPattern},
	{"wake-lock", SustainabilityPattern},
	{"energy", SustainabilityPattern},
}

// messageKeywords is consulted only when no pattern matched.
var messageKeywords = []KeywordGroup{
	{PerformanceCritical, []string{"infinite loop", "memory leak", "blocking", "cpu intensive", "bottleneck"}},
	{ResourceOptimization, []string{"unused", "dead code", "redundant", "inefficient", "waste"}},
	{NetworkEfficiency, []string{"network", "bandwidth", "http request", "api call", "compression"}},
	{DataEfficiency, []string{"database", "query", "data transfer", "payload", "serialization"}},
	{Accessibility, []string{"accessibility", "screen reader", "alt text", "contrast", "keyboard navigation"}},
	{SustainabilityPattern, []string{"energy", "carbon", "battery", "power consumption", "sustainab"}},
}
