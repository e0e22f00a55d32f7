package internal

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
)

// IgnoreRule is a single commit-ignore expression. Rules are evaluated
// against the flattened commit descriptor; bracket-escaped names address
// nested fields (`[author.email]`), and `$.` selectors are resolved as
// JSONPath against the raw descriptor.
type IgnoreRule struct {
	When string `yaml:"when"`
}

// defaultIgnoreRule drops commits that opt out of mirroring via a marker
// in the commit message. It is always active, ahead of configured rules.
const defaultIgnoreRule = `contains(message, "#skipmirror")`

var selectorPattern = regexp.MustCompile(`\$(?:\.[A-Za-z0-9_]+|\[\d+\])+`)

type compiledIgnore struct {
	source    string
	expr      *govaluate.EvaluableExpression
	selectors map[string]string
}

// IgnoreEngine decides whether a commit should be excluded from ingestion.
type IgnoreEngine struct {
	rules  []compiledIgnore
	strict bool
	logger *log.Logger
}

// NewIgnoreEngine compiles the configured rules plus the built-in marker rule.
func NewIgnoreEngine(cfg IgnoreRulesConfig) (*IgnoreEngine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	sources := make([]string, 0, len(cfg.Rules)+1)
	sources = append(sources, defaultIgnoreRule)
	for _, rule := range cfg.Rules {
		sources = append(sources, rule.When)
	}

	rules := make([]compiledIgnore, 0, len(sources))
	for _, source := range sources {
		compiled, err := compileIgnore(source)
		if err != nil {
			return nil, fmt.Errorf("compile ignore rule %q: %w", source, err)
		}
		rules = append(rules, compiled)
	}
	return &IgnoreEngine{rules: rules, strict: cfg.Strict, logger: logger}, nil
}

func compileIgnore(source string) (compiledIgnore, error) {
	selectors := make(map[string]string)
	rewritten := selectorPattern.ReplaceAllStringFunc(source, func(selector string) string {
		name := fmt.Sprintf("__sel%d", len(selectors))
		selectors[name] = selector
		// Escaped form: bare names may not start with an underscore.
		return "[" + name + "]"
	})

	expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ignoreFunctions)
	if err != nil {
		return compiledIgnore{}, err
	}
	return compiledIgnore{source: source, expr: expr, selectors: selectors}, nil
}

// ShouldIgnore reports whether any rule matches the commit descriptor.
// Rules that fail to evaluate (for example a missing field) never match.
func (e *IgnoreEngine) ShouldIgnore(commit map[string]interface{}) bool {
	if e == nil || len(e.rules) == 0 {
		return false
	}

	params := Flatten(commit)
	for _, rule := range e.rules {
		value, err := rule.expr.Evaluate(e.withSelectors(params, rule, commit))
		if err != nil {
			if e.strict {
				e.logger.Printf("ignore rule %q eval failed: %v", rule.source, err)
			}
			continue
		}
		if matched, _ := value.(bool); matched {
			return true
		}
	}
	return false
}

func (e *IgnoreEngine) withSelectors(params map[string]interface{}, rule compiledIgnore, commit map[string]interface{}) map[string]interface{} {
	if len(rule.selectors) == 0 {
		return params
	}
	merged := make(map[string]interface{}, len(params)+len(rule.selectors))
	for key, value := range params {
		merged[key] = value
	}
	for name, selector := range rule.selectors {
		value, err := jsonpath.Get(selector, interface{}(commit))
		if err != nil {
			if e.strict {
				e.logger.Printf("ignore rule %q selector %s: %v", rule.source, selector, err)
			}
			continue
		}
		merged[name] = value
	}
	return merged
}

var ignoreFunctions = map[string]govaluate.ExpressionFunction{
	"contains": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
		}
		switch haystack := args[0].(type) {
		case string:
			needle, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("contains needle must be a string")
			}
			return strings.Contains(haystack, needle), nil
		case []interface{}:
			for _, item := range haystack {
				if item == args[1] {
					return true, nil
				}
			}
			return false, nil
		default:
			return nil, fmt.Errorf("contains haystack must be a string or array")
		}
	},
	"like": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("like expects 2 arguments, got %d", len(args))
		}
		value, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("like value must be a string")
		}
		pattern, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("like pattern must be a string")
		}
		parts := strings.Split(pattern, "%")
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}
		matched, err := regexp.MatchString("^"+strings.Join(parts, ".*")+"$", value)
		if err != nil {
			return nil, err
		}
		return matched, nil
	},
}
