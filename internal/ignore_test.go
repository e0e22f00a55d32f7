package internal

import (
	"io"
	"log"
	"testing"
)

func testCommit(message, email string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "abc",
		"message": message,
		"author": map[string]interface{}{
			"email": email,
			"name":  "A",
		},
	}
}

func newTestEngine(t *testing.T, rules ...IgnoreRule) *IgnoreEngine {
	t.Helper()
	engine, err := NewIgnoreEngine(IgnoreRulesConfig{
		Rules:  rules,
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new ignore engine: %v", err)
	}
	return engine
}

// TestIgnoreDefaultMarker tests that the built-in skip marker always applies.
func TestIgnoreDefaultMarker(t *testing.T) {
	engine := newTestEngine(t)

	if !engine.ShouldIgnore(testCommit("chore: sync #skipmirror", "a@x.com")) {
		t.Fatalf("expected marker commit to be ignored")
	}
	if engine.ShouldIgnore(testCommit("fix bug", "a@x.com")) {
		t.Fatalf("expected plain commit to pass")
	}
}

// TestIgnoreLikePattern tests the like() helper against merge commits.
func TestIgnoreLikePattern(t *testing.T) {
	engine := newTestEngine(t, IgnoreRule{When: `like(message, "Merge branch%")`})

	if !engine.ShouldIgnore(testCommit("Merge branch 'dev' into main", "a@x.com")) {
		t.Fatalf("expected merge commit to be ignored")
	}
	if engine.ShouldIgnore(testCommit("fix: merge sorted lists", "a@x.com")) {
		t.Fatalf("expected non-merge commit to pass")
	}
}

// TestIgnoreEscapedField tests bracket-escaped access to nested fields.
func TestIgnoreEscapedField(t *testing.T) {
	engine := newTestEngine(t, IgnoreRule{When: `[author.email] == "bot@ci"`})

	if !engine.ShouldIgnore(testCommit("nightly build", "bot@ci")) {
		t.Fatalf("expected bot commit to be ignored")
	}
	if engine.ShouldIgnore(testCommit("nightly build", "a@x.com")) {
		t.Fatalf("expected human commit to pass")
	}
}

// TestIgnoreJSONPathSelector tests $.path selectors against the raw descriptor.
func TestIgnoreJSONPathSelector(t *testing.T) {
	engine := newTestEngine(t, IgnoreRule{When: `$.author.email == "bot@ci"`})

	if !engine.ShouldIgnore(testCommit("nightly build", "bot@ci")) {
		t.Fatalf("expected selector to match bot commit")
	}
	if engine.ShouldIgnore(testCommit("nightly build", "a@x.com")) {
		t.Fatalf("expected selector to pass human commit")
	}
}

// TestIgnoreMultipleSelectors tests a rule carrying more than one $.path
// selector alongside a flattened field.
func TestIgnoreMultipleSelectors(t *testing.T) {
	engine := newTestEngine(t, IgnoreRule{
		When: `$.author.email == "bot@ci" && $.author.name == "A" && contains(message, "nightly")`,
	})

	if !engine.ShouldIgnore(testCommit("nightly build", "bot@ci")) {
		t.Fatalf("expected all selectors to match bot commit")
	}
	if engine.ShouldIgnore(testCommit("fix bug", "bot@ci")) {
		t.Fatalf("expected message clause to pass non-nightly commit")
	}
}

// TestIgnoreMissingField tests that rules over absent fields never match.
func TestIgnoreMissingField(t *testing.T) {
	engine := newTestEngine(t, IgnoreRule{When: `missing_field == true`})

	if engine.ShouldIgnore(testCommit("fix bug", "a@x.com")) {
		t.Fatalf("expected rule over missing field not to match")
	}
}

// TestIgnoreBadRule tests that an uncompilable rule fails engine construction.
func TestIgnoreBadRule(t *testing.T) {
	_, err := NewIgnoreEngine(IgnoreRulesConfig{
		Rules:  []IgnoreRule{{When: `message ==`}},
		Logger: log.New(io.Discard, "", 0),
	})
	if err == nil {
		t.Fatalf("expected error for uncompilable rule")
	}
}
