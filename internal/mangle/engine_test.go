package mangle

import (
	"context"
	"strings"
	"testing"
)

const testSchema = `
Decl attr_access(File, Scope, Var, Attr, Line).
Decl frame_var(File, Scope, Var).
Decl frame_api_name(Attr).
Decl suspect_access(File, Var, Attr, Line)
  descr [mode("-", "-", "-", "-")].

suspect_access(File, Var, Attr, Line) :-
  attr_access(File, Scope, Var, Attr, Line),
  frame_var(File, Scope, Var),
  !frame_api_name(Attr).
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.LoadSchemaString(testSchema); err != nil {
		t.Fatalf("LoadSchemaString failed: %v", err)
	}
	return engine
}

func TestAddFactsAndDerive(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	err := engine.AddFacts([]Fact{
		{Predicate: "frame_var", Args: []interface{}{"a.py", "main", "df"}},
		{Predicate: "attr_access", Args: []interface{}{"a.py", "main", "df", "price", 10}},
		{Predicate: "attr_access", Args: []interface{}{"a.py", "main", "df", "head", 11}},
		{Predicate: "frame_api_name", Args: []interface{}{"head"}},
	})
	if err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	facts, err := engine.GetFacts("suspect_access")
	if err != nil {
		t.Fatalf("GetFacts failed: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 derived fact, got %d: %v", len(facts), facts)
	}
	if facts[0].Args[2] != "price" {
		t.Errorf("expected attr 'price', got %v", facts[0].Args[2])
	}
	if facts[0].Args[3] != int64(10) {
		t.Errorf("expected line 10, got %v (%T)", facts[0].Args[3], facts[0].Args[3])
	}
}

func TestAddFactUndeclaredPredicate(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	err := engine.AddFact("no_such_pred", "a.py")
	if err == nil || !strings.Contains(err.Error(), "not declared") {
		t.Errorf("expected undeclared predicate error, got %v", err)
	}
}

func TestAddFactArityMismatch(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	err := engine.AddFact("frame_var", "a.py", "main")
	if err == nil || !strings.Contains(err.Error(), "expects") {
		t.Errorf("expected arity error, got %v", err)
	}
}

func TestReplaceFactsForFile(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	err := engine.AddFacts([]Fact{
		{Predicate: "frame_var", Args: []interface{}{"a.py", "main", "df"}},
		{Predicate: "frame_var", Args: []interface{}{"b.py", "main", "other"}},
	})
	if err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	err = engine.ReplaceFactsForFile("a.py", []Fact{
		{Predicate: "frame_var", Args: []interface{}{"a.py", "main", "renamed"}},
	}, "hash-2")
	if err != nil {
		t.Fatalf("ReplaceFactsForFile failed: %v", err)
	}

	facts, err := engine.GetFacts("frame_var")
	if err != nil {
		t.Fatalf("GetFacts failed: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts after replacement, got %d: %v", len(facts), facts)
	}
	vars := map[string]bool{}
	for _, f := range facts {
		vars[f.Args[2].(string)] = true
	}
	if !vars["renamed"] || !vars["other"] || vars["df"] {
		t.Errorf("unexpected fact set after replacement: %v", vars)
	}
}

func TestQueryWithModes(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	err := engine.AddFacts([]Fact{
		{Predicate: "frame_var", Args: []interface{}{"a.py", "main", "df"}},
		{Predicate: "attr_access", Args: []interface{}{"a.py", "main", "df", "total", 3}},
	})
	if err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	result, err := engine.Query(context.Background(), "suspect_access(File, Var, Attr, Line)")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(result.Bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(result.Bindings))
	}
	if result.Bindings[0]["Attr"] != "total" {
		t.Errorf("expected Attr binding 'total', got %v", result.Bindings[0]["Attr"])
	}
}

func TestClearKeepsSchema(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	if err := engine.AddFact("frame_var", "a.py", "main", "df"); err != nil {
		t.Fatalf("AddFact failed: %v", err)
	}
	engine.Clear()

	stats := engine.GetStats()
	if stats.TotalFacts != 0 {
		t.Errorf("expected 0 facts after Clear, got %d", stats.TotalFacts)
	}

	// Schema still loaded: inserting again must work.
	if err := engine.AddFact("frame_var", "a.py", "main", "df"); err != nil {
		t.Fatalf("AddFact after Clear failed: %v", err)
	}
}

func TestFactString(t *testing.T) {
	f := Fact{Predicate: "attr_access", Args: []interface{}{"a.py", "main", "df", "price", 10}}
	want := `attr_access("a.py", "main", "df", "price", 10).`
	if got := f.String(); got != want {
		t.Errorf("Fact.String() = %q, want %q", got, want)
	}
}

func TestBulkInsertWithAutoEvalToggle(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Close()

	engine.ToggleAutoEval(false)
	err := engine.AddFacts([]Fact{
		{Predicate: "frame_var", Args: []interface{}{"a.py", "main", "df"}},
		{Predicate: "attr_access", Args: []interface{}{"a.py", "main", "df", "total", 3}},
	})
	if err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	if err := engine.RecomputeRules(); err != nil {
		t.Fatalf("RecomputeRules failed: %v", err)
	}
	facts, err := engine.GetFacts("suspect_access")
	if err != nil {
		t.Fatalf("GetFacts failed: %v", err)
	}
	if len(facts) != 1 {
		t.Errorf("expected 1 derived fact after recompute, got %d", len(facts))
	}
}
