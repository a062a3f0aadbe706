package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reko/internal/config"
	"reko/internal/rekoerr"
)

func testRuleStore(t *testing.T) *RuleStore {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "archives")
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewRuleStore(cfg, store.Root())
}

func TestUpsertRuleCreatesDocument(t *testing.T) {
	rules := testRuleStore(t)

	path, err := rules.UpsertRule("commit-style", "Use imperative mood.")
	if err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules doc: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# Reko Custom Rules") {
		t.Fatalf("missing document title: %q", content)
	}
	if !strings.Contains(content, "## commit-style\n\nUse imperative mood.") {
		t.Fatalf("missing rule section: %q", content)
	}
}

func TestUpsertRuleReplacesInPlace(t *testing.T) {
	rules := testRuleStore(t)

	if _, err := rules.UpsertRule("x", "v1"); err != nil {
		t.Fatalf("first UpsertRule: %v", err)
	}
	if _, err := rules.UpsertRule("other", "keep me"); err != nil {
		t.Fatalf("second UpsertRule: %v", err)
	}
	path, err := rules.UpsertRule("x", "v2")
	if err != nil {
		t.Fatalf("third UpsertRule: %v", err)
	}

	data, _ := os.ReadFile(path)
	content := string(data)
	if strings.Count(content, "## x") != 1 {
		t.Fatalf("expected exactly one ## x section: %q", content)
	}
	if strings.Contains(content, "v1") {
		t.Fatalf("old body survived: %q", content)
	}
	if !strings.Contains(content, "v2") {
		t.Fatalf("new body missing: %q", content)
	}
	if !strings.Contains(content, "keep me") {
		t.Fatalf("unrelated rule lost: %q", content)
	}
}

func TestUpsertRuleSectionSpacing(t *testing.T) {
	rules := testRuleStore(t)

	_, _ = rules.UpsertRule("a", "alpha")
	path, _ := rules.UpsertRule("b", "beta")

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "alpha\n\n## b") {
		t.Fatalf("expected exactly one blank line between sections: %q", string(data))
	}
}

func TestUpsertRuleValidation(t *testing.T) {
	rules := testRuleStore(t)

	if _, err := rules.UpsertRule("", "content"); !rekoerr.IsValidation(err) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
	if _, err := rules.UpsertRule("name", "  "); !rekoerr.IsValidation(err) {
		t.Fatalf("expected validation error for empty content, got %v", err)
	}
}

func TestUpsertRuleRejectsMultilineName(t *testing.T) {
	rules := testRuleStore(t)

	if _, err := rules.UpsertRule("x\n## y", "content"); !rekoerr.IsValidation(err) {
		t.Fatalf("expected validation error for multiline name, got %v", err)
	}

	// The document shape is unchanged by the rejected write.
	got, err := rules.ListRules()
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("phantom sections written: %+v", got)
	}
}

func TestListRules(t *testing.T) {
	rules := testRuleStore(t)

	_, _ = rules.UpsertRule("style", "Tabs, not spaces.")
	_, _ = rules.UpsertRule("review", "Two approvals.")

	got, err := rules.ListRules()
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d: %+v", len(got), got)
	}
	byName := map[string]Rule{}
	for _, rule := range got {
		byName[rule.Name] = rule
	}
	if byName["style"].Content != "Tabs, not spaces." {
		t.Fatalf("unexpected style rule: %+v", byName["style"])
	}
	if byName["review"].File == "" {
		t.Fatalf("rule missing file path: %+v", byName["review"])
	}
}

func TestListRulesEmptyWhenAbsent(t *testing.T) {
	rules := testRuleStore(t)

	got, err := rules.ListRules()
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rules, got %+v", got)
	}
}

func TestListRulesReportsLeadingFragmentAsGeneral(t *testing.T) {
	rules := testRuleStore(t)

	// Hand-written document with content above the first section header.
	if err := os.MkdirAll(filepath.Dir(rules.Path()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := "Always answer briefly.\n\n## tone\n\nBe direct.\n"
	if err := os.WriteFile(rules.Path(), []byte(doc), 0o644); err != nil {
		t.Fatalf("write rules doc: %v", err)
	}

	got, err := rules.ListRules()
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected general + tone, got %+v", got)
	}
	if got[0].Name != GeneralRuleName || !strings.Contains(got[0].Content, "Always answer briefly.") {
		t.Fatalf("leading fragment not reported as general: %+v", got[0])
	}
}
