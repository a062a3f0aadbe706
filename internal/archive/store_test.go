package archive

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reko/internal/config"
	"reko/internal/rekoerr"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "archives")
	return cfg
}

func TestAddCreatesFirstDocument(t *testing.T) {
	cfg := testConfig(t)
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	path, err := store.Add("frontend", "setup", "Install deps with npm install", "Setup")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("frontend", "setup", "setup_0001.md")) {
		t.Fatalf("unexpected document path: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# Setup\n") {
		t.Fatalf("missing document header: %q", content)
	}
	if !strings.Contains(content, "npm install") {
		t.Fatalf("missing entry body: %q", content)
	}
}

func TestAddAppendsWithDivider(t *testing.T) {
	cfg := testConfig(t)
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	first, err := store.Add("backend", "errors", "First note", "One")
	if err != nil {
		t.Fatalf("first Add: %v", err)
	}
	second, err := store.Add("backend", "errors", "Second note", "Two")
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if first != second {
		t.Fatalf("expected same document, got %s and %s", first, second)
	}

	data, _ := os.ReadFile(second)
	content := string(data)
	if !strings.Contains(content, "\n---\n") {
		t.Fatalf("missing entry divider: %q", content)
	}
	if !strings.Contains(content, "## Two") {
		t.Fatalf("missing appended entry header: %q", content)
	}
	if strings.Index(content, "First note") > strings.Index(content, "Second note") {
		t.Fatalf("entries out of order: %q", content)
	}
}

func TestAddDefaultTitle(t *testing.T) {
	cfg := testConfig(t)
	store, _ := NewStore(cfg)

	path, err := store.Add("frontend", "fixes", "content body", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "# Frontend Fixes") {
		t.Fatalf("expected capitalized default title, got: %q", string(data))
	}
}

func TestAddValidatesRequiredFields(t *testing.T) {
	cfg := testConfig(t)
	store, _ := NewStore(cfg)

	cases := []struct {
		project, section, content string
	}{
		{"", "setup", "x"},
		{"frontend", "", "x"},
		{"frontend", "setup", ""},
	}
	for _, tc := range cases {
		_, err := store.Add(tc.project, tc.section, tc.content, "")
		if !rekoerr.IsValidation(err) {
			t.Fatalf("expected validation error for %+v, got %v", tc, err)
		}
	}
}

func TestRotationAtLineLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFileLines = 12
	store, _ := NewStore(cfg)

	long := strings.Repeat("line of content\n", 10)
	first, err := store.Add("shared", "setup", long, "Big")
	if err != nil {
		t.Fatalf("first Add: %v", err)
	}

	// The first document is now over the limit, so the next Add rotates.
	second, err := store.Add("shared", "setup", "small entry", "Small")
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if first == second {
		t.Fatalf("expected rotation to a new document, both writes hit %s", first)
	}
	if !strings.HasSuffix(second, "setup_0002.md") {
		t.Fatalf("expected sequence 2, got %s", second)
	}

	// The rotated document is fresh and stays current for small appends.
	third, err := store.Add("shared", "setup", "another small entry", "")
	if err != nil {
		t.Fatalf("third Add: %v", err)
	}
	if third != second {
		t.Fatalf("expected append to current document %s, got %s", second, third)
	}
}

func TestRotationIsSoftLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFileLines = 100
	store, _ := NewStore(cfg)

	// A single oversized entry still lands in the document that was under
	// the limit before the write.
	long := strings.Repeat("x\n", 300)
	if _, err := store.Add("shared", "setup", "starter", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	path, err := store.Add("shared", "setup", long, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !strings.HasSuffix(path, "setup_0001.md") {
		t.Fatalf("oversized entry should not pre-rotate, got %s", path)
	}
}

func TestResolveTargetDeterministic(t *testing.T) {
	cfg := testConfig(t)
	store, _ := NewStore(cfg)

	if _, err := store.Add("frontend", "setup", "note", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	a, err := store.ResolveTarget("frontend", "setup")
	if err != nil {
		t.Fatalf("ResolveTarget: %v", err)
	}
	b, err := store.ResolveTarget("frontend", "setup")
	if err != nil {
		t.Fatalf("ResolveTarget: %v", err)
	}
	if a != b {
		t.Fatalf("resolution not deterministic: %+v vs %+v", a, b)
	}
	if a.IsNew {
		t.Fatalf("existing under-limit document reported as new")
	}
}

func TestStrictTaxonomyRejectsUnlisted(t *testing.T) {
	cfg := testConfig(t)
	cfg.StrictTaxonomy = true
	store, _ := NewStore(cfg)

	_, err := store.Add("mobile", "setup", "content", "")
	if !rekoerr.IsValidation(err) {
		t.Fatalf("expected validation error for unlisted project, got %v", err)
	}
	_, err = store.Add("frontend", "weird-section", "content", "")
	if !rekoerr.IsValidation(err) {
		t.Fatalf("expected validation error for unlisted section, got %v", err)
	}
}

func TestLenientTaxonomyCreatesUnlisted(t *testing.T) {
	cfg := testConfig(t)
	store, _ := NewStore(cfg)

	path, err := store.Add("mobile", "setup", "content", "")
	if err != nil {
		t.Fatalf("Add for unlisted project: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("document not created: %v", err)
	}
}

func TestEnumerateFiltersByProject(t *testing.T) {
	cfg := testConfig(t)
	store, _ := NewStore(cfg)

	mustAdd(t, store, "frontend", "setup", "f note")
	mustAdd(t, store, "backend", "setup", "b note")
	mustAdd(t, store, "backend", "errors", "e note")

	all, err := store.Enumerate("")
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(all))
	}

	backend, err := store.Enumerate("backend")
	if err != nil {
		t.Fatalf("Enumerate(backend): %v", err)
	}
	if len(backend) != 2 {
		t.Fatalf("expected 2 backend documents, got %d", len(backend))
	}
	for _, doc := range backend {
		if doc.Project != "backend" {
			t.Fatalf("wrong project in filtered result: %+v", doc)
		}
	}
}

func TestEnumerateMissingProjectIsEmpty(t *testing.T) {
	cfg := testConfig(t)
	store, _ := NewStore(cfg)

	docs, err := store.Enumerate("ghost")
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
}

func TestEnumerateSkipsRulesDir(t *testing.T) {
	cfg := testConfig(t)
	store, _ := NewStore(cfg)
	rules := NewRuleStore(cfg, store.Root())

	if _, err := rules.UpsertRule("style", "Use tabs."); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	mustAdd(t, store, "frontend", "setup", "note")

	docs, err := store.Enumerate("")
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	for _, doc := range docs {
		if strings.Contains(doc.Path, rulesDirName) {
			t.Fatalf("rules document leaked into archive enumeration: %s", doc.Path)
		}
	}
}

func TestListProjectsAndSections(t *testing.T) {
	cfg := testConfig(t)
	store, _ := NewStore(cfg)

	mustAdd(t, store, "mobile", "setup", "note")

	projects, err := store.ListProjects()
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	found := map[string]bool{}
	for _, p := range projects {
		found[p] = true
	}
	// Union of configured and on-disk names.
	for _, want := range []string{"frontend", "backend", "shared", "mobile"} {
		if !found[want] {
			t.Fatalf("project %q missing from %v", want, projects)
		}
	}

	sections, err := store.ListSections("mobile")
	if err != nil {
		t.Fatalf("ListSections: %v", err)
	}
	if len(sections) != 1 || sections[0] != "setup" {
		t.Fatalf("unexpected sections: %v", sections)
	}

	_, err = store.ListSections("ghost")
	var nf *rekoerr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not-found for unknown project, got %v", err)
	}
}

func TestAddSanitizesContent(t *testing.T) {
	cfg := testConfig(t)
	store, _ := NewStore(cfg)

	path, err := store.Add("frontend", "errors", "fix applied\x1b[31m here", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "\x1b") {
		t.Fatalf("unsanitized content persisted: %q", string(data))
	}
}

func mustAdd(t *testing.T, store *Store, project, section, content string) {
	t.Helper()
	if _, err := store.Add(project, section, content, ""); err != nil {
		t.Fatalf("Add(%s/%s): %v", project, section, err)
	}
}
