package archive

import (
	"os"
	"path/filepath"
	"strings"

	"reko/internal/config"
	"reko/internal/logging"
	"reko/internal/rekoerr"
	"reko/internal/sanitize"
)

const (
	rulesTitle      = "# Reko Custom Rules"
	rulesBoilerItem = "Add your custom rules here."

	// GeneralRuleName labels the leading fragment of the rules document that
	// sits above the first "## " header.
	GeneralRuleName = "general"
)

// Rule is one named section of the shared rules document.
type Rule struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	File    string `json:"file"`
}

// RuleStore manages the single shared custom-rules document. Unlike archive
// documents, rule sections are updated in place: the whole file is rewritten
// on every upsert.
type RuleStore struct {
	path   string
	locks  *lockTable
	logger *logging.Logger
}

// NewRuleStore creates a RuleStore under root/custom_rules/<RulesFile>.
func NewRuleStore(cfg *config.Config, root string) *RuleStore {
	return &RuleStore{
		path:   filepath.Join(root, rulesDirName, cfg.RulesFile),
		locks:  newLockTable(),
		logger: logging.NewComponentLogger("RuleStore"),
	}
}

// Path returns the absolute path of the rules document.
func (r *RuleStore) Path() string {
	return r.path
}

// UpsertRule sanitizes content and replaces the matching "## <name>" section
// in place, or appends a new one. Exactly one blank line separates sections.
// The rewrite is staged to a temp file and renamed, under the document lock.
func (r *RuleStore) UpsertRule(name, content string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", rekoerr.NewValidation("name", "")
	}
	// Names become "## <name>" header lines; a newline inside one would
	// inject phantom sections into the document.
	if strings.ContainsAny(name, "\r\n") {
		return "", rekoerr.NewValidation("name", "rule name must be a single line")
	}
	if strings.TrimSpace(content) == "" {
		return "", rekoerr.NewValidation("content", "")
	}
	body := strings.TrimSpace(sanitize.Sanitize(content))

	unlock := r.locks.lock(r.path)
	defer unlock()

	doc, err := r.load()
	if err != nil {
		return "", err
	}

	replaced := false
	for i := range doc.sections {
		if doc.sections[i].name == name {
			doc.sections[i].body = body
			replaced = true
			break
		}
	}
	if !replaced {
		doc.sections = append(doc.sections, ruleSection{name: name, body: body})
	}

	if err := writeFileAtomic(r.path, []byte(doc.render())); err != nil {
		return "", err
	}
	if replaced {
		r.logger.Info("updated rule %q in %s", name, r.path)
	} else {
		r.logger.Info("added rule %q to %s", name, r.path)
	}
	return r.path, nil
}

// ListRules parses the shared document into named rules. A leading fragment
// above the first "## " header is reported under the "general" sentinel name
// rather than discarded.
func (r *RuleStore) ListRules() ([]Rule, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rekoerr.NewStorage("read", r.path, err)
	}

	doc := parseRulesDoc(string(data))
	var rules []Rule
	if general := doc.generalContent(); general != "" {
		rules = append(rules, Rule{Name: GeneralRuleName, Content: general, File: r.path})
	}
	for _, sec := range doc.sections {
		rules = append(rules, Rule{Name: sec.name, Content: sec.body, File: r.path})
	}
	return rules, nil
}

// load reads the rules document, creating an empty skeleton when absent.
func (r *RuleStore) load() (*rulesDoc, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, rekoerr.NewStorage("read", r.path, err)
		}
		if mkErr := os.MkdirAll(filepath.Dir(r.path), 0o755); mkErr != nil {
			return nil, rekoerr.NewStorage("create", filepath.Dir(r.path), mkErr)
		}
		return &rulesDoc{preamble: rulesTitle + "\n\n" + rulesBoilerItem}, nil
	}
	return parseRulesDoc(string(data)), nil
}

type ruleSection struct {
	name string
	body string
}

type rulesDoc struct {
	preamble string // everything above the first "## " header
	sections []ruleSection
}

func parseRulesDoc(text string) *rulesDoc {
	doc := &rulesDoc{}
	lines := strings.Split(text, "\n")

	var current *ruleSection
	var buf []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		if current == nil {
			doc.preamble = content
		} else {
			current.body = content
			doc.sections = append(doc.sections, *current)
		}
		buf = buf[:0]
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			flush()
			current = &ruleSection{name: strings.TrimSpace(strings.TrimPrefix(line, "## "))}
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return doc
}

// generalContent returns the preamble minus the document title line.
func (d *rulesDoc) generalContent() string {
	lines := strings.Split(d.preamble, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "# ") {
		lines = lines[1:]
	}
	content := strings.TrimSpace(strings.Join(lines, "\n"))
	if content == rulesBoilerItem {
		return ""
	}
	return content
}

func (d *rulesDoc) render() string {
	var b strings.Builder
	preamble := strings.TrimSpace(d.preamble)
	if preamble == "" {
		preamble = rulesTitle
	}
	b.WriteString(preamble)
	for _, sec := range d.sections {
		b.WriteString("\n\n## ")
		b.WriteString(sec.name)
		b.WriteString("\n\n")
		b.WriteString(sec.body)
	}
	b.WriteString("\n")
	return b.String()
}
