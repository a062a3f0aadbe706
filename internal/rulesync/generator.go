// Package rulesync builds a combined cursorrules file from an upstream base
// template and the locally stored custom rules.
package rulesync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reko/internal/archive"
	"reko/internal/config"
	"reko/internal/logging"
	"reko/internal/rekoerr"
)

const (
	defaultRawHost = "https://raw.githubusercontent.com"
	maxBaseSize    = 1 << 20

	customRulesHeader = "# Custom Rules"

	// archivesReference is always the first custom rule, so an agent reading
	// the generated file knows the archives server exists before anything else.
	archivesReference = `## archives-integration

When asked to search, record, or update project knowledge, use the reko
archives server instead of ad-hoc notes:

1. Search first: GET /quick-search?query=...&format=text and include relevant
   results in your answer.
2. Record fixes and decisions: POST /add with project, section and content.
3. Update shared conventions: POST /rules with name and content.`

	// fallbackBase keeps generation working when the upstream template cannot
	// be fetched. Deliberately minimal; the real base comes from GitHub.
	fallbackBase = `# Cursor Rules

You are a careful engineering assistant. Prefer small verifiable steps,
state assumptions explicitly, and consult the project archives before
re-deriving known answers.`
)

// Generator fetches the base cursorrules template and merges custom rules
// into it. Fetch failures degrade to a built-in template; they never fail
// generation and never touch the stored archives.
type Generator struct {
	cfg     *config.Config
	rules   *archive.RuleStore
	client  *http.Client
	rawHost string
	logger  *logging.Logger
}

// NewGenerator creates a Generator using the fetch settings from cfg.
func NewGenerator(cfg *config.Config, rules *archive.RuleStore) *Generator {
	return &Generator{
		cfg:     cfg,
		rules:   rules,
		client:  &http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second},
		rawHost: defaultRawHost,
		logger:  logging.NewComponentLogger("RuleSync"),
	}
}

// Generate writes the combined cursorrules file and returns its path.
// outputPath defaults to ".cursorrules" in the working directory.
func (g *Generator) Generate(ctx context.Context, outputPath string) (string, error) {
	if outputPath == "" {
		outputPath = ".cursorrules"
	}

	base, err := g.fetchBase(ctx)
	if err != nil {
		g.logger.Warn("base template fetch failed, using built-in fallback: %v", err)
		base = fallbackBase
	}

	rules, err := g.rules.ListRules()
	if err != nil {
		return "", err
	}

	combined := Merge(base, rules)
	if err := writeFileAtomic(outputPath, []byte(combined)); err != nil {
		return "", rekoerr.NewStorage("write", outputPath, err)
	}
	g.logger.Info("generated %s with %d custom rules", outputPath, len(rules))
	return outputPath, nil
}

// fetchBase retrieves the configured template from GitHub raw content.
func (g *Generator) fetchBase(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/%s", g.rawHost, g.cfg.Fetch.Repo, g.cfg.Fetch.Branch, g.cfg.Fetch.File)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", rekoerr.NewUpstream(url, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", rekoerr.NewUpstream(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", rekoerr.NewUpstream(url, fmt.Errorf("unexpected status %s", resp.Status))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBaseSize))
	if err != nil {
		return "", rekoerr.NewUpstream(url, err)
	}
	return string(data), nil
}

// Merge appends a "# Custom Rules" section to base, replacing any existing
// one. The archives-integration rule always leads the section.
func Merge(base string, rules []archive.Rule) string {
	base = strings.TrimSpace(base)
	if idx := findCustomHeader(base); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(customRulesHeader)
	b.WriteString("\n\n")
	b.WriteString(archivesReference)
	for _, rule := range rules {
		b.WriteString("\n\n## ")
		b.WriteString(rule.Name)
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(rule.Content))
	}
	b.WriteString("\n")
	return b.String()
}

// findCustomHeader locates a "# Custom Rules" line in text, or -1.
func findCustomHeader(text string) int {
	if strings.HasPrefix(text, customRulesHeader) {
		return 0
	}
	idx := strings.Index(text, "\n"+customRulesHeader)
	if idx < 0 {
		return -1
	}
	return idx + 1
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".reko-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
