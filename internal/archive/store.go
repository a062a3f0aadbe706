// Package archive implements the file-backed knowledge archive: bounded
// markdown documents organized as archives/<project>/<section>/, plus the
// single shared custom-rules document.
package archive

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"reko/internal/config"
	"reko/internal/logging"
	"reko/internal/rekoerr"
	"reko/internal/sanitize"
)

const (
	rulesDirName = "custom_rules"
	docSeqWidth  = 4
)

var docSeqPattern = regexp.MustCompile(`_(\d+)\.md$`)

// DocumentRef identifies one archive document on disk.
type DocumentRef struct {
	Project string
	Section string
	Path    string // absolute
	Seq     int
}

// Target is the document an upcoming append will land in.
type Target struct {
	DocumentRef
	IsNew bool
}

// Store owns the on-disk archive layout. All multi-step read-modify-write
// sequences run under a per-section lock so rotation decisions and appends
// cannot interleave within this process.
type Store struct {
	cfg    *config.Config
	root   string // absolute archives root
	locks  *lockTable
	logger *logging.Logger
}

// NewStore creates a Store rooted at cfg.DataDir and ensures the root exists.
func NewStore(cfg *config.Config) (*Store, error) {
	root, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, rekoerr.NewStorage("create", cfg.DataDir, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, rekoerr.NewStorage("create", root, err)
	}
	return &Store{
		cfg:    cfg,
		root:   root,
		locks:  newLockTable(),
		logger: logging.NewComponentLogger("ArchiveStore"),
	}, nil
}

// Root returns the absolute archives root directory.
func (s *Store) Root() string {
	return s.root
}

// ResolveTarget determines which document the next append for (project,
// section) will write to, creating the section directory on demand. The
// answer is derived from on-disk state alone: documents carry zero-padded
// sequence suffixes so lexicographic name order is creation order, and no
// modification times or cached state are consulted.
func (s *Store) ResolveTarget(project, section string) (Target, error) {
	if err := s.checkTaxonomy(project, section); err != nil {
		return Target{}, err
	}

	sectionDir := filepath.Join(s.root, project, section)
	if err := os.MkdirAll(sectionDir, 0o755); err != nil {
		return Target{}, rekoerr.NewStorage("create", sectionDir, err)
	}

	docs, err := listDocuments(project, section, sectionDir)
	if err != nil {
		return Target{}, err
	}
	if len(docs) == 0 {
		return s.newTarget(project, section, sectionDir, 1), nil
	}

	newest := docs[len(docs)-1]
	lines, err := countLines(newest.Path)
	if err != nil {
		return Target{}, rekoerr.NewStorage("read", newest.Path, err)
	}
	if lines >= s.cfg.MaxFileLines {
		return s.newTarget(project, section, sectionDir, newest.Seq+1), nil
	}
	return Target{DocumentRef: newest}, nil
}

func (s *Store) newTarget(project, section, sectionDir string, seq int) Target {
	name := fmt.Sprintf("%s_%0*d.md", section, docSeqWidth, seq)
	return Target{
		DocumentRef: DocumentRef{
			Project: project,
			Section: section,
			Path:    filepath.Join(sectionDir, name),
			Seq:     seq,
		},
		IsNew: true,
	}
}

// Add sanitizes content and appends it as a titled entry, rotating to a new
// document when the current one has reached the line limit. The write is
// all-or-nothing: the full document is staged to a temp file and renamed into
// place. Returns the absolute path written.
func (s *Store) Add(project, section, content, title string) (string, error) {
	if strings.TrimSpace(project) == "" {
		return "", rekoerr.NewValidation("project", "")
	}
	if strings.TrimSpace(section) == "" {
		return "", rekoerr.NewValidation("section", "")
	}
	if strings.TrimSpace(content) == "" {
		return "", rekoerr.NewValidation("content", "")
	}

	body := sanitize.Sanitize(content)
	now := time.Now()
	if strings.TrimSpace(title) == "" {
		title = defaultTitle(project, section, now)
	}

	unlock := s.locks.lock(filepath.Join(s.root, project, section))
	defer unlock()

	target, err := s.ResolveTarget(project, section)
	if err != nil {
		return "", err
	}

	stamp := now.Format("2006-01-02 15:04")
	var full string
	if target.IsNew {
		full = fmt.Sprintf("# %s\n\n_%s_\n\n%s\n", title, stamp, body)
	} else {
		existing, err := os.ReadFile(target.Path)
		if err != nil {
			return "", rekoerr.NewStorage("read", target.Path, err)
		}
		entry := fmt.Sprintf("\n\n---\n\n## %s\n\n_%s_\n\n%s\n", title, stamp, body)
		full = strings.TrimRight(string(existing), "\n") + entry
	}

	if err := writeFileAtomic(target.Path, []byte(full)); err != nil {
		return "", err
	}
	s.logger.Debug("added entry to %s (new=%v)", target.Path, target.IsNew)
	return target.Path, nil
}

// Enumerate lists all archive documents, optionally filtered to one project.
// A project with no on-disk directory yields an empty slice, not an error.
// The custom_rules directory is not part of the project namespace.
func (s *Store) Enumerate(project string) ([]DocumentRef, error) {
	var projects []string
	if project != "" {
		projects = []string{project}
	} else {
		onDisk, err := s.diskProjects()
		if err != nil {
			return nil, err
		}
		projects = onDisk
	}

	var docs []DocumentRef
	for _, proj := range projects {
		projectDir := filepath.Join(s.root, proj)
		entries, err := os.ReadDir(projectDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, rekoerr.NewStorage("list", projectDir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			section := entry.Name()
			sectionDocs, err := listDocuments(proj, section, filepath.Join(projectDir, section))
			if err != nil {
				return nil, err
			}
			docs = append(docs, sectionDocs...)
		}
	}
	return docs, nil
}

// ListProjects returns the union of configured and on-disk project names.
func (s *Store) ListProjects() ([]string, error) {
	onDisk, err := s.diskProjects()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, name := range append(append([]string{}, s.cfg.Projects...), onDisk...) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ListSections returns the on-disk sections of one project. An unknown
// project is an explicit not-found, matching the targeted-lookup contract.
func (s *Store) ListSections(project string) ([]string, error) {
	projectDir := filepath.Join(s.root, project)
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rekoerr.NewNotFound("project", project)
		}
		return nil, rekoerr.NewStorage("list", projectDir, err)
	}
	var sections []string
	for _, entry := range entries {
		if entry.IsDir() {
			sections = append(sections, entry.Name())
		}
	}
	sort.Strings(sections)
	return sections, nil
}

func (s *Store) diskProjects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rekoerr.NewStorage("list", s.root, err)
	}
	var projects []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == rulesDirName {
			continue
		}
		projects = append(projects, entry.Name())
	}
	sort.Strings(projects)
	return projects, nil
}

func (s *Store) checkTaxonomy(project, section string) error {
	if !s.cfg.HasProject(project) {
		if s.cfg.StrictTaxonomy {
			return rekoerr.NewValidation("project",
				fmt.Sprintf("project %q is not in the configured list: %v", project, s.cfg.Projects))
		}
		s.logger.Warn("project %q is not in the configured list %v, creating it", project, s.cfg.Projects)
	}
	if !s.cfg.HasSection(section) {
		if s.cfg.StrictTaxonomy {
			return rekoerr.NewValidation("section",
				fmt.Sprintf("section %q is not in the configured list: %v", section, s.cfg.Sections))
		}
		s.logger.Warn("section %q is not in the configured list %v, creating it", section, s.cfg.Sections)
	}
	return nil
}

func listDocuments(project, section, sectionDir string) ([]DocumentRef, error) {
	entries, err := os.ReadDir(sectionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rekoerr.NewStorage("list", sectionDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	docs := make([]DocumentRef, 0, len(names))
	for _, name := range names {
		docs = append(docs, DocumentRef{
			Project: project,
			Section: section,
			Path:    filepath.Join(sectionDir, name),
			Seq:     parseSeq(name),
		})
	}
	return docs, nil
}

// parseSeq extracts the sequence suffix from a document name. Documents from
// older layouts without a numeric suffix sort as sequence zero, so the next
// rotation starts a properly numbered successor.
func parseSeq(name string) int {
	m := docSeqPattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	seq := 0
	for _, r := range m[1] {
		seq = seq*10 + int(r-'0')
	}
	return seq
}

func defaultTitle(project, section string, now time.Time) string {
	project = strings.TrimSpace(project)
	section = strings.TrimSpace(section)
	if project != "" && section != "" {
		return capitalize(project) + " " + capitalize(section)
	}
	return "Entry " + now.Format("20060102_150405")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

// writeFileAtomic stages content in a temp file beside the destination and
// renames it into place so a failed write never leaves a half-written entry.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".reko-*.tmp")
	if err != nil {
		return rekoerr.NewStorage("create", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return rekoerr.NewStorage("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return rekoerr.NewStorage("write", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return rekoerr.NewStorage("rename", path, err)
	}
	return nil
}
