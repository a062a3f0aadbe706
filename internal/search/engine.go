// Package search ranks archive documents against free-text queries: an
// exact-phrase pass for literal lookups, then whole-word token-overlap
// scoring for natural-language queries.
package search

import (
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"reko/internal/archive"
	"reko/internal/logging"
)

const (
	snippetBefore   = 100
	snippetAfter    = 200
	snippetFallback = 300
	readConcurrency = 8
	docCacheSize    = 128
)

// Result is one ranked search hit. Score and MatchedTokens are only set by
// the token-overlap phase; exact-phrase hits omit them.
type Result struct {
	Project       string `json:"project"`
	Section       string `json:"section"`
	File          string `json:"file"`
	Title         string `json:"title"`
	Snippet       string `json:"snippet"`
	Score         int    `json:"score,omitempty"`
	MatchedTokens int    `json:"matched_tokens,omitempty"`
}

// Engine scores stored documents against queries. Reads go through a small
// LRU keyed by path and invalidated on size/mtime change, so repeated
// searches over a stable corpus avoid rereading every file.
type Engine struct {
	store  *archive.Store
	cache  *lru.Cache[string, cachedDoc]
	logger *logging.Logger
}

type cachedDoc struct {
	size    int64
	modTime int64
	content string
}

type scoredDoc struct {
	ref     archive.DocumentRef
	content string
}

// NewEngine creates a search engine over the given store.
func NewEngine(store *archive.Store) *Engine {
	cache, _ := lru.New[string, cachedDoc](docCacheSize)
	return &Engine{
		store:  store,
		cache:  cache,
		logger: logging.NewComponentLogger("SearchEngine"),
	}
}

// Search returns ranked results for query, optionally scoped to one project.
// Phase one returns exact substring matches when any exist; otherwise phase
// two ranks documents by whole-word token occurrence counts. An empty query
// or an unknown project yields an empty result set, never an error.
func (e *Engine) Search(query, project string) ([]Result, error) {
	refs, err := e.store.Enumerate(project)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}

	docs, err := e.readAll(refs)
	if err != nil {
		return nil, err
	}

	if results := e.exactPhase(query, docs); len(results) > 0 {
		e.logger.Debug("exact match: query=%q project=%q results=%d", query, project, len(results))
		return results, nil
	}

	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	results := e.tokenPhase(tokens, docs)
	e.logger.Debug("token match: query=%q project=%q results=%d", query, project, len(results))
	return results, nil
}

// readAll loads document contents, bounded-concurrently, preserving ref order.
func (e *Engine) readAll(refs []archive.DocumentRef) ([]scoredDoc, error) {
	docs := make([]scoredDoc, len(refs))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(readConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			content, err := e.readDocument(ref.Path)
			if err != nil {
				// A document deleted mid-scan is not an error; the
				// enumeration was only ever a point-in-time snapshot.
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			mu.Lock()
			docs[i] = scoredDoc{ref: ref, content: content}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := docs[:0]
	for _, doc := range docs {
		if doc.ref.Path != "" {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (e *Engine) readDocument(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if cached, ok := e.cache.Get(path); ok {
		if cached.size == info.Size() && cached.modTime == info.ModTime().UnixNano() {
			return cached.content, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(data)
	e.cache.Add(path, cachedDoc{
		size:    info.Size(),
		modTime: info.ModTime().UnixNano(),
		content: content,
	})
	return content, nil
}

// exactPhase performs the case-insensitive substring search. Each matching
// "## "-delimited sub-section of a matching document becomes one result.
func (e *Engine) exactPhase(query string, docs []scoredDoc) []Result {
	queryLower := strings.ToLower(query)
	if queryLower == "" {
		return nil
	}

	var results []Result
	for _, doc := range docs {
		if !strings.Contains(strings.ToLower(doc.content), queryLower) {
			continue
		}
		for _, sub := range splitSubsections(doc.content) {
			pos := strings.Index(strings.ToLower(sub), queryLower)
			if pos < 0 {
				continue
			}
			start := clampRuneStart(sub, max(0, pos-snippetBefore))
			end := clampRuneStart(sub, min(len(sub), pos+len(queryLower)+snippetBefore))
			results = append(results, Result{
				Project: doc.ref.Project,
				Section: doc.ref.Section,
				File:    doc.ref.Path,
				Title:   subsectionTitle(sub, doc.ref.Path),
				Snippet: sub[start:end],
			})
		}
	}
	return results
}

// tokenPhase scores every document by whole-word query-token occurrences.
// Repeated tokens and repeated occurrences all add to the score. Both the
// score and matched_tokens use whole-word boundaries; the looser substring
// counting some earlier variants used for matched_tokens was unintentional.
func (e *Engine) tokenPhase(tokens []string, docs []scoredDoc) []Result {
	var results []Result
	for _, doc := range docs {
		contentLower := strings.ToLower(doc.content)
		score, positions := scoreDocument(tokens, contentLower)
		if score == 0 {
			continue
		}

		var snippet string
		if len(positions) > 0 {
			start := clampRuneStart(doc.content, max(0, positions[0]-snippetBefore))
			end := clampRuneStart(doc.content, min(len(doc.content), positions[0]+snippetAfter))
			snippet = doc.content[start:end]
		} else {
			end := clampRuneStart(doc.content, min(len(doc.content), snippetFallback))
			snippet = doc.content[:end]
		}

		results = append(results, Result{
			Project:       doc.ref.Project,
			Section:       doc.ref.Section,
			File:          doc.ref.Path,
			Title:         documentTitle(doc.content, doc.ref.Path),
			Snippet:       snippet,
			Score:         score,
			MatchedTokens: countMatchedTokens(tokens, contentLower),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].MatchedTokens != results[j].MatchedTokens {
			return results[i].MatchedTokens > results[j].MatchedTokens
		}
		return results[i].File < results[j].File
	})
	return results
}

// scoreDocument counts whole-word occurrences of each query token and
// records match positions. Every occurrence of every token increments the
// score, so a token repeated in the query counts twice per occurrence.
func scoreDocument(tokens []string, contentLower string) (int, []int) {
	score := 0
	var positions []int
	for _, token := range tokens {
		idx := 0
		for idx < len(contentLower) {
			found := strings.Index(contentLower[idx:], token)
			if found < 0 {
				break
			}
			at := idx + found
			if isWholeWordAt(contentLower, at, len(token)) {
				score++
				positions = append(positions, at)
			}
			idx = at + 1
		}
	}
	sort.Ints(positions)
	return score, positions
}

func countMatchedTokens(tokens []string, contentLower string) int {
	seen := make(map[string]struct{}, len(tokens))
	matched := 0
	for _, token := range tokens {
		if _, done := seen[token]; done {
			continue
		}
		seen[token] = struct{}{}
		if wholeWordContains(contentLower, token) {
			matched++
		}
	}
	return matched
}

func wholeWordContains(contentLower, token string) bool {
	idx := 0
	for idx < len(contentLower) {
		found := strings.Index(contentLower[idx:], token)
		if found < 0 {
			return false
		}
		at := idx + found
		if isWholeWordAt(contentLower, at, len(token)) {
			return true
		}
		idx = at + 1
	}
	return false
}

// isWholeWordAt reports whether the match at [at, at+length) is bounded by
// non-alphanumeric runes or string edges on both sides.
func isWholeWordAt(s string, at, length int) bool {
	if at > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:at])
		if isAlnum(r) {
			return false
		}
	}
	if at+length < len(s) {
		r, _ := utf8.DecodeRuneInString(s[at+length:])
		if isAlnum(r) {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// splitSubsections divides a document at "## " headers. The fragment above
// the first header (the document title block) is its own sub-section.
func splitSubsections(content string) []string {
	lines := strings.Split(content, "\n")
	var subs []string
	var buf []string
	flush := func() {
		if len(buf) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if text != "" {
			subs = append(subs, text)
		}
		buf = buf[:0]
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			flush()
		}
		buf = append(buf, line)
	}
	flush()
	return subs
}

func subsectionTitle(sub, path string) string {
	first, _, _ := strings.Cut(sub, "\n")
	title := strings.TrimSpace(strings.TrimLeft(first, "#"))
	if title == "" {
		return filepathBase(path)
	}
	return title
}

func documentTitle(content, path string) string {
	first, _, _ := strings.Cut(content, "\n")
	if strings.HasPrefix(first, "#") {
		if title := strings.TrimSpace(strings.TrimLeft(first, "#")); title != "" {
			return title
		}
	}
	return filepathBase(path)
}

func filepathBase(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// clampRuneStart moves a byte offset left to the nearest rune boundary so
// snippet windows never split a multibyte character.
func clampRuneStart(s string, offset int) int {
	for offset > 0 && offset < len(s) && !utf8.RuneStart(s[offset]) {
		offset--
	}
	return offset
}
