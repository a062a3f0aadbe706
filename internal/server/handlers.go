package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reko/internal/archive"
	"reko/internal/rekoerr"
	"reko/internal/search"
)

type addRequest struct {
	Project string `json:"project"`
	Section string `json:"section"`
	Content string `json:"content"`
	Title   string `json:"title"`
}

type ruleRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type generateRequest struct {
	OutputPath string `json:"output_path"`
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Reko archives API is running",
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter: query"})
		return
	}

	results, err := s.engine.Search(query, c.Query("project"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.ObserveSearchResults(len(results))
	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// handleQuickSearch is the agent-facing search. format=text renders plain
// text for direct inclusion in a model prompt; anything else gets the same
// JSON shape as /search.
func (s *Server) handleQuickSearch(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter: query"})
		return
	}

	results, err := s.engine.Search(query, c.Query("project"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.ObserveSearchResults(len(results))

	if c.DefaultQuery("format", "json") == "text" {
		c.String(http.StatusOK, search.RenderText(query, results))
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleAdd(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing JSON body"})
		return
	}
	if missing := missingFields(map[string]string{
		"project": req.Project,
		"section": req.Section,
		"content": req.Content,
	}, "project", "section", "content"); len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	path, err := s.store.Add(req.Project, req.Section, req.Content, req.Title)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.IncEntriesAdded()
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Content added to archives",
		"file":    path,
	})
}

func (s *Server) handleGetRules(c *gin.Context) {
	rules, err := s.rules.ListRules()
	if err != nil {
		s.writeError(c, err)
		return
	}
	if rules == nil {
		rules = []archive.Rule{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(rules),
		"rules": rules,
	})
}

func (s *Server) handlePostRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing JSON body"})
		return
	}
	if missing := missingFields(map[string]string{
		"name":    req.Name,
		"content": req.Content,
	}, "name", "content"); len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	path, err := s.rules.UpsertRule(req.Name, req.Content)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.IncRulesUpdated()
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Rule '" + req.Name + "' updated",
		"file":    path,
	})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	// The body is optional; an empty or absent body means default output.
	_ = c.ShouldBindJSON(&req)

	path, err := s.generator.Generate(c.Request.Context(), req.OutputPath)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Generated combined cursorrules file",
		"file":    path,
	})
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.store.ListProjects()
	if err != nil {
		s.writeError(c, err)
		return
	}
	if projects == nil {
		projects = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(projects),
		"projects": projects,
	})
}

func (s *Server) handleListSections(c *gin.Context) {
	project := c.Query("project")
	if project == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter: project"})
		return
	}

	sections, err := s.store.ListSections(project)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if sections == nil {
		sections = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"project":  project,
		"count":    len(sections),
		"sections": sections,
	})
}

// writeError maps the error taxonomy onto status codes. Unclassified errors
// become 500s with the message exposed, matching the existing clients'
// expectations of an {"error": "..."} body.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case rekoerr.IsValidation(err):
		status = http.StatusBadRequest
	case rekoerr.IsNotFound(err):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// missingFields returns the names (in the given order) whose values are
// empty.
func missingFields(values map[string]string, order ...string) []string {
	var missing []string
	for _, name := range order {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
