// Package parser turns a free-form styling request into a concrete
// plan: the distilled instruction plus the pages and source files it
// applies to. A planning model proposes targets against the project's
// actual file listing, and every proposed path is reconciled against
// that listing before it is accepted.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kurtnissen/ai-swarm/internal/jsonx"
	"github.com/kurtnissen/ai-swarm/internal/swarm"
)

const (
	maxScanDepth = 8
	maxScanFiles = 500
)

// skipDirs are never descended into during enumeration.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
	".next":        true,
	".nuxt":        true,
	"coverage":     true,
}

// componentExts mark files that can plausibly carry page styling.
var componentExts = map[string]bool{
	".tsx":    true,
	".jsx":    true,
	".ts":     true,
	".js":     true,
	".vue":    true,
	".svelte": true,
	".astro":  true,
	".css":    true,
	".scss":   true,
	".html":   true,
}

// ModelClient is the planning-model surface the parser needs.
type ModelClient interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ParseResult is the plan distilled from a free-form request.
type ParseResult struct {
	StylingInstruction string             `json:"stylingInstruction"`
	Targets            []swarm.TargetPage `json:"targets"`
	Confidence         float64            `json:"confidence"`
}

const planPromptTemplate = `You are planning a visual styling change for a web project.

## User request
%s

## Base URL of the running dev server
%s

## Project source files
%s

## Your task
Distill the styling instruction and pick the pages it applies to. Each
target needs the page URL (built from the base URL) and the source file
from the listing above that renders it.

## Response Format (JSON only, no markdown)
{
  "stylingInstruction": "the distilled change to apply",
  "targets": [
    {"url": "full page url", "filePath": "path from the listing", "componentName": "optional"}
  ],
  "confidence": 0.0-1.0
}

Only use file paths that appear in the listing. Only return the JSON object.`

type Parser struct {
	model ModelClient
}

func New(model ModelClient) *Parser {
	return &Parser{model: model}
}

// Parse plans targets for the request. Any failure along the way,
// whether enumerating the project, reaching the planning model, or
// parsing its answer, returns the original request as the instruction
// with no targets and zero confidence so the caller can fall back to
// manual target selection.
func (p *Parser) Parse(ctx context.Context, request, projectDir, baseURL string) (*ParseResult, error) {
	files, err := EnumerateFiles(projectDir)
	if err != nil {
		slog.Warn("project enumeration failed", "dir", projectDir, "error", err)
		return fallbackResult(request), nil
	}
	if len(files) == 0 {
		slog.Warn("no component files found", "dir", projectDir)
		return fallbackResult(request), nil
	}

	prompt := fmt.Sprintf(planPromptTemplate, request, baseURL, strings.Join(files, "\n"))
	response, err := p.model.GenerateText(ctx, prompt)
	if err != nil {
		slog.Warn("planning model unavailable", "error", err)
		return fallbackResult(request), nil
	}

	var result ParseResult
	if err := jsonx.Unmarshal(response, &result); err != nil {
		slog.Warn("planning response had no parseable JSON", "error", err)
		return fallbackResult(request), nil
	}
	if result.StylingInstruction == "" {
		result.StylingInstruction = request
	}

	result.Targets = reconcileTargets(result.Targets, files)
	return &result, nil
}

func fallbackResult(request string) *ParseResult {
	return &ParseResult{StylingInstruction: request}
}

// EnumerateFiles walks the project breadth-first, collecting component
// and stylesheet paths relative to the root. The walk is bounded in
// depth and file count so a pathological tree cannot blow up the
// planning prompt.
func EnumerateFiles(root string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	var files []string
	type dirEntry struct {
		path  string
		depth int
	}
	queue := []dirEntry{{path: root, depth: 0}}

	for len(queue) > 0 && len(files) < maxScanFiles {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir.path)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				if skipDirs[name] || strings.HasPrefix(name, ".") {
					continue
				}
				if dir.depth+1 <= maxScanDepth {
					queue = append(queue, dirEntry{path: filepath.Join(dir.path, name), depth: dir.depth + 1})
				}
				continue
			}
			if !componentExts[filepath.Ext(name)] {
				continue
			}
			rel, err := filepath.Rel(root, filepath.Join(dir.path, name))
			if err != nil {
				continue
			}
			files = append(files, filepath.ToSlash(rel))
			if len(files) >= maxScanFiles {
				break
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// reconcileTargets maps each proposed file path onto the real listing.
// Matching tries the exact path, then an exact base-name match, then a
// unique substring match. Targets that match nothing are dropped.
func reconcileTargets(proposed []swarm.TargetPage, files []string) []swarm.TargetPage {
	var out []swarm.TargetPage
	for _, tgt := range proposed {
		match, ok := matchPath(tgt.FilePath, files)
		if !ok {
			slog.Warn("dropping target with unknown file path", "url", tgt.URL, "filePath", tgt.FilePath)
			continue
		}
		tgt.FilePath = match
		out = append(out, tgt)
	}
	return out
}

func matchPath(proposed string, files []string) (string, bool) {
	proposed = filepath.ToSlash(strings.TrimPrefix(proposed, "./"))
	if proposed == "" {
		return "", false
	}

	for _, f := range files {
		if f == proposed {
			return f, true
		}
	}

	base := filepath.Base(proposed)
	var nameMatches []string
	for _, f := range files {
		if filepath.Base(f) == base {
			nameMatches = append(nameMatches, f)
		}
	}
	if len(nameMatches) == 1 {
		return nameMatches[0], true
	}

	var subMatches []string
	for _, f := range files {
		if strings.Contains(f, proposed) {
			subMatches = append(subMatches, f)
		}
	}
	if len(subMatches) == 1 {
		return subMatches[0], true
	}

	return "", false
}
