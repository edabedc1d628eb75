package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// GlobTool lists files under the workspace matching a glob pattern.
type GlobTool struct{ WorkDir string }

func NewGlobTool(workDir string) *GlobTool { return &GlobTool{WorkDir: workDir} }

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "List files matching a glob pattern." }
func (t *GlobTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"}},"required":["pattern"]}`)
}

func (t *GlobTool) Signature(input json.RawMessage, ctx Context) string {
	return stringField(input, "pattern")
}

func (t *GlobTool) Execute(_ context.Context, toolCtx Context, input json.RawMessage) Result {
	pattern := stringField(input, "pattern")
	base := toolCtx.WorkDir
	if base == "" {
		base = t.WorkDir
	}
	full := pattern
	if !filepath.IsAbs(pattern) {
		full = filepath.Join(base, pattern)
	}
	matches, err := filepath.Glob(full)
	if err != nil {
		return ErrorResult(err.Error())
	}
	sort.Strings(matches)
	return OKResult(strings.Join(matches, "\n"))
}

// GrepTool searches file contents under the workspace for a regular
// expression, returning matching "path:line: text" entries.
type GrepTool struct{ WorkDir string }

func NewGrepTool(workDir string) *GrepTool { return &GrepTool{WorkDir: workDir} }

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search file contents for a regular expression." }
func (t *GrepTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"},"path":{"type":"string"}},"required":["pattern"]}`)
}

func (t *GrepTool) Signature(input json.RawMessage, ctx Context) string {
	return stringField(input, "pattern") + " in " + stringField(input, "path")
}

func (t *GrepTool) Execute(_ context.Context, toolCtx Context, input json.RawMessage) Result {
	patternStr := stringField(input, "pattern")
	re, err := regexp.Compile(patternStr)
	if err != nil {
		return ErrorResult("invalid pattern: " + err.Error())
	}

	base := toolCtx.WorkDir
	if base == "" {
		base = t.WorkDir
	}
	root := base
	if p := stringField(input, "path"); p != "" {
		root = resolvePath(toolCtx, t.WorkDir, p)
	}

	var matches []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			if re.MatchString(scanner.Text()) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", path, line, scanner.Text()))
			}
		}
		return nil
	})
	if err != nil {
		return ErrorResult(err.Error())
	}
	return OKResult(strings.Join(matches, "\n"))
}
