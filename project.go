package cortex

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectEnvVar names the environment variable that overrides project
// auto-detection. A value of "*" resolves to global (nil project).
const ProjectEnvVar = "CLAUDE_MEMORY_PROJECT"

// skipSegments are path components that never qualify as a project name
// when walking a working directory right-to-left.
var skipSegments = map[string]bool{
	"src": true, "lib": true, "dist": true, "build": true, "out": true,
	"node_modules": true, ".git": true, ".next": true, ".cache": true,
	"test": true, "tests": true, "__tests__": true, "spec": true,
	"bin": true, "scripts": true, "config": true, "public": true, "static": true,
}

// projectFromCWD derives a project tag by walking path segments right to
// left, skipping hidden segments and the conventional skip set. Returns nil
// if no segment qualifies.
func projectFromCWD(cwd string) *string {
	cwd = filepath.Clean(cwd)
	segments := strings.Split(cwd, string(filepath.Separator))
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, ".") {
			continue
		}
		if skipSegments[strings.ToLower(seg)] {
			continue
		}
		return &seg
	}
	return nil
}

// ProjectResolver caches the auto-detected project so repeated resolve calls
// don't re-walk the filesystem. It is the module's one permitted piece of
// mutable global-adjacent state, held as a value passed into the
// Engine rather than a package-level variable.
type ProjectResolver struct {
	cached *string
	loaded bool
}

// NewProjectResolver creates a resolver. It does not eagerly detect; the
// first Resolve call with no explicit project populates the cache.
func NewProjectResolver() *ProjectResolver {
	return &ProjectResolver{}
}

// Resolve returns the effective project for an operation.
//
// Priority: (1) explicit argument, where "*" means global (nil) and any
// other non-empty value is used with surrounding whitespace trimmed;
// (2) CLAUDE_MEMORY_PROJECT, same
// "*" rule; (3) the cached (or freshly detected) CWD-derived project.
func (r *ProjectResolver) Resolve(explicit string) *string {
	if explicit != "" {
		if explicit == "*" {
			return nil
		}
		trimmed := strings.TrimSpace(explicit)
		return &trimmed
	}

	if env, ok := os.LookupEnv(ProjectEnvVar); ok && env != "" {
		if env == "*" {
			return nil
		}
		return &env
	}

	if !r.loaded {
		r.loaded = true
		cwd, err := os.Getwd()
		if err == nil {
			r.cached = projectFromCWD(cwd)
		}
	}
	return r.cached
}

// SetActiveProject overrides the cached auto-detected project explicitly,
// e.g. for a caller that wants to pin a project for the process lifetime.
func (r *ProjectResolver) SetActiveProject(project *string) {
	r.cached = project
	r.loaded = true
}
