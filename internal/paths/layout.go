// Package paths maps projects to object keys in the bucket and to files under
// the local results root. Both sides use the same relative layout:
//
//	projects.json            registry
//	<id>.json                project record
//	<id>_findings.json       findings array
//	<id>/...                 evidence tree
package paths

import (
	"path"
	"path/filepath"
	"strings"
)

const RegistryKey = "projects.json"

func ProjectKey(id string) string {
	return id + ".json"
}

func FindingsKey(id string) string {
	return id + "_findings.json"
}

// EvidencePrefix is the key prefix of the project's evidence tree, with a
// trailing slash so that "P1" never matches "P10".
func EvidencePrefix(id string) string {
	return id + "/"
}

// ValidID reports whether id can name files under the results root: one
// local path element, so that id.json and id/ stay inside the root.
func ValidID(id string) bool {
	return id != "" && id != "." && !strings.ContainsAny(id, `/\`) && filepath.IsLocal(id)
}

// Layout resolves keys against a local results root.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

// Path returns the local file for an object key.
func (l Layout) Path(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(key))
}

func (l Layout) RegistryPath() string {
	return l.Path(RegistryKey)
}

func (l Layout) ProjectPath(id string) string {
	return l.Path(ProjectKey(id))
}

func (l Layout) FindingsPath(id string) string {
	return l.Path(FindingsKey(id))
}

func (l Layout) EvidenceDir(id string) string {
	return filepath.Join(l.Root, id)
}

// Relative converts p to a slash-separated path relative to the results
// root. Paths outside the root, and paths that are already relative, are
// returned unchanged apart from slash normalisation.
func (l Layout) Relative(p string) string {
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(l.Root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// Resolve turns a root-relative proof path back into a local path.
func (l Layout) Resolve(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return l.Path(rel)
}

// RebaseEvidence rewrites a root-relative path under oldID/ to newID/.
// Anything else is returned as is.
func RebaseEvidence(p, oldID, newID string) string {
	slashed := filepath.ToSlash(p)
	if rest, ok := strings.CutPrefix(slashed, EvidencePrefix(oldID)); ok {
		return path.Join(newID, rest)
	}
	return p
}
