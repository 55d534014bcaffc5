// Package project stores project records, their findings and their evidence
// tree under the local results root.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/filex"
	"github.com/dmitrijs2005/projsync/internal/models"
	"github.com/dmitrijs2005/projsync/internal/paths"
)

type Repository struct {
	layout paths.Layout
}

func NewRepository(layout paths.Layout) *Repository {
	return &Repository{layout: layout}
}

func (r *Repository) Layout() paths.Layout {
	return r.layout
}

func checkID(id string) error {
	if !paths.ValidID(id) {
		return fmt.Errorf("%q: %w", id, common.ErrInvalidID)
	}
	return nil
}

// Exists reports whether the project record file is present.
func (r *Repository) Exists(id string) bool {
	return paths.ValidID(id) && filex.Exists(r.layout.ProjectPath(id))
}

func (r *Repository) Load(id string) (*models.Project, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return ReadRecord(r.layout.ProjectPath(id))
}

// ReadRecord decodes a project record from any path, such as a scratch copy
// of the remote version.
func ReadRecord(path string) (*models.Project, error) {
	p := &models.Project{}
	err := filex.ReadJSON(path, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading project record: %w", common.ErrProjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading project record: %w", err)
	}
	if p.Hosts == nil {
		p.Hosts = []models.Host{}
	}
	if p.Assets == nil {
		p.Assets = []models.Asset{}
	}
	return p, nil
}

// Save writes the record. Proof and asset paths under the results root are
// stored root-relative, in place on p, so the record stays valid on other
// replicas.
func (r *Repository) Save(p *models.Project) error {
	if err := checkID(p.ID); err != nil {
		return fmt.Errorf("error saving project record: %w", err)
	}
	p.RewriteProofPaths(r.layout.Relative)
	for i := range p.Assets {
		p.Assets[i].File = r.layout.Relative(p.Assets[i].File)
	}
	if err := filex.WriteJSON(r.layout.ProjectPath(p.ID), p); err != nil {
		return fmt.Errorf("error saving project record: %w", err)
	}
	return nil
}

// LoadFindings returns the project's findings; a missing file means none.
func (r *Repository) LoadFindings(id string) ([]models.Finding, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return ReadFindings(r.layout.FindingsPath(id))
}

func ReadFindings(path string) ([]models.Finding, error) {
	var out []models.Finding
	err := filex.ReadJSON(path, &out)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Finding{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading findings: %w", err)
	}
	if out == nil {
		out = []models.Finding{}
	}
	return out, nil
}

func (r *Repository) SaveFindings(id string, findings []models.Finding) error {
	if err := checkID(id); err != nil {
		return fmt.Errorf("error saving findings: %w", err)
	}
	if findings == nil {
		findings = []models.Finding{}
	}
	for i := range findings {
		findings[i].ProofFile = r.layout.Relative(findings[i].ProofFile)
	}
	if err := filex.WriteJSON(r.layout.FindingsPath(id), findings); err != nil {
		return fmt.Errorf("error saving findings: %w", err)
	}
	return nil
}

// Delete removes the record, the findings and the evidence tree. Missing
// pieces are ignored.
func (r *Repository) Delete(id string) error {
	if err := checkID(id); err != nil {
		return fmt.Errorf("error deleting project: %w", err)
	}
	var errs []error
	for _, p := range []string{r.layout.ProjectPath(id), r.layout.FindingsPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(r.layout.EvidenceDir(id)); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("error deleting project %s: %w", id, err)
	}
	return nil
}

// Migrate copies project oldID to newID: record, findings and evidence tree.
// Proof paths under oldID/ are rebased to newID/. The old copy is removed
// only after the new one is fully written.
func (r *Repository) Migrate(oldID, newID string) (*models.Project, error) {
	if err := checkID(newID); err != nil {
		return nil, err
	}
	p, err := r.Load(oldID)
	if err != nil {
		return nil, err
	}
	findings, err := r.LoadFindings(oldID)
	if err != nil {
		return nil, err
	}

	if _, err := filex.CopyDir(r.layout.EvidenceDir(oldID), r.layout.EvidenceDir(newID)); err != nil {
		return nil, fmt.Errorf("error copying evidence: %w", err)
	}

	rebase := func(s string) string { return paths.RebaseEvidence(s, oldID, newID) }
	p.ID = newID
	p.RewriteProofPaths(rebase)
	for i := range findings {
		if findings[i].ProofFile != "" {
			findings[i].ProofFile = rebase(findings[i].ProofFile)
		}
	}
	for i := range p.Assets {
		if p.Assets[i].File != "" {
			p.Assets[i].File = rebase(p.Assets[i].File)
		}
	}

	if err := r.Save(p); err != nil {
		return nil, err
	}
	if err := r.SaveFindings(newID, findings); err != nil {
		return nil, err
	}
	if err := r.Delete(oldID); err != nil {
		return nil, err
	}
	return p, nil
}

// EvidenceFile is a file referenced by a project, resolved against the local
// results root.
type EvidenceFile struct {
	Rel     string
	Path    string
	Present bool
}

// Evidence lists the proof, finding and asset files of project id in record
// order, without duplicates.
func (r *Repository) Evidence(id string) ([]EvidenceFile, error) {
	p, err := r.Load(id)
	if err != nil {
		return nil, err
	}
	findings, err := r.LoadFindings(id)
	if err != nil {
		return nil, err
	}

	refs := p.ProofFiles()
	for _, f := range findings {
		refs = append(refs, f.ProofFile)
	}
	for _, a := range p.Assets {
		refs = append(refs, a.File)
	}

	seen := make(map[string]struct{}, len(refs))
	out := make([]EvidenceFile, 0, len(refs))
	for _, rel := range refs {
		if rel == "" {
			continue
		}
		if _, ok := seen[rel]; ok {
			continue
		}
		seen[rel] = struct{}{}
		path := r.layout.Resolve(rel)
		out = append(out, EvidenceFile{Rel: rel, Path: path, Present: filex.Exists(path)})
	}
	return out, nil
}
