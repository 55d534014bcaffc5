package registry

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/models"
)

// Resolve finds a non-deleted entry from an operator-supplied identifier.
// It tries, in order: exact name (case-insensitive), exact id, id prefix,
// external id, and a partial name that matches exactly one project.
func Resolve(reg *models.Registry, ident string) (models.RegistryEntry, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return models.RegistryEntry{}, fmt.Errorf("empty identifier: %w", common.ErrProjectNotFound)
	}
	active := reg.Active()
	lower := strings.ToLower(ident)

	for _, e := range active {
		if strings.ToLower(e.Name) == lower {
			return e, nil
		}
	}
	for _, e := range active {
		if e.ID == ident {
			return e, nil
		}
	}

	var byPrefix []models.RegistryEntry
	for _, e := range active {
		if strings.HasPrefix(strings.ToLower(e.ID), lower) {
			byPrefix = append(byPrefix, e)
		}
	}
	if len(byPrefix) == 1 {
		return byPrefix[0], nil
	}

	for _, e := range active {
		if e.ExternalID != "" && strings.EqualFold(e.ExternalID, ident) {
			return e, nil
		}
	}

	var partial []models.RegistryEntry
	for _, e := range active {
		if strings.Contains(strings.ToLower(e.Name), lower) {
			partial = append(partial, e)
		}
	}
	switch len(partial) {
	case 1:
		return partial[0], nil
	case 0:
		return models.RegistryEntry{}, fmt.Errorf("%q: %w", ident, common.ErrProjectNotFound)
	default:
		names := make([]string, 0, len(partial))
		for _, e := range partial {
			names = append(names, e.Name)
		}
		return models.RegistryEntry{}, fmt.Errorf("%q is ambiguous (%s): %w", ident, strings.Join(names, ", "), common.ErrProjectNotFound)
	}
}
