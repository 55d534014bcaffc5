// Package merge reconciles two versions of a project record entity by
// entity. It is used when a push finds that the remote copy changed since
// the local one was last synced.
//
// Hosts are matched by IP and their services unioned by (port, protocol),
// keeping the remote service on collision. Assets are matched by asset id
// and findings by finding id; for both the local version wins.
package merge

import (
	"slices"
	"sort"

	"github.com/dmitrijs2005/projsync/internal/models"
)

// Stats counts what the local side contributed to the merged record.
type Stats struct {
	HostsAdded        int
	HostsRenumbered   int
	ServicesAdded     int
	AssetsFromLocal   int
	FindingsFromLocal int
}

// Result is the merged record and findings.
type Result struct {
	Project  *models.Project
	Findings []models.Finding
	Stats    Stats
}

// Hosts merges local into remote. The result is sorted by host id and holds
// exactly one host per IP.
//
// A local-only host whose id is already taken by a remote host gets the next
// free id. Findings and assets pointing at the old id are left unchanged.
func Hosts(local, remote []models.Host) ([]models.Host, Stats) {
	var st Stats

	merged := make([]models.Host, 0, len(remote)+len(local))
	byIP := make(map[string]int, len(remote))
	usedIDs := make(map[int]struct{}, len(remote))
	for _, h := range remote {
		if i, dup := byIP[h.IP]; dup {
			unionInto(&merged[i], h)
			continue
		}
		byIP[h.IP] = len(merged)
		usedIDs[h.HostID] = struct{}{}
		merged = append(merged, cloneHost(h))
	}

	var added []models.Host
	addedByIP := make(map[string]int)
	for _, lh := range local {
		if i, ok := byIP[lh.IP]; ok {
			st.ServicesAdded += unionInto(&merged[i], lh)
			continue
		}
		if i, ok := addedByIP[lh.IP]; ok {
			unionInto(&added[i], lh)
			continue
		}
		addedByIP[lh.IP] = len(added)
		added = append(added, cloneHost(lh))
	}

	next := models.NextHostID(append(append([]models.Host{}, merged...), added...))
	for _, h := range added {
		if _, taken := usedIDs[h.HostID]; taken {
			h.HostID = next
			next++
			st.HostsRenumbered++
		}
		usedIDs[h.HostID] = struct{}{}
		merged = append(merged, h)
		st.HostsAdded++
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].HostID < merged[j].HostID })
	return merged, st
}

// unionInto appends local services missing on dst and returns how many were
// added. Finding and asset references are unioned as well.
func unionInto(dst *models.Host, local models.Host) int {
	have := make(map[models.ServiceKey]struct{}, len(dst.Services))
	for _, s := range dst.Services {
		have[s.Key()] = struct{}{}
	}
	n := 0
	for _, s := range local.Services {
		if _, ok := have[s.Key()]; ok {
			continue
		}
		have[s.Key()] = struct{}{}
		dst.Services = append(dst.Services, s)
		n++
	}
	dst.Findings = unionStrings(dst.Findings, local.Findings)
	dst.Assets = unionInts(dst.Assets, local.Assets)
	return n
}

// Assets merges by asset id with the local version winning. The result is
// sorted by asset id.
func Assets(local, remote []models.Asset) ([]models.Asset, Stats) {
	var st Stats
	byID := make(map[int]models.Asset, len(local)+len(remote))
	for _, a := range remote {
		byID[a.AssetID] = a
	}
	for _, a := range local {
		byID[a.AssetID] = a
		st.AssetsFromLocal++
	}

	out := make([]models.Asset, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, st
}

// Findings returns the union by finding id with the local version winning.
// Remote order is kept; local-only findings follow in local order.
func Findings(local, remote []models.Finding) ([]models.Finding, Stats) {
	var st Stats
	localByID := make(map[string]models.Finding, len(local))
	for _, f := range local {
		localByID[f.FindingID] = f
	}

	out := make([]models.Finding, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(local)+len(remote))
	for _, f := range remote {
		if _, dup := seen[f.FindingID]; dup {
			continue
		}
		seen[f.FindingID] = struct{}{}
		if lf, ok := localByID[f.FindingID]; ok {
			f = lf
		}
		out = append(out, f)
	}
	for _, f := range local {
		if _, dup := seen[f.FindingID]; dup {
			continue
		}
		seen[f.FindingID] = struct{}{}
		out = append(out, f)
		st.FindingsFromLocal++
	}
	return out, st
}

// Projects merges a local and a remote project record. Scalar fields come
// from local; ModifiedTS is the later of the two.
func Projects(local, remote *models.Project, localFindings, remoteFindings []models.Finding) Result {
	merged := *local
	hosts, hs := Hosts(local.Hosts, remote.Hosts)
	assets, as := Assets(local.Assets, remote.Assets)
	findings, fs := Findings(localFindings, remoteFindings)

	merged.Hosts = hosts
	merged.Assets = assets
	if remote.ModifiedTS > merged.ModifiedTS {
		merged.ModifiedTS = remote.ModifiedTS
	}

	return Result{
		Project:  &merged,
		Findings: findings,
		Stats: Stats{
			HostsAdded:        hs.HostsAdded,
			HostsRenumbered:   hs.HostsRenumbered,
			ServicesAdded:     hs.ServicesAdded,
			AssetsFromLocal:   as.AssetsFromLocal,
			FindingsFromLocal: fs.FindingsFromLocal,
		},
	}
}

func cloneHost(h models.Host) models.Host {
	h.Services = slices.Clone(h.Services)
	h.Findings = slices.Clone(h.Findings)
	h.Assets = slices.Clone(h.Assets)
	return h
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			a = append(a, s)
		}
	}
	return a
}

func unionInts(a, b []int) []int {
	seen := make(map[int]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			a = append(a, v)
		}
	}
	return a
}
