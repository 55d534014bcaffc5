package models

import (
	"strings"

	"github.com/google/uuid"
)

type AssetType string

const (
	AssetNetwork AssetType = "network"
	AssetList    AssetType = "list"
	AssetSingle  AssetType = "single"
)

// Project is the <id>.json document. Findings live in a separate
// <id>_findings.json array.
type Project struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ExternalID string  `json:"external_id,omitempty"`
	CloudSync  bool    `json:"cloud_sync"`
	Assets     []Asset `json:"assets"`
	Hosts      []Host  `json:"hosts"`
	ModifiedTS int64   `json:"modified_utc_ts"`
}

// Asset is an operator-defined scan target. AssetID is assigned sequentially
// per replica.
type Asset struct {
	AssetID        int       `json:"asset_id"`
	Type           AssetType `json:"type"`
	Name           string    `json:"name"`
	Network        string    `json:"network,omitempty"`
	Target         string    `json:"target,omitempty"`
	File           string    `json:"file,omitempty"`
	AssociatedHost []int     `json:"associated_host"`
}

// Host is a discovered machine. IP is its identity across replicas.
type Host struct {
	HostID   int       `json:"host_id"`
	IP       string    `json:"ip"`
	Hostname string    `json:"hostname,omitempty"`
	OS       string    `json:"os,omitempty"`
	Services []Service `json:"services"`
	Findings []string  `json:"findings"`
	Assets   []int     `json:"assets"`
}

type Service struct {
	Port           int     `json:"port"`
	Protocol       string  `json:"protocol"`
	ServiceName    string  `json:"service_name,omitempty"`
	ServiceVersion string  `json:"service_version,omitempty"`
	ExtraInfo      string  `json:"extrainfo,omitempty"`
	Proofs         []Proof `json:"proofs,omitempty"`
}

// ServiceKey identifies a service within its host.
type ServiceKey struct {
	Port     int
	Protocol string
}

// Key returns the (port, protocol) identity; an empty protocol means tcp.
func (s Service) Key() ServiceKey {
	p := strings.ToLower(s.Protocol)
	if p == "" {
		p = "tcp"
	}
	return ServiceKey{Port: s.Port, Protocol: p}
}

// Proof points at evidence files stored under the results root. File paths
// are relative to that root.
type Proof struct {
	Type           string `json:"type"`
	UTCTS          int64  `json:"utc_ts"`
	ResultFile     string `json:"result_file,omitempty"`
	ScreenshotFile string `json:"screenshot_file,omitempty"`
	ResponseFile   string `json:"response_file,omitempty"`
	HTTPFile       string `json:"http_file,omitempty"`
	RawOutput      string `json:"raw_output,omitempty"`
}

// Finding is a vulnerability record. HostID refers to Host.HostID of the
// replica that created the finding.
type Finding struct {
	FindingID   string   `json:"finding_id"`
	HostID      *int     `json:"host_id"`
	Name        string   `json:"name"`
	Severity    string   `json:"severity"`
	Description string   `json:"description,omitempty"`
	Port        *int     `json:"port,omitempty"`
	CVSS        *float64 `json:"cvss,omitempty"`
	CWE         string   `json:"cwe,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
	ProofFile   string   `json:"proof_file,omitempty"`
	Impact      string   `json:"impact,omitempty"`
	UTCTS       int64    `json:"utc_ts"`
}

// NewProjectID returns a fresh globally unique project id.
func NewProjectID() string {
	return uuid.NewString()
}

// NewFindingID returns a fresh finding id of the form f-<uuid>.
func NewFindingID() string {
	return "f-" + uuid.NewString()
}

// NewProject creates an empty record with a fresh id.
func NewProject(name string, cloudSync bool) *Project {
	return &Project{
		ID:        NewProjectID(),
		Name:      name,
		CloudSync: cloudSync,
		Assets:    []Asset{},
		Hosts:     []Host{},
	}
}

// Entry builds the registry row describing p at time ts.
func (p *Project) Entry(ts int64) RegistryEntry {
	return RegistryEntry{
		ID:         p.ID,
		Name:       p.Name,
		ExternalID: p.ExternalID,
		UpdatedTS:  ts,
		CloudSync:  p.CloudSync,
	}
}

// HostByIP returns a pointer into p.Hosts.
func (p *Project) HostByIP(ip string) (*Host, bool) {
	for i := range p.Hosts {
		if p.Hosts[i].IP == ip {
			return &p.Hosts[i], true
		}
	}
	return nil, false
}

// NextHostID returns one more than the highest host id in use.
func (p *Project) NextHostID() int {
	return NextHostID(p.Hosts)
}

func NextHostID(hosts []Host) int {
	next := 0
	for _, h := range hosts {
		if h.HostID >= next {
			next = h.HostID + 1
		}
	}
	return next
}

// NextAssetID returns one more than the highest asset id in use.
func (p *Project) NextAssetID() int {
	next := 0
	for _, a := range p.Assets {
		if a.AssetID >= next {
			next = a.AssetID + 1
		}
	}
	return next
}

// AddHost appends h, assigning the next host id, unless a host with the same
// IP exists, in which case that host is returned.
func (p *Project) AddHost(h Host) *Host {
	if cur, ok := p.HostByIP(h.IP); ok {
		return cur
	}
	h.HostID = p.NextHostID()
	p.Hosts = append(p.Hosts, h)
	return &p.Hosts[len(p.Hosts)-1]
}

// AddAsset appends a, assigning the next asset id, and returns that id.
func (p *Project) AddAsset(a Asset) int {
	a.AssetID = p.NextAssetID()
	p.Assets = append(p.Assets, a)
	return a.AssetID
}

// ProofFiles lists every evidence path referenced by the record's proofs.
func (p *Project) ProofFiles() []string {
	var out []string
	for _, h := range p.Hosts {
		for _, s := range h.Services {
			for _, pr := range s.Proofs {
				for _, f := range []string{pr.ResultFile, pr.ScreenshotFile, pr.ResponseFile, pr.HTTPFile} {
					if f != "" {
						out = append(out, f)
					}
				}
			}
		}
	}
	return out
}

// RewriteProofPaths applies fn to every non-empty proof path in place.
func (p *Project) RewriteProofPaths(fn func(string) string) {
	for hi := range p.Hosts {
		for si := range p.Hosts[hi].Services {
			proofs := p.Hosts[hi].Services[si].Proofs
			for pi := range proofs {
				pr := &proofs[pi]
				for _, f := range []*string{&pr.ResultFile, &pr.ScreenshotFile, &pr.ResponseFile, &pr.HTTPFile} {
					if *f != "" {
						*f = fn(*f)
					}
				}
			}
		}
	}
}
