package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProject_AssignsUUID(t *testing.T) {
	p := NewProject("Acme", true)

	_, err := uuid.Parse(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", p.Name)
	assert.True(t, p.CloudSync)
	assert.NotNil(t, p.Hosts)
	assert.NotNil(t, p.Assets)

	e := p.Entry(42)
	assert.Equal(t, RegistryEntry{ID: p.ID, Name: "Acme", UpdatedTS: 42, CloudSync: true}, e)
}

func TestNewFindingID(t *testing.T) {
	id := NewFindingID()
	require.True(t, strings.HasPrefix(id, "f-"))
	_, err := uuid.Parse(strings.TrimPrefix(id, "f-"))
	assert.NoError(t, err)
}

func TestProject_AddHost_DeduplicatesByIP(t *testing.T) {
	p := NewProject("Acme", false)

	h1 := p.AddHost(Host{IP: "10.0.0.5"})
	assert.Equal(t, 0, h1.HostID)
	h2 := p.AddHost(Host{IP: "10.0.0.6"})
	assert.Equal(t, 1, h2.HostID)
	again := p.AddHost(Host{IP: "10.0.0.5", Hostname: "other"})
	assert.Equal(t, 0, again.HostID)
	assert.Len(t, p.Hosts, 2)
}

func TestProject_AddAsset_Sequential(t *testing.T) {
	p := NewProject("Acme", false)
	p.Assets = append(p.Assets, Asset{AssetID: 4, Name: "dmz"})

	id := p.AddAsset(Asset{Name: "web", Type: AssetSingle, Target: "10.0.0.1"})
	assert.Equal(t, 5, id)
	assert.Equal(t, 5, p.NextAssetID()-1)
}

func TestService_Key_DefaultsToTCP(t *testing.T) {
	assert.Equal(t, ServiceKey{Port: 80, Protocol: "tcp"}, Service{Port: 80}.Key())
	assert.Equal(t, ServiceKey{Port: 53, Protocol: "udp"}, Service{Port: 53, Protocol: "UDP"}.Key())
}

func TestProject_ProofPaths(t *testing.T) {
	p := &Project{Hosts: []Host{{
		IP: "10.0.0.5",
		Services: []Service{{Port: 80, Protocol: "tcp", Proofs: []Proof{
			{Type: "nuclei", ResultFile: "P1/a/r.txt", ScreenshotFile: "P1/a/s.png"},
			{Type: "auto", RawOutput: "inline"},
		}}},
	}}}

	assert.Equal(t, []string{"P1/a/r.txt", "P1/a/s.png"}, p.ProofFiles())

	p.RewriteProofPaths(func(s string) string { return strings.Replace(s, "P1/", "P2/", 1) })
	assert.Equal(t, []string{"P2/a/r.txt", "P2/a/s.png"}, p.ProofFiles())
	assert.Equal(t, "inline", p.Hosts[0].Services[0].Proofs[1].RawOutput)
}

func TestProject_WireFormat(t *testing.T) {
	in := `{
		"id": "P1", "name": "Acme", "cloud_sync": true, "modified_utc_ts": 99,
		"assets": [{"asset_id": 0, "type": "network", "name": "lan", "network": "10.0.0.0/24", "associated_host": [0]}],
		"hosts": [{"host_id": 0, "ip": "10.0.0.5", "services": [{"port": 22, "protocol": "tcp", "extrainfo": "x"}], "findings": ["f-1"], "assets": [0]}]
	}`

	var p Project
	require.NoError(t, json.Unmarshal([]byte(in), &p))
	assert.Equal(t, int64(99), p.ModifiedTS)
	assert.Equal(t, AssetNetwork, p.Assets[0].Type)
	assert.Equal(t, "x", p.Hosts[0].Services[0].ExtraInfo)
	assert.Equal(t, []string{"f-1"}, p.Hosts[0].Findings)
}
