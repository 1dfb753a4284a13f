package l2f

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const electionScenario = `{
  "region": {"table": "users"},
  "config": {"replicas": ["a", "b", "c"]},
  "states": {"a": "secondary_need_primary", "b": "secondary_need_primary", "c": "secondary_need_primary"},
  "versions": {
    "a": {"branch": "00000000-0000-0000-0000-000000000000", "timestamp": 5},
    "b": {"branch": "00000000-0000-0000-0000-000000000000", "timestamp": 7},
    "c": {"branch": "00000000-0000-0000-0000-000000000000", "timestamp": 7}
  }
}`

func TestCalcElectsPrimary(t *testing.T) {
	res, err := Calc(strings.NewReader(electionScenario))
	require.NoError(t, err)

	assert.True(t, res.Changed)
	require.NotNil(t, res.L2F.Primary)
	assert.Equal(t, table.ServerID("c"), res.L2F.Primary.Server)
	assert.False(t, res.L2F.Branch.IsNil())

	require.Len(t, res.Minted, 1)
	cert, ok := res.Minted[res.L2F.Branch]
	require.True(t, ok)
	assert.Equal(t, table.NilBranch, cert.Origin.Branch)
	assert.Equal(t, "users", cert.Region.Table)

	// deterministic branch ids
	again, err := Calc(strings.NewReader(electionScenario))
	require.NoError(t, err)
	assert.Equal(t, res.L2F.Branch, again.L2F.Branch)
}

func TestCalcNoChange(t *testing.T) {
	res, err := Calc(strings.NewReader(`{"config": {"replicas": ["a"]}}`))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Nil(t, res.L2F.Primary)
	assert.Empty(t, res.Minted)
}

func TestCalcRejectsBadInput(t *testing.T) {
	for _, in := range []string{
		`{`,
		`{"unknown": 1}`,
		`{"states": {"a": "sleeping"}}`,
	} {
		_, err := Calc(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestParseReport(t *testing.T) {
	r, err := parseReport([]string{"users", "a", "primary_running", "00000000-0000-0000-0000-000000000000@12"})
	require.NoError(t, err)
	assert.Equal(t, table.PrimaryRunning, r.State)
	assert.Equal(t, uint64(12), r.Version.Timestamp)

	_, err = parseReport([]string{"users", "a", "running"})
	assert.Error(t, err)
	_, err = parseReport([]string{"users", "a", "primary_running", "12"})
	assert.Error(t, err)
	_, err = parseReport([]string{"users", "a", "primary_running", "nobranch@12"})
	assert.Error(t, err)
}

func TestParseConfig(t *testing.T) {
	config := parseConfig([]string{"c, a,,b", "a"})
	assert.True(t, config.Replicas.Equal(table.NewServerSet("a", "b", "c")))
	assert.Equal(t, table.ServerID("a"), config.PrimaryReplica)
}
