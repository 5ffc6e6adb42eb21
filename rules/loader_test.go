package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRuleset = `
id: default-entry
use_case: enter_market
rules:
  - name: confident-buy
    conditions:
      - left: recommendation.confidence
        op: gte
        right: "80"
      - left: recommendation.action
        op: eq
        right: BUY
    actions:
      - type: BUY
        quantity: 10
        take_profit_pct: 10
        stop_loss_pct: 5
  - name: log-everything
    continue_processing: true
    conditions:
      - left: recommendation.confidence
        op: gt
        right: "0"
    actions:
      - type: EVALUATION_ONLY
`

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "entry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRuleset), 0644))

	rs, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "default-entry", rs.ID)
	assert.Equal(t, UseCaseEnter, rs.UseCase)
	require.Len(t, rs.Rules, 2)

	first := rs.Rules[0]
	assert.Equal(t, "confident-buy", first.Name)
	assert.False(t, first.Continue)
	require.Len(t, first.Actions, 1)
	assert.Equal(t, ActionBuy, first.Actions[0].Type)
	assert.InDelta(t, 10, first.Actions[0].TakeProfitPct, 1e-9)
	assert.InDelta(t, 5, first.Actions[0].StopLossPct, 1e-9)

	assert.True(t, rs.Rules[1].Continue)
}

func TestLoadDirRejectsDuplicateUseCase(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(sampleRuleset), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(sampleRuleset), 0644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate ruleset")
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entry.yaml"), []byte(sampleRuleset), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	lib, err := LoadDir(dir)
	require.NoError(t, err)

	rs, err := lib.ForUseCase(UseCaseEnter)
	require.NoError(t, err)
	assert.Equal(t, "default-entry", rs.ID)

	_, err = lib.ForUseCase(UseCaseManage)
	assert.Error(t, err)
}
