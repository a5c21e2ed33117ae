package symphony

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonatalabs/sonata/internal/contracts"
)

func registryConfig(name string) *Config {
	return &Config{
		Meta: Meta{
			Name:          name,
			Rebalance:     "monthly",
			ExecutionTime: "15:59",
		},
		Strategy: &Node{Kind: KindAsset, Ticker: "VTI"},
	}
}

func TestRegistryAddAndGet(t *testing.T) {
	r := NewRegistry()

	hash, err := r.Add(registryConfig("sixty-forty"))
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	entry, ok := r.Get("sixty-forty")
	require.True(t, ok)
	assert.Equal(t, hash, entry.Hash)
	assert.Equal(t, "sixty-forty", entry.Config.Meta.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryReplacesOnReAdd(t *testing.T) {
	r := NewRegistry()

	cfg := registryConfig("momentum")
	_, err := r.Add(cfg)
	require.NoError(t, err)

	updated := registryConfig("momentum")
	updated.Meta.Rebalance = "weekly"
	newHash, err := r.Add(updated)
	require.NoError(t, err)

	entry, ok := r.Get("momentum")
	require.True(t, ok)
	assert.Equal(t, newHash, entry.Hash)
	assert.Equal(t, "weekly", entry.Config.Meta.Rebalance)
	assert.Nil(t, entry.Evaluation)
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := r.Add(registryConfig(name))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
}

func TestRegistrySetEvaluation(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add(registryConfig("sixty-forty"))
	require.NoError(t, err)

	eval := &contracts.Evaluation{
		Date:    time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Targets: []contracts.TargetWeight{{Symbol: "VTI", Weight: 1}},
	}
	require.NoError(t, r.SetEvaluation("sixty-forty", eval))

	entry, ok := r.Get("sixty-forty")
	require.True(t, ok)
	require.NotNil(t, entry.Evaluation)
	assert.Equal(t, eval.Targets, entry.Evaluation.Targets)

	require.Error(t, r.SetEvaluation("missing", eval))
}

func TestRegistryRejectsUnnamed(t *testing.T) {
	r := NewRegistry()

	_, err := r.Add(nil)
	require.Error(t, err)

	_, err = r.Add(&Config{Strategy: &Node{Kind: KindAsset, Ticker: "VTI"}})
	require.Error(t, err)
}
