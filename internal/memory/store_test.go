package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
)

func TestFileStore_Snapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.toml"), []byte(`
known_merchants = ["Tesco", " tesco ", "Shell Garage", ""]
prior_layout_hints = ["tabular-ledger", "dayfirst"]
`), 0o600))

	s := NewFileStore(dir, nil)

	t.Run("reads and cleans", func(t *testing.T) {
		snap, err := s.Snapshot(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"Tesco", "Shell Garage"}, snap.KnownMerchants)
		assert.True(t, snap.HasHint("dayfirst"))
	})

	t.Run("unknown user is empty", func(t *testing.T) {
		snap, err := s.Snapshot(context.Background(), "bob")
		require.NoError(t, err)
		assert.Empty(t, snap.KnownMerchants)
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		_, err := s.Snapshot(context.Background(), "../etc/passwd")
		require.ErrorIs(t, err, common.ErrInvalidInput)
		_, err = s.Snapshot(context.Background(), "..")
		require.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("save then read", func(t *testing.T) {
		want := entity.MemorySnapshot{KnownMerchants: []string{"Costa"}, PriorLayoutHints: []string{"monthfirst"}}
		require.NoError(t, s.Save(context.Background(), "carol", want))
		got, err := s.Snapshot(context.Background(), "carol")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("bad toml", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "dave.toml"), []byte("known_merchants = ["), 0o600))
		_, err := s.Snapshot(context.Background(), "dave")
		assert.Error(t, err)
	})
}

func TestRelevantMerchants(t *testing.T) {
	text := `14/01/2024 TESCO STORES 3012     -20.00   980.00
15/01/2024 CARD PAYMENT SHEL GARAGE  -30.00   950.00
16/01/2024 SALARY ACME LTD          200.00  1150.00`
	known := []string{"Amazon", "Shell Garage", "Tesco Stores", "Acme Ltd", "Netflix"}

	got := RelevantMerchants(known, text, 0)
	assert.Equal(t, []string{"Tesco Stores", "Acme Ltd", "Shell Garage"}, got)

	assert.Equal(t, []string{"Tesco Stores"}, RelevantMerchants(known, text, 1))
	assert.Nil(t, RelevantMerchants(nil, text, 5))
	assert.Nil(t, RelevantMerchants(known, "", 5))
}
