package record

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	t.Run("ModalDimensionWins", func(t *testing.T) {
		rows := []Record{
			{ID: "a", Vector: []float32{1, 2, 3}},
			{ID: "b", Vector: []float32{4, 5, 6}},
			{ID: "c", Vector: []float32{7, 8}},
		}

		store, report, err := Sanitize(rows)
		require.NoError(t, err)
		assert.Equal(t, 3, store.Dimension())
		assert.Equal(t, 3, report.Kept)
		assert.Equal(t, 1, report.Padded)

		vec, ok := store.Vector("c")
		require.True(t, ok)
		assert.Equal(t, []float32{7, 8, 0}, vec)
	})

	t.Run("TieBreaksToLargerLength", func(t *testing.T) {
		rows := []Record{
			{ID: "a", Vector: []float32{1, 2}},
			{ID: "b", Vector: []float32{1, 2, 3}},
		}

		store, _, err := Sanitize(rows)
		require.NoError(t, err)
		assert.Equal(t, 3, store.Dimension())
	})

	t.Run("Truncation", func(t *testing.T) {
		rows := []Record{
			{ID: "a", Vector: []float32{1, 2}},
			{ID: "b", Vector: []float32{3, 4}},
			{ID: "c", Vector: []float32{5, 6, 7, 8}},
		}

		store, report, err := Sanitize(rows)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Truncated)

		vec, ok := store.Vector("c")
		require.True(t, ok)
		assert.Equal(t, []float32{5, 6}, vec)
	})

	t.Run("DropsMissingIDAndEmptyVector", func(t *testing.T) {
		rows := []Record{
			{ID: "", Vector: []float32{1, 2}},
			{ID: "a", Vector: nil},
			{ID: "b", Vector: []float32{3, 4}},
		}

		store, report, err := Sanitize(rows)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Kept)
		assert.Equal(t, 2, report.Dropped)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("DropsDuplicateIDs", func(t *testing.T) {
		rows := []Record{
			{ID: "a", Vector: []float32{1, 2}},
			{ID: "a", Vector: []float32{3, 4}},
		}

		store, report, err := Sanitize(rows)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Kept)
		assert.Equal(t, 1, report.Dropped)

		vec, _ := store.Vector("a")
		assert.Equal(t, []float32{1, 2}, vec)
	})

	t.Run("ReplacesNonFinite", func(t *testing.T) {
		nan := float32(math.NaN())
		inf := float32(math.Inf(1))
		rows := []Record{
			{ID: "a", Vector: []float32{nan, 1}},
			{ID: "b", Vector: []float32{inf, 2}},
			{ID: "c", Vector: []float32{3, 4}},
		}

		store, report, err := Sanitize(rows)
		require.NoError(t, err)
		assert.Equal(t, 2, report.FixedNonFinite)

		vec, _ := store.Vector("a")
		assert.Equal(t, []float32{0, 1}, vec)
		vec, _ = store.Vector("b")
		assert.Equal(t, []float32{0, 2}, vec)
		_ = store
	})

	t.Run("EmptyDataset", func(t *testing.T) {
		_, _, err := Sanitize(nil)
		assert.ErrorIs(t, err, ErrEmptyDataset)

		_, report, err := Sanitize([]Record{{ID: "a"}, {ID: "b"}})
		assert.ErrorIs(t, err, ErrEmptyDataset)
		assert.Equal(t, 2, report.Dropped)
	})

	t.Run("Accounting", func(t *testing.T) {
		var rows []Record
		for i := 0; i < 100; i++ {
			rows = append(rows, Record{ID: fmt.Sprintf("r%d", i), Vector: []float32{float32(i), 1}})
		}
		rows[10].ID = ""
		rows[20].Vector = nil

		_, report, err := Sanitize(rows)
		require.NoError(t, err)
		assert.Equal(t, len(rows), report.Kept+report.Dropped)
	})
}

func TestStore(t *testing.T) {
	store := NewStore(2)
	idx := store.Add(Record{ID: "x", Vector: []float32{1, 2}})
	store.Add(Record{ID: "y", Vector: []float32{3, 4}})

	assert.Equal(t, uint32(0), idx)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, []string{"x", "y"}, store.IDs())
	assert.Equal(t, []float32{1, 2, 3, 4}, store.Flatten())

	got, ok := store.Lookup("y")
	require.True(t, ok)
	assert.Equal(t, uint32(1), got)
	assert.Equal(t, "y", store.At(got).ID)

	_, ok = store.Lookup("z")
	assert.False(t, ok)
}
