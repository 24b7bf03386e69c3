package index

import (
	"path/filepath"
	"testing"

	"contentvault/pkg/core"
	"contentvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Persistence_RoundTrip(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "changes.json")

	idx1, err := NewIndex(indexPath)
	require.NoError(t, err)

	idx1.Track("data/model.bin", core.ChangeAdd, "")
	idx1.Track("readme.md", core.ChangeEdit, "id-abc")
	require.NoError(t, idx1.Save())

	// 重新加载 (模拟第二次运行程序)
	idx2, err := NewIndex(indexPath)
	require.NoError(t, err)
	assert.Equal(t, 2, len(idx2.Entries))

	entry, exists := idx2.Get("readme.md")
	require.True(t, exists)
	assert.Equal(t, core.ChangeEdit, entry.Type)
	assert.Equal(t, "id-abc", entry.Previous)
	assert.False(t, entry.ModifiedAt.IsZero())
}

func TestIndex_TrackMerging(t *testing.T) {
	tests := []struct {
		name   string
		first  core.ChangeType
		second core.ChangeType
		want   core.ChangeType // 空表示记录消失
	}{
		{"AddThenEdit", core.ChangeAdd, core.ChangeEdit, core.ChangeAdd},
		{"AddThenDelete", core.ChangeAdd, core.ChangeDelete, ""},
		{"DeleteThenAdd", core.ChangeDelete, core.ChangeAdd, core.ChangeEdit},
		{"EditThenDelete", core.ChangeEdit, core.ChangeDelete, core.ChangeDelete},
		{"EditThenEdit", core.ChangeEdit, core.ChangeEdit, core.ChangeEdit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := NewIndex(filepath.Join(t.TempDir(), "changes.json"))
			require.NoError(t, err)
			p := types.NewCanonicalPath("f.txt")

			idx.Track(p, tt.first, "prev")
			idx.Track(p, tt.second, "other")

			e, ok := idx.Get(p)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, e.Type)
			assert.Equal(t, "prev", e.Previous, "first recorded previous content wins")
		})
	}
}

func TestIndex_Concurrency(t *testing.T) {
	idx, err := NewIndex(filepath.Join(t.TempDir(), "changes.json"))
	require.NoError(t, err)

	done := make(chan bool)
	for range 10 {
		go func() {
			idx.Track("file", core.ChangeEdit, "h") // 反复写同一个 key
			done <- true
		}()
	}
	for range 10 {
		<-done
	}
	assert.Equal(t, 1, len(idx.Snapshot()))
}

func TestIndex_Lifecycle(t *testing.T) {
	idx, err := NewIndex(filepath.Join(t.TempDir(), "changes.json"))
	require.NoError(t, err)

	assert.True(t, idx.IsEmpty())
	idx.Track("src/main.go", core.ChangeAdd, "")
	assert.False(t, idx.IsEmpty())

	idx.Remove("src/main.go")
	_, exists := idx.Get("src/main.go")
	assert.False(t, exists, "Entry should be removed")
	idx.Remove("ghost.file") // Should not panic

	idx.Track("b", core.ChangeEdit, "h2")
	idx.Track("a", core.ChangeAdd, "")
	sorted := idx.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, types.CanonicalPath("a"), sorted[0].Path)

	idx.Reset()
	assert.True(t, idx.IsEmpty(), "Index should be empty after Reset")
}
