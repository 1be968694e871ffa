package merge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lightrag-go/lightrag/internal/merge"
)

func TestApplyLimit_NoTruncation(t *testing.T) {
	t.Parallel()

	list := []string{"c1", "c2", "c3"}

	kept, marker := merge.ApplyLimit(list, 3, merge.MethodFIFO)
	assert.Equal(t, list, kept)
	assert.Empty(t, marker)

	kept, marker = merge.ApplyLimit(list, 0, merge.MethodFIFO)
	assert.Equal(t, list, kept)
	assert.Empty(t, marker)
}

func TestApplyLimit_FIFOKeepsNewest(t *testing.T) {
	t.Parallel()

	list := []string{"c1", "c2", "c3", "c4", "c5"}

	kept, marker := merge.ApplyLimit(list, 3, merge.MethodFIFO)
	assert.Equal(t, []string{"c3", "c4", "c5"}, kept)
	assert.Equal(t, "FIFO 3/5", marker)
}

func TestApplyLimit_KEEPKeepsOldest(t *testing.T) {
	t.Parallel()

	list := []string{"c1", "c2", "c3", "c4", "c5"}

	kept, marker := merge.ApplyLimit(list, 2, merge.MethodKEEP)
	assert.Equal(t, []string{"c1", "c2"}, kept)
	assert.Equal(t, "KEEP Old", marker)
}

func TestTruncatedPathMarker(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "...truncated...(FIFO)", merge.TruncatedPathMarker(merge.MethodFIFO))
	assert.Equal(t, "...truncated...(KEEP Old)", merge.TruncatedPathMarker(merge.MethodKEEP))
}
