package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqs(entries []ReplayEntry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Seq
	}
	return out
}

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	assert.Equal(t, []int64{3, 4, 5, 6, 7}, seqs(rb.Range(3, 7)))
	assert.Empty(t, rb.Range(7, 3))
	assert.Empty(t, rb.Range(11, 20))
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	require.Equal(t, 5, rb.Len())
	assert.Equal(t, []int64{4, 5, 6, 7, 8}, seqs(rb.Since(0)))
	assert.Equal(t, []int64{6, 7}, seqs(rb.Range(6, 7)))

	oldest, ok := rb.Oldest()
	require.True(t, ok)
	assert.Equal(t, int64(4), oldest)
}

func TestReplayBuffer_SparseSeqs(t *testing.T) {
	// Sequences are shared across channels, so a buffer may see gaps.
	rb := NewReplayBuffer(4)
	for _, s := range []int64{2, 5, 9, 14, 20} {
		rb.Push(s, nil)
	}
	assert.Equal(t, []int64{9, 14}, seqs(rb.Range(6, 19)))
	assert.Equal(t, []int64{20}, seqs(rb.Since(14)))
}

func TestReplayBuffer_PushCopies(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'

	assert.Equal(t, "abc", string(rb.Since(0)[0].Data))
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	assert.Empty(t, rb.Range(1, 100))
	_, ok := rb.Oldest()
	assert.False(t, ok)
}
