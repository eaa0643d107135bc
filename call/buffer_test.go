package call

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(s string) Candidate { return Candidate{Candidate: s} }

// TestBufferDrainPreservesOrder — [c1, c2, c3] sırasıyla enqueue edilen
// candidate'lar aynı sırayla apply edilir.
func TestBufferDrainPreservesOrder(t *testing.T) {
	b := NewCandidateBuffer()
	b.Enqueue(cand("c1"))
	b.Enqueue(cand("c2"))
	b.Enqueue(cand("c3"))
	require.Equal(t, 3, b.Len())

	var applied []string
	failed := b.Drain(func(c Candidate) error {
		applied = append(applied, c.Candidate)
		return nil
	})

	assert.Equal(t, []string{"c1", "c2", "c3"}, applied)
	assert.Zero(t, failed)
	assert.Zero(t, b.Len(), "drain must clear the buffer")
}

// TestBufferDrainContinuesPastFailures — tek bir apply hatası drain'i
// durdurmaz; buffer yine de koşulsuz temizlenir.
func TestBufferDrainContinuesPastFailures(t *testing.T) {
	b := NewCandidateBuffer()
	b.Enqueue(cand("c1"))
	b.Enqueue(cand("bad"))
	b.Enqueue(cand("c3"))

	var applied []string
	failed := b.Drain(func(c Candidate) error {
		if c.Candidate == "bad" {
			return errors.New("apply failed")
		}
		applied = append(applied, c.Candidate)
		return nil
	})

	assert.Equal(t, []string{"c1", "c3"}, applied)
	assert.Equal(t, 1, failed)
	assert.Zero(t, b.Len(), "buffer must be cleared even on failures")
}

// TestBufferClear — Clear, bekleyenleri uygulamadan atar.
func TestBufferClear(t *testing.T) {
	b := NewCandidateBuffer()
	b.Enqueue(cand("c1"))
	b.Clear()

	assert.Zero(t, b.Len())
	failed := b.Drain(func(Candidate) error {
		t.Fatal("cleared buffer must not apply anything")
		return nil
	})
	assert.Zero(t, failed)
}
