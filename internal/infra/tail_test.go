package infra

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBuffer_KeepsLastLines(t *testing.T) {
	tail := NewTailBuffer(3)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(tail, "line %d\n", i)
	}

	assert.Equal(t, "line 3\nline 4\nline 5", tail.String())
}

func TestTailBuffer_SplitWritesAndCarriageReturns(t *testing.T) {
	tail := NewTailBuffer(10)
	_, _ = tail.Write([]byte("frame=  10\rframe=  20\r"))
	_, _ = tail.Write([]byte("Connection ref"))
	_, _ = tail.Write([]byte("used\n\n"))
	_, _ = tail.Write([]byte("exiting"))

	assert.Equal(t, "frame=  10\nframe=  20\nConnection refused\nexiting", tail.String())
}

func TestTailBuffer_PartialLineRespectsLimit(t *testing.T) {
	tail := NewTailBuffer(2)
	_, _ = tail.Write([]byte("a\nb\nc"))

	assert.Equal(t, "b\nc", tail.String())
}

func TestTailBuffer_Empty(t *testing.T) {
	assert.Equal(t, "", NewTailBuffer(0).String())
}
