package util

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewULID_Sortable(t *testing.T) {
	a := NewULID()
	b := NewULID()
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

type failingCloser struct{ closed bool }

func (f *failingCloser) Close() error {
	f.closed = true
	return fmt.Errorf("close failed")
}

func TestCloseResource(t *testing.T) {
	c := &failingCloser{}
	CloseResource("thing", c)
	assert.True(t, c.closed)
}
