package testutil

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestStripCHM(t *testing.T) {
	t.Parallel()

	r := StripCHM(10, 8, 0.5, 3, 5)
	assert.Equal(t, 80, r.ValidCount())
	v, _ := r.At(3, 0)
	assert.Equal(t, OpenHeight, v)
	v, _ = r.At(5, 0)
	assert.Equal(t, CanopyHeight, v)
	assert.InDelta(t, 2.25, RowY(r, 3), 1e-12)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestAssertNoError_FailurePath(t *testing.T) {
	t.Parallel()

	fakeT := &testing.T{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		AssertNoError(fakeT, errors.New("boom"))
	}()
	<-done
	if !fakeT.Failed() {
		t.Error("expected failure for non-nil error")
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()
	AssertError(t, errors.New("expected"))
}

func TestAssertPointNear(t *testing.T) {
	t.Parallel()
	AssertPointNear(t, orb.Point{1, 1}, orb.Point{1.05, 1}, 0.1)

	fakeT := &testing.T{}
	AssertPointNear(fakeT, orb.Point{0, 0}, orb.Point{1, 0}, 0.1)
	assert.True(t, fakeT.Failed())
}
