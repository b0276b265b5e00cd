package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSizeClasses(t *testing.T) {
	p := New()

	tests := []struct {
		size    int
		wantCap int
	}{
		{1, SmallSize},
		{SmallSize, SmallSize},
		{SmallSize + 1, MediumSize},
		{MediumSize, MediumSize},
		{MediumSize + 1, MediumSize + 1},
	}

	for _, tt := range tests {
		buf := p.Get(tt.size)
		assert.Len(t, buf, tt.size)
		assert.Equal(t, tt.wantCap, cap(buf))
		p.Put(buf)
	}
}

func TestPutIgnoresForeignBuffers(t *testing.T) {
	p := New()
	assert.NotPanics(t, func() {
		p.Put(make([]byte, 10))
		p.Put(nil)
	})

	buf := p.Get(100)
	p.Put(buf)
	again := p.Get(SmallSize)
	assert.Len(t, again, SmallSize)
}
