package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) Dimensions() int   { return 2 }
func (m *MockEmbedder) ModelName() string { return "mini" }

func TestWrapLRU_Disabled(t *testing.T) {
	next := new(MockEmbedder)

	assert.Same(t, next, WrapLRU(next, 0, time.Minute, nil))
	assert.Same(t, next, WrapLRU(next, 10, 0, nil))
}

func TestLRU_OnlyMissesReachClient(t *testing.T) {
	next := new(MockEmbedder)
	cached := WrapLRU(next, 16, time.Minute, nil)
	ctx := context.Background()

	next.On("Embed", ctx, []string{"a"}).Return([][]float32{{1, 0}}, nil).Once()
	next.On("Embed", ctx, []string{"b"}).Return([][]float32{{0, 1}}, nil).Once()

	first, err := cached.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}}, first)

	second, err := cached.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, second)

	third, err := cached.Embed(ctx, []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 0}}, third)

	next.AssertExpectations(t)
	assert.Equal(t, 2, cached.Dimensions())
	assert.Equal(t, "mini", cached.ModelName())
}

func TestLRU_ReturnsCopies(t *testing.T) {
	next := new(MockEmbedder)
	cached := WrapLRU(next, 4, time.Minute, nil)
	ctx := context.Background()

	next.On("Embed", ctx, []string{"q"}).Return([][]float32{{0.5, 0.5}}, nil).Once()

	v1, err := cached.Embed(ctx, []string{"q"})
	require.NoError(t, err)
	v1[0][0] = 99

	v2, err := cached.Embed(ctx, []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), v2[0][0])
}

func TestLRU_ErrorsAreNotCached(t *testing.T) {
	next := new(MockEmbedder)
	cached := WrapLRU(next, 4, time.Minute, nil)
	ctx := context.Background()

	next.On("Embed", ctx, []string{"q"}).Return(nil, errors.New("down")).Once()
	next.On("Embed", ctx, []string{"q"}).Return([][]float32{{1, 1}}, nil).Once()

	_, err := cached.Embed(ctx, []string{"q"})
	assert.Error(t, err)

	v, err := cached.Embed(ctx, []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}}, v)
}
