package diskgeom

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireFullTable checks that parts is sorted, non-overlapping and covers
// exactly [0, total-1].
func requireFullTable(t *testing.T, parts []Partition, total uint64) {
	t.Helper()

	require.NotEmpty(t, parts)
	assert.Equal(t, uint64(0), parts[0].StartSector)
	assert.Equal(t, total-1, parts[len(parts)-1].EndSector)

	for i, p := range parts {
		require.LessOrEqual(t, p.StartSector, p.EndSector, "partition %d", i)
		if i > 0 {
			require.Equal(t, parts[i-1].EndSector+1, p.StartSector, "partition %d does not follow %d", i, i-1)
		}
	}
}

func TestNormalizeExample(t *testing.T) {
	total := uint64(1048576 / 512)
	require.Equal(t, uint64(2048), total)

	parts := Normalize([]Extent{{Start: 100, End: 199}}, total)

	assert.Equal(t, []Partition{
		{StartSector: 0, EndSector: 99, Unallocated: true},
		{StartSector: 100, EndSector: 199},
		{StartSector: 200, EndSector: 2047, Unallocated: true},
	}, parts)
}

func TestNormalizeEmpty(t *testing.T) {
	parts := Normalize(nil, 4096)

	assert.Equal(t, []Partition{{StartSector: 0, EndSector: 4095, Unallocated: true}}, parts)
}

func TestNormalizeFullyCovered(t *testing.T) {
	raw := []Extent{
		{Start: 1024, End: 2047, Label: "b"},
		{Start: 0, End: 1023, Label: "a"},
	}

	parts := Normalize(raw, 2048)

	assert.Equal(t, []Partition{
		{StartSector: 0, EndSector: 1023, Label: "a"},
		{StartSector: 1024, EndSector: 2047, Label: "b"},
	}, parts)
}

func TestNormalizeUnsortedWithGaps(t *testing.T) {
	raw := []Extent{
		{Start: 3000, End: 3999},
		{Start: 2048, End: 2999},
		{Start: 10, End: 19},
	}

	parts := Normalize(raw, 8192)

	requireFullTable(t, parts, 8192)
	assert.Equal(t, []Partition{
		{StartSector: 0, EndSector: 9, Unallocated: true},
		{StartSector: 10, EndSector: 19},
		{StartSector: 20, EndSector: 2047, Unallocated: true},
		{StartSector: 2048, EndSector: 2999},
		{StartSector: 3000, EndSector: 3999},
		{StartSector: 4000, EndSector: 8191, Unallocated: true},
	}, parts)
}

func TestNormalizeSingleSectorGaps(t *testing.T) {
	parts := Normalize([]Extent{{Start: 1, End: 1}, {Start: 3, End: 3}}, 5)

	assert.Equal(t, []Partition{
		{StartSector: 0, EndSector: 0, Unallocated: true},
		{StartSector: 1, EndSector: 1},
		{StartSector: 2, EndSector: 2, Unallocated: true},
		{StartSector: 3, EndSector: 3},
		{StartSector: 4, EndSector: 4, Unallocated: true},
	}, parts)
}

func TestNormalizeZeroSectors(t *testing.T) {
	assert.Empty(t, Normalize(nil, 0))
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	raw := []Extent{{Start: 50, End: 59}, {Start: 10, End: 19}}

	Normalize(raw, 100)

	assert.Equal(t, []Extent{{Start: 50, End: 59}, {Start: 10, End: 19}}, raw)
}

func TestNormalizeRandomLayouts(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for iter := 0; iter < 200; iter++ {
		total := uint64(rng.Intn(10000) + 1)

		var raw []Extent
		next := uint64(0)
		for next < total {
			start := next + uint64(rng.Intn(50))
			if start >= total {
				break
			}
			end := start + uint64(rng.Intn(200))
			if end >= total {
				end = total - 1
			}
			raw = append(raw, Extent{Start: start, End: end})
			next = end + 1
		}
		rng.Shuffle(len(raw), func(i, j int) { raw[i], raw[j] = raw[j], raw[i] })

		parts := Normalize(raw, total)

		requireFullTable(t, parts, total)

		allocated := 0
		for i, p := range parts {
			if !p.Unallocated {
				allocated++
			}
			if i > 0 && p.Unallocated {
				assert.False(t, parts[i-1].Unallocated, "two adjacent unallocated partitions at %d", i)
			}
		}
		assert.Equal(t, len(raw), allocated)
	}
}

func TestPartitionHelpers(t *testing.T) {
	p := Partition{StartSector: 200, EndSector: 2047, Unallocated: true}

	assert.Equal(t, uint64(1848), p.Sectors())
	assert.True(t, p.Contains(200))
	assert.True(t, p.Contains(2047))
	assert.False(t, p.Contains(199))
	assert.False(t, p.Contains(2048))
	assert.Equal(t, "[200 … 2047] unallocated", p.String())
}
