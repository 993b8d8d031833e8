package vam

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newGranularity(granularity uint, size int) *blockBufferImageGranularity {
	g := &blockBufferImageGranularity{}
	g.Init(granularity, size)
	return g
}

func TestGranularityInit(t *testing.T) {
	require.Len(t, newGranularity(1024, 4096).pages, 4)
	require.Len(t, newGranularity(1024, 4097).pages, 5)
	require.Nil(t, newGranularity(128, 1024).pages)
}

var conflictTestCases = map[string]struct {
	first    suballocationType
	second   suballocationType
	conflict bool
}{
	"Frees Dont Conflict":                       {suballocationFree, suballocationFree, false},
	"Unknowns Conflict":                         {suballocationUnknown, suballocationUnknown, true},
	"Free Doesnt Conflict With Unknown":         {suballocationUnknown, suballocationFree, false},
	"Buffer Doesnt Conflict With Linear Image":  {suballocationBuffer, suballocationImageLinear, false},
	"Buffer Conflicts With Unknown Image":       {suballocationImageUnknown, suballocationBuffer, true},
	"Unknown Image Conflicts With Optimal":      {suballocationImageOptimal, suballocationImageUnknown, true},
	"Free Doesnt Conflict With Buffer":          {suballocationBuffer, suballocationFree, false},
	"Linear Image Conflicts With Optimal Image": {suballocationImageOptimal, suballocationImageLinear, true},
	"Optimal Images Dont Conflict":              {suballocationImageOptimal, suballocationImageOptimal, false},
}

func TestGranularityConflict(t *testing.T) {
	for testName, testCase := range conflictTestCases {
		t.Run(testName, func(t *testing.T) {
			var granularity blockBufferImageGranularity
			require.Equal(t, testCase.conflict, granularity.AllocationsConflict(uint32(testCase.first), uint32(testCase.second)))
		})
	}
}

var roundUpTestCases = map[string]struct {
	granularity     uint
	allocType       suballocationType
	outputAlignment uint
	outputSize      int
}{
	"Optimal Image Rounded":         {128, suballocationImageOptimal, 128, 256},
	"Zero Granularity Untouched":    {0, suballocationImageOptimal, 8, 130},
	"Tracked Granularity Untouched": {512, suballocationImageOptimal, 8, 130},
	"Buffer Untouched":              {128, suballocationBuffer, 8, 130},
	"Unknown Rounded":               {64, suballocationUnknown, 64, 192},
}

func TestGranularityRoundUp(t *testing.T) {
	for testName, testCase := range roundUpTestCases {
		t.Run(testName, func(t *testing.T) {
			var granularity blockBufferImageGranularity
			granularity.bufferImageGranularity = testCase.granularity

			size, alignment := granularity.RoundUpAllocRequest(uint32(testCase.allocType), 130, 8)
			require.Equal(t, testCase.outputSize, size)
			require.Equal(t, testCase.outputAlignment, alignment)
		})
	}
}

func TestGranularityPageCounts(t *testing.T) {
	granularity := newGranularity(1024, 4096)

	granularity.AllocPages(uint32(suballocationBuffer), 0, 256)
	granularity.AllocPages(uint32(suballocationBuffer), 512, 1024)

	require.Equal(t, pageInfo{allocType: suballocationBuffer, allocCount: 2}, granularity.pages[0])
	require.Equal(t, pageInfo{allocType: suballocationBuffer, allocCount: 1}, granularity.pages[1])
	require.Equal(t, pageInfo{}, granularity.pages[2])

	granularity.FreePages(0, 256)
	require.Equal(t, pageInfo{allocType: suballocationBuffer, allocCount: 1}, granularity.pages[0])

	granularity.FreePages(512, 1024)
	require.Equal(t, pageInfo{}, granularity.pages[0])
	require.Equal(t, pageInfo{}, granularity.pages[1])
}

type placedAlloc struct {
	allocType suballocationType
	offset    int
	size      int
}

var checkAndAlignTestCases = map[string]struct {
	placed       []placedAlloc
	allocType    suballocationType
	allocOffset  int
	allocSize    int
	regionOffset int
	regionSize   int
	outputOffset int
	conflict     bool
}{
	"Empty Block": {
		allocType: suballocationBuffer, allocOffset: 0, allocSize: 100,
		regionOffset: 0, regionSize: 100, outputOffset: 0,
	},
	"Conflict On Shared Page": {
		placed:    []placedAlloc{{suballocationImageUnknown, 100, 100}},
		allocType: suballocationBuffer, allocOffset: 0, allocSize: 100,
		regionOffset: 0, regionSize: 100, conflict: true,
	},
	"Nudged To Next Page": {
		placed:    []placedAlloc{{suballocationImageUnknown, 0, 100}},
		allocType: suballocationBuffer, allocOffset: 100, allocSize: 100,
		regionOffset: 100, regionSize: 2000, outputOffset: 1024,
	},
	"Nudge Overflows Region": {
		placed:    []placedAlloc{{suballocationImageUnknown, 0, 100}},
		allocType: suballocationBuffer, allocOffset: 100, allocSize: 100,
		regionOffset: 100, regionSize: 100, conflict: true,
	},
	"Nudged Into Conflicting End Page": {
		placed: []placedAlloc{
			{suballocationImageUnknown, 0, 100},
			{suballocationImageOptimal, 2048, 100},
		},
		allocType: suballocationBuffer, allocOffset: 100, allocSize: 1500,
		regionOffset: 100, regionSize: 3000, conflict: true,
	},
	"Buffer And Linear Share A Page": {
		placed:    []placedAlloc{{suballocationImageLinear, 500, 100}},
		allocType: suballocationBuffer, allocOffset: 0, allocSize: 100,
		regionOffset: 0, regionSize: 500, outputOffset: 0,
	},
	"Optimal Moves Off Linear Page": {
		placed:    []placedAlloc{{suballocationImageLinear, 0, 100}},
		allocType: suballocationImageOptimal, allocOffset: 100, allocSize: 100,
		regionOffset: 100, regionSize: 3900, outputOffset: 1024,
	},
}

func TestGranularityCheckAndAlign(t *testing.T) {
	for testName, testCase := range checkAndAlignTestCases {
		t.Run(testName, func(t *testing.T) {
			granularity := newGranularity(1024, 4096)
			for _, alloc := range testCase.placed {
				granularity.AllocPages(uint32(alloc.allocType), alloc.offset, alloc.size)
			}

			offset, conflict := granularity.CheckConflictAndAlignUp(testCase.allocOffset, testCase.allocSize, testCase.regionOffset, testCase.regionSize, uint32(testCase.allocType))
			require.Equal(t, testCase.conflict, conflict)
			if !conflict {
				require.Equal(t, testCase.outputOffset, offset)
			}
		})
	}
}

func TestGranularityValidation(t *testing.T) {
	granularity := newGranularity(1024, 4096)

	granularity.AllocPages(uint32(suballocationBuffer), 0, 100)
	granularity.AllocPages(uint32(suballocationImageLinear), 500, 100)
	granularity.AllocPages(uint32(suballocationImageOptimal), 1024, 500)
	granularity.AllocPages(uint32(suballocationUnknown), 2048, 100)

	ctx := granularity.StartValidation()
	require.NoError(t, granularity.Validate(ctx, 0, 100))
	require.NoError(t, granularity.Validate(ctx, 500, 100))
	require.NoError(t, granularity.Validate(ctx, 1024, 500))
	require.NoError(t, granularity.Validate(ctx, 2048, 100))
	require.NoError(t, granularity.FinishValidation(ctx))

	ctx = granularity.StartValidation()
	require.NoError(t, granularity.Validate(ctx, 0, 100))
	require.Error(t, granularity.FinishValidation(ctx))

	ctx = granularity.StartValidation()
	require.Error(t, granularity.Validate(ctx, 3072, 100))
}
