package memutils

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Statistics is the cheap summary kept for a block, a memory type or a heap
type Statistics struct {
	BlockCount      int
	AllocationCount int
	BlockBytes      int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	*s = Statistics{}
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.AllocationCount += other.AllocationCount
	s.BlockBytes += other.BlockBytes
	s.AllocationBytes += other.AllocationBytes
}

// UnusedBytes is the number of block bytes not covered by an allocation
func (s *Statistics) UnusedBytes() int {
	return s.BlockBytes - s.AllocationBytes
}

func (s *Statistics) PrintJson(json *jwriter.ObjectState) {
	json.Name("BlockCount").Int(s.BlockCount)
	json.Name("BlockBytes").Int(s.BlockBytes)
	json.Name("AllocationCount").Int(s.AllocationCount)
	json.Name("AllocationBytes").Int(s.AllocationBytes)
}

// DetailedStatistics extends Statistics with range size extremes, which cost a full walk of the
// block metadata to collect
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	UnusedRangeBytes   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.UnusedRangeBytes = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++
	s.UnusedRangeBytes += size

	s.UnusedRangeSizeMin = Min(s.UnusedRangeSizeMin, size)
	s.UnusedRangeSizeMax = Max(s.UnusedRangeSizeMax, size)
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	s.AllocationSizeMin = Min(s.AllocationSizeMin, size)
	s.AllocationSizeMax = Max(s.AllocationSizeMax, size)
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount
	s.UnusedRangeBytes += other.UnusedRangeBytes

	s.UnusedRangeSizeMin = Min(s.UnusedRangeSizeMin, other.UnusedRangeSizeMin)
	s.UnusedRangeSizeMax = Max(s.UnusedRangeSizeMax, other.UnusedRangeSizeMax)
	s.AllocationSizeMin = Min(s.AllocationSizeMin, other.AllocationSizeMin)
	s.AllocationSizeMax = Max(s.AllocationSizeMax, other.AllocationSizeMax)
}

// Fragmentation is 1 - (largest unused range / total unused bytes), in [0,1]. A single unused
// range, or none at all, is 0.
func (s *DetailedStatistics) Fragmentation() float64 {
	if s.UnusedRangeBytes == 0 || s.UnusedRangeCount == 0 {
		return 0
	}

	return 1 - float64(s.UnusedRangeSizeMax)/float64(s.UnusedRangeBytes)
}

func (s *DetailedStatistics) PrintJson(json *jwriter.ObjectState) {
	s.Statistics.PrintJson(json)
	json.Name("UnusedRangeCount").Int(s.UnusedRangeCount)

	if s.AllocationCount > 1 {
		json.Name("AllocationSizeMin").Int(s.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(s.AllocationSizeMax)
	}
	if s.UnusedRangeCount > 1 {
		json.Name("UnusedRangeSizeMin").Int(s.UnusedRangeSizeMin)
		json.Name("UnusedRangeSizeMax").Int(s.UnusedRangeSizeMax)
	}
	json.Name("Fragmentation").Float64(s.Fragmentation())
}
