package vam

import (
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/core/v2/common"
)

// Budget is the usage and budget of one memory heap
type Budget struct {
	// Statistics counts what this allocator holds in the heap
	Statistics memutils.Statistics
	// Usage is the number of bytes in use in the heap by every process, as far as the driver
	// knows. Without the memory budget extension it is the block bytes of this allocator.
	Usage int
	// Budget is the number of bytes the heap can be expected to hold before allocations fail or
	// performance degrades
	Budget int
}

// AllocatorStatistics is a detailed snapshot of everything the allocator holds, per memory
// type, per heap and in total
type AllocatorStatistics struct {
	MemoryTypes [common.MaxMemoryTypes]memutils.DetailedStatistics
	MemoryHeaps [common.MaxMemoryHeaps]memutils.DetailedStatistics
	Total       memutils.DetailedStatistics
}

func (s *AllocatorStatistics) clear() {
	for index := range s.MemoryTypes {
		s.MemoryTypes[index].Clear()
	}
	for index := range s.MemoryHeaps {
		s.MemoryHeaps[index].Clear()
	}
	s.Total.Clear()
}

// CalculateStatistics walks every block and dedicated allocation. It is slow and is meant for
// debugging and tooling, not for the frame loop.
func (a *Allocator) CalculateStatistics(stats *AllocatorStatistics) {
	a.debugLog("Allocator::CalculateStatistics")

	stats.clear()

	_ = a.visitBlockLists(a.globalMemoryTypeBits, func(list *memoryBlockList) error {
		list.AddDetailedStatistics(&stats.MemoryTypes[list.memoryTypeIndex])
		return nil
	})

	typeCount := a.deviceMemory.MemoryTypeCount()
	for memoryTypeIndex := 0; memoryTypeIndex < typeCount; memoryTypeIndex++ {
		if dedicated := a.dedicatedAllocations[memoryTypeIndex]; dedicated != nil {
			dedicated.AddDetailedStatistics(&stats.MemoryTypes[memoryTypeIndex])
		}

		heapIndex := a.deviceMemory.MemoryTypeIndexToHeapIndex(memoryTypeIndex)
		stats.MemoryHeaps[heapIndex].AddDetailedStatistics(&stats.MemoryTypes[memoryTypeIndex])
	}

	for heapIndex := 0; heapIndex < a.deviceMemory.MemoryHeapCount(); heapIndex++ {
		stats.Total.AddDetailedStatistics(&stats.MemoryHeaps[heapIndex])
	}
}

// BuildStatsString renders the allocator's state as JSON: the budget and statistics of every
// heap and memory type and, if detailed is true, a map of every block and dedicated allocation.
func (a *Allocator) BuildStatsString(detailed bool) (string, error) {
	a.debugLog("Allocator::BuildStatsString")

	var stats AllocatorStatistics
	a.CalculateStatistics(&stats)
	budgets := a.Budget()

	writer := jwriter.NewWriter()
	root := writer.Object()

	{
		general := root.Name("General").Object()
		limits := a.deviceMemory.Limits()
		general.Name("API").String("Vulkan")
		general.Name("DeviceName").String(a.device.PhysicalDevice().DeviceName)
		general.Name("BufferImageGranularity").Int(limits.BufferImageGranularity)
		general.Name("NonCoherentAtomSize").Int(limits.NonCoherentAtomSize)
		general.Name("MemoryHeapCount").Int(a.deviceMemory.MemoryHeapCount())
		general.Name("MemoryTypeCount").Int(a.deviceMemory.MemoryTypeCount())
		general.End()
	}

	{
		total := root.Name("Total").Object()
		stats.Total.PrintJson(&total)
		total.End()
	}

	{
		heaps := root.Name("MemoryInfo").Object()
		for heapIndex := 0; heapIndex < a.deviceMemory.MemoryHeapCount(); heapIndex++ {
			heapInfo := a.deviceMemory.MemoryHeapProperties(heapIndex)
			heap := heaps.Name("Heap " + strconv.Itoa(heapIndex)).Object()

			heap.Name("Size").Int(heapInfo.Size)
			heap.Name("Flags").String(heapInfo.Flags.String())

			budget := heap.Name("Budget").Object()
			budget.Name("BudgetBytes").Int(budgets[heapIndex].Budget)
			budget.Name("UsageBytes").Int(budgets[heapIndex].Usage)
			budget.End()

			heapStats := heap.Name("Stats").Object()
			stats.MemoryHeaps[heapIndex].PrintJson(&heapStats)
			heapStats.End()

			types := heap.Name("MemoryPools").Object()
			for memoryTypeIndex := 0; memoryTypeIndex < a.deviceMemory.MemoryTypeCount(); memoryTypeIndex++ {
				if a.deviceMemory.MemoryTypeIndexToHeapIndex(memoryTypeIndex) != heapIndex {
					continue
				}

				memoryType := types.Name("Type " + strconv.Itoa(memoryTypeIndex)).Object()
				memoryType.Name("Flags").String(a.deviceMemory.MemoryTypeProperties(memoryTypeIndex).PropertyFlags.String())
				typeStats := memoryType.Name("Stats").Object()
				stats.MemoryTypes[memoryTypeIndex].PrintJson(&typeStats)
				typeStats.End()
				memoryType.End()
			}
			types.End()

			heap.End()
		}
		heaps.End()
	}

	if detailed {
		a.printDetailedMap(&root)
	}

	root.End()

	if err := writer.Error(); err != nil {
		return "", err
	}

	return string(writer.Bytes()), nil
}

func (a *Allocator) printDetailedMap(root *jwriter.ObjectState) {
	defaultPools := root.Name("DefaultPools").Object()
	defer defaultPools.End()

	for memoryTypeIndex := 0; memoryTypeIndex < a.deviceMemory.MemoryTypeCount(); memoryTypeIndex++ {
		if a.globalMemoryTypeBits&(1<<memoryTypeIndex) == 0 {
			continue
		}

		memoryType := defaultPools.Name("Type " + strconv.Itoa(memoryTypeIndex)).Object()

		a.blockListsMutex.RLock()
		lists := a.memoryBlockLists[memoryTypeIndex]
		a.blockListsMutex.RUnlock()

		for _, list := range lists {
			listObj := memoryType.Name("Priority " + strconv.FormatFloat(float64(list.priority), 'f', -1, 32)).Object()
			listObj.Name("PreferredBlockSize").Int(list.preferredBlockSize)

			blocks := listObj.Name("Blocks").Object()
			list.PrintDetailedMap(&blocks)
			blocks.End()

			listObj.End()
		}

		dedicated := memoryType.Name("DedicatedAllocations").Array()
		a.dedicatedAllocations[memoryTypeIndex].BuildStatsString(&dedicated)
		dedicated.End()

		memoryType.End()
	}
}
