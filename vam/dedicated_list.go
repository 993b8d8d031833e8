package vam

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/vam/internal/utils"
)

// dedicatedAllocationList is an intrusive doubly linked list of the dedicated allocations of one
// memory type
type dedicatedAllocationList struct {
	mutex utils.Lock

	count int
	head  *Allocation
	tail  *Allocation
}

func (l *dedicatedAllocationList) Init(useMutex bool) {
	l.mutex.Synchronize(useMutex)
}

func (l *dedicatedAllocationList) Validate() error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	actualCount := 0
	var prev *Allocation
	for alloc := l.head; alloc != nil; alloc = alloc.dedicatedData.next {
		if alloc.dedicatedData.prev != prev {
			return errors.Errorf("dedicated allocation %d in the list has a broken back link", actualCount)
		}
		prev = alloc
		actualCount++
	}

	if prev != l.tail {
		return errors.New("the dedicated allocation list's tail is not its last element")
	}
	if l.count != actualCount {
		return errors.Errorf("the listed number of dedicated allocations in the list (%d) does not match the actual number of allocations (%d)", l.count, actualCount)
	}

	return nil
}

func (l *dedicatedAllocationList) AddStatistics(stats *memutils.Statistics) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for alloc := l.head; alloc != nil; alloc = alloc.dedicatedData.next {
		stats.BlockCount++
		stats.BlockBytes += alloc.size
		stats.AllocationCount++
		stats.AllocationBytes += alloc.size
	}
}

func (l *dedicatedAllocationList) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for alloc := l.head; alloc != nil; alloc = alloc.dedicatedData.next {
		stats.Statistics.BlockCount++
		stats.Statistics.BlockBytes += alloc.size
		stats.AddAllocation(alloc.size)
	}
}

func (l *dedicatedAllocationList) BuildStatsString(json *jwriter.ArrayState) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for alloc := l.head; alloc != nil; alloc = alloc.dedicatedData.next {
		obj := json.Object()
		alloc.printParameters(&obj)
		obj.End()
	}
}

func (l *dedicatedAllocationList) IsEmpty() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.count == 0
}

func (l *dedicatedAllocationList) Register(alloc *Allocation) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	alloc.dedicatedData.prev = l.tail
	alloc.dedicatedData.next = nil
	if l.tail != nil {
		l.tail.dedicatedData.next = alloc
	} else {
		l.head = alloc
	}
	l.tail = alloc
	l.count++
}

func (l *dedicatedAllocationList) Unregister(alloc *Allocation) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	prev := alloc.dedicatedData.prev
	next := alloc.dedicatedData.next

	if prev != nil {
		prev.dedicatedData.next = next
	} else {
		l.head = next
	}

	if next != nil {
		next.dedicatedData.prev = prev
	} else {
		l.tail = prev
	}

	alloc.dedicatedData.next = nil
	alloc.dedicatedData.prev = nil
	l.count--
}

// visit calls fn for every dedicated allocation; fn must not register or unregister
func (l *dedicatedAllocationList) visit(fn func(alloc *Allocation)) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for alloc := l.head; alloc != nil; alloc = alloc.dedicatedData.next {
		fn(alloc)
	}
}
