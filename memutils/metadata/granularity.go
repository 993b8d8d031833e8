package metadata

// GranularityCheck lets a consumer keep allocations of conflicting types off the same page. On
// drivers, linear and non-linear resources must not share a bufferImageGranularity-sized page;
// the consumer decides what conflicts, the metadata only asks.
type GranularityCheck interface {
	AllocPages(allocType uint32, offset, size int)
	FreePages(offset, size int)
	Clear()
	// CheckConflictAndAlignUp returns the offset, possibly moved up, at which an allocation of
	// allocType can be placed within the region [regionOffset, regionOffset+regionSize). It
	// returns true if no offset in the region avoids a conflict.
	CheckConflictAndAlignUp(allocOffset, allocSize, regionOffset, regionSize int, allocType uint32) (int, bool)
	RoundUpAllocRequest(allocType uint32, allocSize int, allocAlignment uint) (int, uint)
	AllocationsConflict(firstAllocType uint32, secondAllocType uint32) bool

	StartValidation() any
	Validate(ctx any, offset, size int) error
	FinishValidation(ctx any) error
}

// NoGranularity is a GranularityCheck for consumers with no granularity requirements
type NoGranularity struct{}

func (NoGranularity) AllocPages(allocType uint32, offset, size int) {}
func (NoGranularity) FreePages(offset, size int)                    {}
func (NoGranularity) Clear()                                        {}
func (NoGranularity) CheckConflictAndAlignUp(allocOffset, allocSize, regionOffset, regionSize int, allocType uint32) (int, bool) {
	return allocOffset, false
}
func (NoGranularity) RoundUpAllocRequest(allocType uint32, allocSize int, allocAlignment uint) (int, uint) {
	return allocSize, allocAlignment
}
func (NoGranularity) AllocationsConflict(firstAllocType uint32, secondAllocType uint32) bool {
	return false
}
func (NoGranularity) StartValidation() any                     { return nil }
func (NoGranularity) Validate(ctx any, offset, size int) error { return nil }
func (NoGranularity) FinishValidation(ctx any) error           { return nil }
