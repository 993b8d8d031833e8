package metadata

// A granularity check that never reports a conflict
type FakeGranularityCheck struct{}

func (c FakeGranularityCheck) AllocPages(allocType uint32, offset, size int) {}
func (c FakeGranularityCheck) FreePages(offset, size int)                    {}
func (c FakeGranularityCheck) Clear()                                        {}
func (c FakeGranularityCheck) CheckConflictAndAlignUp(allocOffset, allocSize, regionOffset, regionSize int, allocType uint32) (int, bool) {
	return allocOffset, false
}
func (c FakeGranularityCheck) RoundUpAllocRequest(allocType uint32, allocSize int, allocAlignment uint) (int, uint) {
	return allocSize, allocAlignment
}
func (c FakeGranularityCheck) AllocationsConflict(firstAllocType uint32, secondAllocType uint32) bool {
	return false
}
func (c FakeGranularityCheck) StartValidation() any {
	return nil
}
func (c FakeGranularityCheck) Validate(ctx any, offset, size int) error {
	return nil
}
func (c FakeGranularityCheck) FinishValidation(ctx any) error {
	return nil
}

// A granularity check that pushes allocations of type 2 onto a fresh 256-byte page whenever they
// would start on a page already holding type 1
type pageGranularityCheck struct {
	FakeGranularityCheck
	pages map[int]uint32
}

func (c *pageGranularityCheck) AllocPages(allocType uint32, offset, size int) {
	if c.pages == nil {
		c.pages = make(map[int]uint32)
	}
	c.pages[offset/256] = allocType
	c.pages[(offset+size-1)/256] = allocType
}

func (c *pageGranularityCheck) FreePages(offset, size int) {
	delete(c.pages, offset/256)
	delete(c.pages, (offset+size-1)/256)
}

func (c *pageGranularityCheck) CheckConflictAndAlignUp(allocOffset, allocSize, regionOffset, regionSize int, allocType uint32) (int, bool) {
	if existing, ok := c.pages[allocOffset/256]; ok && existing != allocType {
		allocOffset = (allocOffset + 255) &^ 255
		if allocOffset+allocSize > regionOffset+regionSize {
			return allocOffset, true
		}
	}
	return allocOffset, false
}
