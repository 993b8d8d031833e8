package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
	"golang.org/x/exp/slices"
)

// BatchError reports the records of a batch that could not be built. The pipelines of every
// other record were built and returned.
type BatchError struct {
	// Failed lists the failed records by the index Add returned, in ascending order
	Failed []int
	Total  int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("failed to build %d of %d pipelines %v: %v", len(e.Failed), e.Total, e.Failed, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Batch stages records so pipelines that share a bind point are built with a single driver
// call. It is not safe for concurrent use, but the cache it builds into is.
type Batch struct {
	cache   *Cache
	records []Record
}

func (c *Cache) NewBatch() *Batch {
	return &Batch{cache: c}
}

// AddGraphics stages a graphics record and returns its index in the batch
func (b *Batch) AddGraphics(record Record) int {
	record.BindPoint = hal.BindPointGraphics
	return b.add(record)
}

// AddCompute stages a compute record and returns its index in the batch
func (b *Batch) AddCompute(record Record) int {
	record.BindPoint = hal.BindPointCompute
	return b.add(record)
}

// AddRayTracing stages a ray tracing record and returns its index in the batch
func (b *Batch) AddRayTracing(record Record) int {
	record.BindPoint = hal.BindPointRayTracing
	return b.add(record)
}

func (b *Batch) add(record Record) int {
	b.records = append(b.records, record)
	return len(b.records) - 1
}

// Len returns the number of staged records
func (b *Batch) Len() int { return len(b.records) }

var batchOrder = []hal.PipelineBindPoint{hal.BindPointGraphics, hal.BindPointCompute, hal.BindPointRayTracing}

type batchAlias struct {
	index int
	first *request
}

// Build builds every staged record and clears the batch. The result has one pipeline per
// record in the order they were added. Records already cached, and repeats within the batch,
// are not built again. When some records fail, the rest are still returned and the error is
// a *BatchError; failed entries of the result are nil.
func (b *Batch) Build() ([]*Pipeline, error) {
	records := b.records
	b.records = nil
	if len(records) == 0 {
		return nil, nil
	}

	c := b.cache
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]*Pipeline, len(records))
	groups := make(map[hal.PipelineBindPoint][]*request, len(batchOrder))
	staged := make(map[uint64]*request, len(records))
	var aliases []batchAlias
	var failed []int
	var errs []error

	for index, record := range records {
		req, err := c.prepare(record)
		if err != nil {
			failed = append(failed, index)
			errs = append(errs, errors.Wrapf(err, "pipeline %d", index))
			continue
		}
		req.index = index

		if pipeline, ok := c.pipelines.Get(req.fingerprint); ok {
			results[index] = pipeline
			continue
		}
		if first, ok := staged[req.fingerprint]; ok {
			aliases = append(aliases, batchAlias{index: index, first: first})
			continue
		}

		c.resolveBase(req)
		staged[req.fingerprint] = req
		groups[req.record.BindPoint] = append(groups[req.record.BindPoint], req)
	}

	for _, bindPoint := range batchOrder {
		requests := groups[bindPoint]
		if len(requests) == 0 {
			continue
		}

		handles, res := c.create(bindPoint, requests)
		err := vkerr.FromResultf(res, "failed to create %d %s pipelines", len(requests), bindPoint)
		if err != nil {
			errs = append(errs, err)
		}

		for i, req := range requests {
			if handles[i].IsNull() {
				failed = append(failed, req.index)
				continue
			}
			results[req.index] = c.insert(req, handles[i])
		}
	}

	for _, alias := range aliases {
		results[alias.index] = results[alias.first.index]
		if results[alias.index] == nil {
			failed = append(failed, alias.index)
		}
	}

	c.debugLog("Batch::Build", slog.Int("records", len(records)), slog.Int("failed", len(failed)))

	if len(failed) == 0 {
		return results, nil
	}

	slices.Sort(failed)
	err := errors.Join(errs...)
	if err == nil {
		err = vkerr.New(vkerr.Unknown, "the driver returned no handle for %d pipelines", len(failed))
	}
	return results, &BatchError{Failed: failed, Total: len(records), Err: err}
}
