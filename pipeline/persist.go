package pipeline

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4"
	"github.com/vkngwrapper/armory/resource"
)

// Save writes the driver cache data to w as an lz4 stream
func (c *Cache) Save(w io.Writer) error {
	data, err := c.Data()
	if err != nil {
		return err
	}

	writer := lz4.NewWriter(w)
	_, err = writer.Write(data)
	if err != nil {
		return errors.Wrap(err, "failed to compress pipeline cache data")
	}
	err = writer.Close()
	if err != nil {
		return errors.Wrap(err, "failed to flush pipeline cache data")
	}

	c.debugLog("Cache::Save", slog.Int("bytes", len(data)))
	return nil
}

// LoadCache creates a cache from an lz4 stream written by Save. Data from another device or
// driver fails with CacheIncompatible; callers usually fall back to NewCache with no data.
func LoadCache(logger *slog.Logger, factory *resource.Factory, r io.Reader) (*Cache, error) {
	data, err := io.ReadAll(lz4.NewReader(r))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress pipeline cache data")
	}

	return NewCache(logger, factory, data)
}
