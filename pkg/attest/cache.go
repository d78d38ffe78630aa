package attest

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Acquirer obtains a fresh device id.
type Acquirer interface {
	AcquireDeviceID(ctx context.Context) (string, error)
}

// Cache keeps the first device id acquired during the lifetime of the process.
// Concurrent callers share a single in-flight acquisition. Failures are not cached.
type Cache struct {
	acquirer Acquirer
	group    singleflight.Group
	deviceID atomic.Pointer[string]
}

// NewCache creates a Cache backed by acquirer.
func NewCache(acquirer Acquirer) *Cache {
	return &Cache{acquirer: acquirer}
}

// DeviceID returns the cached device id, acquiring one if needed.
// The shared acquisition ignores the cancellation of whichever caller started it and is bounded
// by the acquirer's own attempt timeouts. A caller whose ctx is done stops waiting and gets
// ctx.Err() while the acquisition continues for the others.
func (c *Cache) DeviceID(ctx context.Context) (string, error) {
	if id := c.deviceID.Load(); id != nil {
		return *id, nil
	}
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("deviceId", func() (any, error) {
		if id := c.deviceID.Load(); id != nil {
			return *id, nil
		}
		id, err := c.acquirer.AcquireDeviceID(flightCtx)
		if err != nil {
			return "", err
		}
		c.deviceID.Store(&id)
		return id, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
