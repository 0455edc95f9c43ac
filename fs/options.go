package fs

import (
	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
	"github.com/unconsolable/easyfs/common"
)

// Option is a functional option for Create and Open
type Option func(*options) error

type options struct {
	slots int
	uuid  uuid.UUID
}

func defaultOptions() *options {
	return &options{slots: common.NR_BUFS}
}

// WithCacheSlots sets the number of slots in the block cache
func WithCacheSlots(n int) Option {
	return func(o *options) error {
		if n < common.NR_BUFS {
			return common.EINVAL
		}
		o.slots = n
		return nil
	}
}

// WithUUID sets the volume identifier written by Create. Without it a
// random one is generated.
func WithUUID(id uuid.UUID) Option {
	return func(o *options) error {
		o.uuid = id
		return nil
	}
}

// WithInvariantChecking turns on the allocation counter checks made each
// time the filesystem lock changes hands. The switch is process wide.
func WithInvariantChecking() Option {
	return func(o *options) error {
		syncutil.EnableInvariantChecking()
		return nil
	}
}

func applyOptions(opts []Option) (*options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
