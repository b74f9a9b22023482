package rosbag

// ReadOrder controls the sequence MessageIterator.Next returns messages in,
// mirroring pkg/mcap's ReadOrder.
type ReadOrder int

const (
	FileOrder ReadOrder = iota
	LogTimeOrder
	ReverseLogTimeOrder
)

// ReadOptions configures a Reader.Messages call.
type ReadOptions struct {
	Order     ReadOrder
	Topics    []string
	StartTime uint64
	EndTime   uint64
	UseIndex  *bool
}

// ReadOpt mutates a ReadOptions.
type ReadOpt func(*ReadOptions)

func WithOrder(o ReadOrder) ReadOpt           { return func(ro *ReadOptions) { ro.Order = o } }
func WithTopics(topics ...string) ReadOpt     { return func(ro *ReadOptions) { ro.Topics = topics } }
func WithTimeRange(start, end uint64) ReadOpt {
	return func(ro *ReadOptions) { ro.StartTime = start; ro.EndTime = end }
}
func WithIndex(use bool) ReadOpt { return func(ro *ReadOptions) { ro.UseIndex = &use } }

func buildReadOptions(opts ...ReadOpt) ReadOptions {
	var ro ReadOptions
	for _, o := range opts {
		o(&ro)
	}
	return ro
}

func (ro ReadOptions) wantsTopic(topic string) bool {
	if len(ro.Topics) == 0 {
		return true
	}
	for _, t := range ro.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (ro ReadOptions) inRange(t uint64) bool {
	if ro.StartTime != 0 && t < ro.StartTime {
		return false
	}
	if ro.EndTime != 0 && t >= ro.EndTime {
		return false
	}
	return true
}
