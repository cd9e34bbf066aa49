package indexer

import "github.com/dshills/codecontext/pkg/types"

// ProgressSink observes indexing progress
type ProgressSink interface {
	Report(p types.Progress)
}

// SinkFunc reports synchronously on the worker goroutine
type SinkFunc func(p types.Progress)

func (f SinkFunc) Report(p types.Progress) { f(p) }

// ChannelSink forwards progress without blocking. Updates are dropped while
// the channel is full.
type ChannelSink chan<- types.Progress

func (c ChannelSink) Report(p types.Progress) {
	select {
	case c <- p:
	default:
	}
}

type discard struct{}

func (discard) Report(types.Progress) {}

// Discard ignores all progress
var Discard ProgressSink = discard{}
