// Package broadcast provides a type-safe in-memory fan-out stream.
//
// A Stream delivers every published value to all active subscribers without
// ever blocking the publisher: slow subscribers whose buffers are full are
// dropped rather than allowed to stall the rest of the system.
//
// Basic usage:
//
//	stream := broadcast.NewStream[string](8)
//	defer stream.Close()
//
//	ch := stream.Subscribe(ctx)
//	stream.Publish("hello")
//
//	for v := range ch {
//		fmt.Println(v)
//	}
//
// Subscriptions are scoped to the provided context: when the context is
// cancelled the subscriber is removed and its channel closed. Closing the
// stream closes all subscriber channels.
package broadcast
