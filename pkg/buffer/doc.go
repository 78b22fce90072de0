// Package buffer provides a thread-safe fixed-capacity ring buffer for
// sliding windows over streamed samples.
//
// Push overwrites the oldest element once the buffer is full, so a
// RingBuffer always holds the most recent Cap() elements:
//
//	win := buffer.RingN[[]float64](50)
//	for s := range samples {
//		win.Push(s)
//		if win.Full() {
//			process(win.Items())
//		}
//	}
package buffer
