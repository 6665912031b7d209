package core

import (
	"context"
	"strconv"
	"testing"
)

func benchmarkSend(b *testing.B, peers int) {
	hub, _ := newTestHub(b)

	sender := NewClient("sender", "0", "")
	hub.RegisterClient(context.Background(), sender)

	// Keep every peer online so each send takes the synchronous delivered path.
	for i := 1; i <= peers; i++ {
		c := NewClient("c"+strconv.Itoa(i), strconv.Itoa(i), "")
		hub.RegisterClient(context.Background(), c)
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{
			Kind:     CommandSend,
			PeerID:   strconv.Itoa(1 + i%peers),
			Text:     "payload",
			ClientID: "c",
		}
		for ev := range sender.Events {
			if ev.Kind == EventStatus {
				break
			}
		}
	}
}

func BenchmarkSend_10(b *testing.B)  { benchmarkSend(b, 10) }
func BenchmarkSend_100(b *testing.B) { benchmarkSend(b, 100) }
