// conduit-bench stresses the in-memory broker with configurable producer
// and consumer counts and reports per-worker throughput.
//
// Usage:
//
//	conduit-bench -producers 4 -consumers 4 -topics 8 -chunk "4 KB"
package main

import (
	"context"
	crand "crypto/rand"
	"flag"
	"fmt"
	"log"
	mrand "math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/conduit-mq/conduit-go/pkg/transport"
)

func randomPayload(size int) []byte {
	buffer := make([]byte, size)
	if _, err := crand.Read(buffer); err != nil {
		for i := range buffer {
			buffer[i] = byte(mrand.Intn(256))
		}
	}
	return buffer
}

func generateTopics(count int) []string {
	topics := make([]string, count)
	for i := range topics {
		topics[i] = fmt.Sprintf("topic_%d", i)
	}
	return topics
}

// rate renders a byte count accumulated over the roll window as a
// human-readable per-second rate.
func rate(bytes uint64, window time.Duration) string {
	seconds := uint64(window / time.Second)
	if seconds == 0 {
		seconds = 1
	}
	return (datasize.B * datasize.ByteSize(bytes/seconds)).HR()
}

func runConsumer(ctx context.Context, hub *transport.Hub, id int, topics []string, rollAfter time.Duration) error {
	var consumed atomic.Uint64

	conn, err := hub.Dial(ctx, transport.Config{
		Channels: topics,
		OnMessage: func(msg transport.Message) {
			consumed.Add(uint64(len(msg.Payload)))
		},
	})
	if err != nil {
		return err
	}

	go func() {
		defer conn.Close()
		ticker := time.NewTicker(rollAfter)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				log.Printf("[C%d] at %s/s", id, rate(consumed.Swap(0), rollAfter))
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func runProducer(ctx context.Context, hub *transport.Hub, id int, topics []string, rollAfter time.Duration, chunk datasize.ByteSize) error {
	pub, err := hub.DialPublisher(ctx)
	if err != nil {
		return err
	}

	go func() {
		defer pub.Close()

		payload := randomPayload(int(chunk))
		var published uint64
		startedAt := time.Now()

		for {
			if ctx.Err() != nil {
				return
			}
			topic := topics[mrand.Intn(len(topics))]
			if _, err := pub.Publish(ctx, topic, payload); err != nil {
				return
			}
			published += uint64(len(payload))

			if time.Since(startedAt) >= rollAfter {
				log.Printf("[P%d] at %s/s", id, rate(published, rollAfter))
				published = 0
				startedAt = time.Now()
			}
		}
	}()
	return nil
}

func main() {
	producers := flag.Int("producers", 2, "number of publishing workers")
	consumers := flag.Int("consumers", 2, "number of subscribing workers")
	topics := flag.Int("topics", 2, "number of channels")
	chunk := flag.String("chunk", "1 KB", "published message size")
	rollAfter := flag.Duration("rollAfter", 4*time.Second, "throughput reporting interval")
	flag.Parse()
	log.SetFlags(log.Ltime)

	chunkSize, err := datasize.ParseString(*chunk)
	if err != nil {
		log.Printf("Invalid chunk size %q: %v, using 1 KB", *chunk, err)
		chunkSize = datasize.KB
	}

	log.Printf("Benchmark with %d producers, %d consumers, %d topics, %s chunks",
		*producers, *consumers, *topics, chunkSize.HR())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := transport.NewHub()
	defer hub.Close()

	names := generateTopics(*topics)

	for i := 0; i < *consumers; i++ {
		if err := runConsumer(ctx, hub, i, names, *rollAfter); err != nil {
			log.Fatalf("Failed to start consumer %d: %v", i, err)
		}
	}
	for i := 0; i < *producers; i++ {
		if err := runProducer(ctx, hub, i, names, *rollAfter, chunkSize); err != nil {
			log.Fatalf("Failed to start producer %d: %v", i, err)
		}
	}

	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, syscall.SIGTERM, syscall.SIGINT)
	<-interruptChan

	log.Println("Shutting down")
}
