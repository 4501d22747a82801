package main

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestDueTimeHonorsTimestampHeader(t *testing.T) {
	expire := time.Now().Add(90 * time.Second).Truncate(time.Second)
	msg := kafka.Message{
		Time: time.Now(),
		Headers: []kafka.Header{
			{Key: "delay-timestamp", Value: []byte(expire.Format(time.RFC3339))},
		},
	}
	if got := dueTime(msg, 30*time.Minute); !got.Equal(expire) {
		t.Fatalf("dueTime = %v, want %v", got, expire)
	}
}

func TestDueTimeFallsBackToLevelDelay(t *testing.T) {
	enqueued := time.Now()
	want := enqueued.Add(time.Minute)

	msg := kafka.Message{Time: enqueued}
	if got := dueTime(msg, time.Minute); !got.Equal(want) {
		t.Fatalf("dueTime = %v, want %v", got, want)
	}

	msg.Headers = []kafka.Header{{Key: "delay-timestamp", Value: []byte("not-a-timestamp")}}
	if got := dueTime(msg, time.Minute); !got.Equal(want) {
		t.Fatalf("unparsable header must fall back, got %v", got)
	}
}
