package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/randalmurphal/supportflow/pkg/supportflow"
	"github.com/randalmurphal/supportflow/pkg/supportflow/store"
)

// largeSnapshot builds a thread with a sizeable conversation log for
// realistic checkpoint payloads.
func largeSnapshot(messages int) []byte {
	state := supportflow.NewThreadState("bench-thread")
	state.UserID = 42
	state.Category = "orders"
	for i := 0; i < messages; i++ {
		role := supportflow.RoleUser
		if i%2 == 1 {
			role = supportflow.RoleAssistant
		}
		state.Messages = append(state.Messages, supportflow.Message{
			Role:    role,
			Content: fmt.Sprintf("message %d with enough text to look like a real support exchange", i),
			Seq:     i,
		})
	}
	data, _ := json.Marshal(state)
	return data
}

func createSQLiteStore(b *testing.B) (*store.SQLiteStore, func()) {
	b.Helper()
	tmpFile, err := os.CreateTemp("", "supportflow-bench-*.db")
	if err != nil {
		b.Fatal(err)
	}
	tmpFile.Close()

	st, err := store.NewSQLiteStore(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		b.Fatal(err)
	}
	return st, func() {
		st.Close()
		os.Remove(tmpFile.Name())
	}
}

// BenchmarkMemoryStore_Save measures in-memory checkpoint commits on a
// growing version chain.
func BenchmarkMemoryStore_Save(b *testing.B) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	snapshot := largeSnapshot(40)

	b.ResetTimer()
	var version int64
	for i := 0; i < b.N; i++ {
		v, err := st.Save(ctx, "t1", snapshot, "", version)
		if err != nil {
			b.Fatal(err)
		}
		version = v
	}
}

// BenchmarkMemoryStore_Load measures in-memory checkpoint load.
func BenchmarkMemoryStore_Load(b *testing.B) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	if _, err := st.Save(ctx, "t1", largeSnapshot(40), "", 0); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := st.Load(ctx, "t1"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSQLiteStore_Save measures durable checkpoint commits.
func BenchmarkSQLiteStore_Save(b *testing.B) {
	st, cleanup := createSQLiteStore(b)
	defer cleanup()

	ctx := context.Background()
	snapshot := largeSnapshot(40)

	b.ResetTimer()
	var version int64
	for i := 0; i < b.N; i++ {
		v, err := st.Save(ctx, "t1", snapshot, "", version)
		if err != nil {
			b.Fatal(err)
		}
		version = v
	}
}

// BenchmarkSQLiteStore_Load measures durable checkpoint load.
func BenchmarkSQLiteStore_Load(b *testing.B) {
	st, cleanup := createSQLiteStore(b)
	defer cleanup()

	ctx := context.Background()
	if _, err := st.Save(ctx, "t1", largeSnapshot(40), "", 0); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := st.Load(ctx, "t1"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkJSONMarshal measures snapshot serialization by log size.
func BenchmarkJSONMarshal(b *testing.B) {
	for _, size := range []int{10, 100, 500} {
		b.Run(fmt.Sprintf("messages_%d", size), func(b *testing.B) {
			state := supportflow.NewThreadState("bench-thread")
			for i := 0; i < size; i++ {
				state.Messages = append(state.Messages, supportflow.Message{
					Role:    supportflow.RoleUser,
					Content: "how much milk did I order last week",
					Seq:     i,
				})
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := json.Marshal(state); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkJSONUnmarshal measures snapshot deserialization overhead.
func BenchmarkJSONUnmarshal(b *testing.B) {
	data := largeSnapshot(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var s supportflow.ThreadState
		if err := json.Unmarshal(data, &s); err != nil {
			b.Fatal(err)
		}
	}
}
