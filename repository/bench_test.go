package repository

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkGet measures Get+Release against a warm repository.
// keys controls the working set; with a ceiling below it the benchmark
// also exercises fetch and eviction.
func benchmarkGet(b *testing.B, keys, ceiling int) {
	r := newTestRepo(b, int64(ceiling), &countingProvider{size: 1})
	for i := 0; i < keys && i < ceiling; i++ {
		k := "k:" + strconv.Itoa(i)
		r.Add(k, newResource(k, 1))
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed atomic.Int64
	b.RunParallel(func(pb *testing.PB) {
		i := int(seed.Add(7919))
		ctx := context.Background()
		for pb.Next() {
			res, err := r.Get(ctx, "k:"+strconv.Itoa(i%keys))
			if err != nil {
				b.Error(err)
				return
			}
			if res.Found() {
				res.Lock().Release()
			}
			i++
		}
	})
}

func BenchmarkGet_Hot(b *testing.B)   { benchmarkGet(b, 1_024, 4_096) }
func BenchmarkGet_Churn(b *testing.B) { benchmarkGet(b, 8_192, 1_024) }

func BenchmarkAddRemove(b *testing.B) {
	r := newTestRepo(b, 1<<30, nil)
	b.ReportAllocs()
	b.ResetTimer()

	var seed atomic.Int64
	b.RunParallel(func(pb *testing.PB) {
		i := int(seed.Add(1_000_003))
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&0xffff)
			r.Add(k, newResource(k, 1))
			r.Remove(k)
			i++
		}
	})
}
