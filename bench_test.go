package symcache

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"
)

// benchSource is a realistic C# file with nested types, overloads,
// properties, and bodies of varying depth.
const benchSource = `using System;
using System.Collections.Generic;

namespace Bench.Orders
{
    public interface IRepository<T>
    {
        T Find(int id);
        void Save(T item);
    }

    public class Order
    {
        public int Id { get; set; }
        public string Customer { get; set; }
        public decimal Total;

        public Order(int id, string customer)
        {
            Id = id;
            Customer = customer;
        }

        public void AddLine(string sku, int quantity, decimal price)
        {
            if (quantity <= 0)
            {
                throw new ArgumentOutOfRangeException(nameof(quantity));
            }
            Total += quantity * price;
        }

        public override string ToString()
        {
            return $"{Id}: {Customer} ({Total})";
        }

        public class Line
        {
            public string Sku;
            public int Quantity;

            public decimal Cost(decimal price) { return Quantity * price; }
        }
    }

    public class OrderService
    {
        private readonly IRepository<Order> repo;
        public event EventHandler Saved;

        public OrderService(IRepository<Order> repo)
        {
            this.repo = repo;
        }

        public Order Place(int id, string customer, List<Order.Line> lines)
        {
            var order = new Order(id, customer);
            foreach (var line in lines)
            {
                order.AddLine(line.Sku, line.Quantity, 1.0m);
            }
            repo.Save(order);
            Saved?.Invoke(this, EventArgs.Empty);
            return order;
        }

        public Order Place(int id, string customer)
        {
            return Place(id, customer, new List<Order.Line>());
        }
    }
}
`

// benchWorkspace seeds units, each holding files copies of benchSource
// under distinct namespaces.
func benchWorkspace(units, files int) *MemoryWorkspace {
	ws := NewMemoryWorkspace()
	for u := 0; u < units; u++ {
		id := fmt.Sprintf("unit%d", u)
		ws.AddUnit(id, id+".csproj")
		for f := 0; f < files; f++ {
			ns := fmt.Sprintf("Bench.U%dF%d", u, f)
			ws.PutFile(id, fmt.Sprintf("File%d.cs", f), strings.Replace(benchSource, "Bench.Orders", ns, 1))
		}
	}
	return ws
}

func newBenchCoordinator(b *testing.B, p Provider) *Coordinator {
	b.Helper()
	c, err := New(p, nil,
		WithDebounce(time.Millisecond),
		WithTempDir(b.TempDir()),
		WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { c.Close() })
	return c
}

// BenchmarkInitialBuild measures indexing a fresh workspace of 4 units with
// 8 files each.
func BenchmarkInitialBuild(b *testing.B) {
	ctx := context.Background()
	ws := benchWorkspace(4, 8)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		c, err := New(ws, nil, WithTempDir(b.TempDir()), WithLogger(log.New(io.Discard, "", 0)))
		if err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		if _, err := c.Symbols(ctx); err != nil {
			c.Close()
			b.Fatal(err)
		}

		b.StopTimer()
		c.Close()
		b.StartTimer()
	}
}

// BenchmarkRebuild measures one invalidation cycle, including the debounce
// window.
func BenchmarkRebuild(b *testing.B) {
	ctx := context.Background()
	c := newBenchCoordinator(b, benchWorkspace(4, 8))
	if _, err := c.Symbols(ctx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.InvalidateFile("File0.cs")
		if _, err := c.Symbols(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFragment measures the fragment query path once the index and the
// fragment cache are warm.
func BenchmarkFragment(b *testing.B) {
	ctx := context.Background()
	c := newBenchCoordinator(b, benchWorkspace(1, 1))
	const id = "M:Bench.U0F0.OrderService.Place(System.Int32,System.String)"
	if _, err := c.Fragment(ctx, id, true); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Fragment(ctx, id, true); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFragment_Uncached renders a fresh fragment every iteration.
func BenchmarkFragment_Uncached(b *testing.B) {
	ctx := context.Background()
	ws := benchWorkspace(1, 1)
	c, err := New(ws, nil,
		WithTempDir(b.TempDir()),
		WithLogger(log.New(io.Discard, "", 0)),
		WithFragmentCacheSize(1),
	)
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()
	ids := []string{
		"M:Bench.U0F0.Order.AddLine(System.String,System.Int32,System.Decimal)",
		"M:Bench.U0F0.OrderService.Place(System.Int32,System.String)",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Fragment(ctx, ids[i%2], true); err != nil {
			b.Fatal(err)
		}
	}
}
