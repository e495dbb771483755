package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/antocuni/spymem/config"
	"github.com/antocuni/spymem/heap"
)

func newDemoCmd() *cobra.Command {
	var strategyFlag string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Allocate a small object graph and show what the collector does with it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FindAndLoad(".")
			if err != nil {
				return err
			}
			commonlog.Configure(cfg.Log.Verbosity, nil)

			name := cfg.Heap.Strategy
			if strategyFlag != "" {
				name = strategyFlag
			}
			kind, err := heap.ParseStrategyKind(name)
			if err != nil {
				return err
			}
			return runDemo(kind, cfg.Heap.MaxObjects)
		},
	}
	cmd.Flags().StringVarP(&strategyFlag, "strategy", "s", "", "collection strategy (refcount, externalroot, tracing)")
	return cmd
}

// runDemo builds a linked list plus a reference cycle, then reclaims what
// the chosen strategy can reclaim and prints the heap before and after.
func runDemo(kind heap.StrategyKind, maxObjects int) error {
	reg := heap.NewRegistry()
	node, err := reg.Declare("Node", []heap.FieldSpec{
		{Name: "value", Kind: heap.FieldValue},
		{Name: "next", Kind: heap.FieldRef, Elem: reg.ObjectShape()},
	})
	if err != nil {
		return err
	}

	h := heap.New(reg, heap.Options{Strategy: kind, MaxObjects: maxObjects})
	defer h.Close()

	// A three-node list: head -> a -> b
	head, err := h.Alloc(node)
	if err != nil {
		return err
	}
	a, _ := h.Alloc(node)
	b, _ := h.Alloc(node)
	for i, r := range []heap.Ref{head, a, b} {
		if err := h.SetField(r, "value", heap.FromInt(int64(i))); err != nil {
			return err
		}
	}
	if err := h.SetRef(head, "next", a); err != nil {
		return err
	}
	if err := h.SetRef(a, "next", b); err != nil {
		return err
	}

	// A two-node cycle with no other references to it.
	c1, _ := h.Alloc(node)
	c2, _ := h.Alloc(node)
	h.SetRef(c1, "next", c2)
	h.SetRef(c2, "next", c1)

	fmt.Print(h.Snapshot().Render())

	switch kind {
	case heap.Tracing:
		if err := h.AddRoot(head); err != nil {
			return err
		}
		h.Drop(a)
		h.Drop(b)
		h.Drop(c1)
		h.Drop(c2)
		stats, err := h.Collect()
		if err != nil {
			return err
		}
		fmt.Printf("collect: marked=%d swept=%d in %s\n", stats.Marked, stats.Swept, stats.Duration)
	default:
		// Dropping the only handles: the list head cascade reclaims the
		// list, the cycle keeps itself alive under pure refcounting.
		h.Drop(a)
		h.Drop(b)
		h.Drop(head)
		h.Drop(c1)
		h.Drop(c2)
	}

	fmt.Print(h.Snapshot().Render())

	st := h.Stats()
	fmt.Printf("allocs=%d frees=%d live=%d bytes=%d\n",
		st.TotalAllocs, st.TotalFrees, st.Live, st.BytesLive)
	if kind == heap.Refcount && st.Live > 0 {
		fmt.Println("note: the cycle survives refcounting; run with -s tracing to reclaim it")
	}
	return nil
}
