package trace

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	t.Run("assigns sequence in insertion order", func(t *testing.T) {
		r := NewRecorder()

		r.Record(Thought("Web Agent", "searching"))
		r.Record(Action("Web Agent", "web_search"))
		r.Record(ActionResult("Web Agent", "3 results", nil))

		events := r.Events()
		require.Len(t, events, 3)
		for i, e := range events {
			assert.Equal(t, i, e.Seq)
		}
		assert.Equal(t, KindThought, events[0].Kind)
		assert.Equal(t, KindAction, events[1].Kind)
		assert.Equal(t, KindActionResult, events[2].Kind)
	})

	t.Run("events returns a copy", func(t *testing.T) {
		r := NewRecorder()
		r.Record(Thought("a", "x"))

		events := r.Events()
		events[0].Payload = "mutated"

		assert.Equal(t, "x", r.Events()[0].Payload)
	})

	t.Run("safe under concurrent recording", func(t *testing.T) {
		r := NewRecorder()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					r.Record(Thought("agent", "t"))
				}
			}()
		}
		wg.Wait()

		events := r.Events()
		require.Len(t, events, 1000)
		// Sequence numbers stay dense regardless of interleaving
		for i, e := range events {
			assert.Equal(t, i, e.Seq)
		}
	})
}

func TestFanOut(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()

	f := NewFanOut(a, b)
	f.Record(Action("Finance Agent", "financial_data"))

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestRunStamp(t *testing.T) {
	t.Run("stamps the run id on every event", func(t *testing.T) {
		r := NewRecorder()
		s := NewRunStamp(r, "run-abc123")

		s.Record(Thought("Web Agent", "searching"))
		s.Record(ActionResult("Web Agent", "3 results", nil))

		for _, e := range r.Events() {
			assert.Equal(t, "run-abc123", e.RunID)
		}
	})

	t.Run("keeps stamps apart across runs sharing a sink", func(t *testing.T) {
		shared := NewRecorder()

		NewRunStamp(shared, "run-a").Record(Thought("Web Agent", "x"))
		NewRunStamp(shared, "run-b").Record(Thought("Finance Agent", "y"))

		events := shared.Events()
		require.Len(t, events, 2)
		assert.Equal(t, "run-a", events[0].RunID)
		assert.Equal(t, "run-b", events[1].RunID)
	})
}

type panickySink struct{}

func (panickySink) Record(Event) { panic("observer bug") }

func TestGuard(t *testing.T) {
	t.Run("contains panics", func(t *testing.T) {
		g := NewGuard(panickySink{}, zerolog.Nop())

		assert.NotPanics(t, func() {
			g.Record(Thought("a", "x"))
		})
	})

	t.Run("delivers to healthy sink", func(t *testing.T) {
		r := NewRecorder()
		g := NewGuard(r, zerolog.Nop())

		g.Record(Thought("a", "x"))
		assert.Len(t, r.Events(), 1)
	})
}

func TestDiscard(t *testing.T) {
	var d Discard
	assert.NotPanics(t, func() {
		d.Record(Thought("a", "x"))
	})
}

func TestConstructors(t *testing.T) {
	e := ActionResult("Web Agent", "done", map[string]string{"count": "3"})

	assert.Equal(t, KindActionResult, e.Kind)
	assert.Equal(t, "Web Agent", e.Agent)
	assert.Equal(t, "done", e.Payload)
	assert.Equal(t, "3", e.Data["count"])
	assert.False(t, e.Time.IsZero())
	assert.False(t, e.Failed)
}
