package timeline

import (
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/workspace-chat/backend/internal/model"
)

// generated returns the message for a generated id. The timestamp is derived
// from the id so that equal ids always describe the same message, and the
// modulus produces frequent timestamp ties.
func generated(n int) model.Message {
	return model.Message{
		ID:          "m" + strconv.Itoa(n),
		WorkspaceID: "ws-1",
		Body:        "body",
		CreatedAt:   epoch.Add(time.Duration(n%7) * time.Second),
	}
}

func isOrderedAndUnique(msgs []model.Message) bool {
	for i := 1; i < len(msgs); i++ {
		if !model.Less(msgs[i-1], msgs[i]) {
			return false
		}
	}
	return true
}

func membership(msgs []model.Message) map[string]bool {
	out := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		out[m.ID] = true
	}
	return out
}

func sameMembers(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func TestSeedIdempotencyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("seed after live events yields union without duplicates", prop.ForAll(
		func(pageIDs []int, mask []bool) bool {
			page := make([]model.Message, len(pageIDs))
			for i, n := range pageIDs {
				page[i] = generated(n)
			}

			s := NewStore()
			s.Reset("ws-1")
			var live []model.Message
			for i, m := range page {
				if i < len(mask) && mask[i] {
					s.ApplyLiveEvent(m)
					live = append(live, m)
				}
			}
			s.Seed("ws-1", page)

			want := membership(append(slices.Clone(page), live...))
			snap := s.Snapshot()
			return isOrderedAndUnique(snap) && sameMembers(membership(snap), want)
		},
		gen.SliceOf(gen.IntRange(0, 40)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestOrderingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("snapshot is sorted by (timestamp, id) for any interleaving", prop.ForAll(
		func(msgIDs []int, viaSeed []bool) bool {
			s := NewStore()
			s.Reset("ws-1")
			var all []model.Message
			for i, n := range msgIDs {
				m := generated(n)
				all = append(all, m)
				if i < len(viaSeed) && viaSeed[i] {
					s.Seed("ws-1", []model.Message{m})
				} else {
					s.ApplyLiveEvent(m)
				}
			}
			snap := s.Snapshot()
			return isOrderedAndUnique(snap) && sameMembers(membership(snap), membership(all))
		},
		gen.SliceOf(gen.IntRange(0, 60)),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("live events in reverse order produce the same snapshot", prop.ForAll(
		func(msgIDs []int) bool {
			forward := NewStore()
			forward.Reset("ws-1")
			backward := NewStore()
			backward.Reset("ws-1")
			for i := range msgIDs {
				forward.ApplyLiveEvent(generated(msgIDs[i]))
				backward.ApplyLiveEvent(generated(msgIDs[len(msgIDs)-1-i]))
			}
			return slices.EqualFunc(forward.Snapshot(), backward.Snapshot(), func(a, b model.Message) bool {
				return a.ID == b.ID
			})
		},
		gen.SliceOf(gen.IntRange(0, 60)),
	))

	properties.TestingRun(t)
}

func TestDedupProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("applying a live event twice equals applying it once", prop.ForAll(
		func(seedIDs []int, n int) bool {
			seed := make([]model.Message, len(seedIDs))
			for i, id := range seedIDs {
				seed[i] = generated(id)
			}

			once := NewStore()
			once.Seed("ws-1", seed)
			once.ApplyLiveEvent(generated(n))

			twice := NewStore()
			twice.Seed("ws-1", seed)
			twice.ApplyLiveEvent(generated(n))
			twice.ApplyLiveEvent(generated(n))

			return slices.Equal(ids(once.Snapshot()), ids(twice.Snapshot()))
		},
		gen.SliceOf(gen.IntRange(0, 30)),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}
