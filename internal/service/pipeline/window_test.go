package pipeline

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"facecapture/internal/model"
)

func TestWindowKeepsLastLabels(t *testing.T) {
	for capacity := 1; capacity <= 5; capacity++ {
		for pushes := 0; pushes <= 12; pushes++ {
			t.Run(fmt.Sprintf("cap=%d/pushes=%d", capacity, pushes), func(t *testing.T) {
				w := NewWindow(capacity)

				var pushed []model.Label
				for i := 0; i < pushes; i++ {
					label := model.Label(fmt.Sprintf("L%d", i))
					pushed = append(pushed, label)
					w.Push(label)
				}

				keep := pushes
				if keep > capacity {
					keep = capacity
				}
				want := append([]model.Label{}, pushed[len(pushed)-keep:]...)
				if diff := cmp.Diff(want, w.Snapshot()); diff != "" {
					t.Errorf("window mismatch (-want +got):\n%s", diff)
				}
				assert.LessOrEqual(t, w.Len(), capacity)
			})
		}
	}
}

func TestWindowScenarioABCDE(t *testing.T) {
	w := NewWindow(4)

	var last []model.Label
	for _, label := range []model.Label{"A", "B", "C", "D", "E"} {
		last = w.Push(label)
	}

	want := []model.Label{"B", "C", "D", "E"}
	if diff := cmp.Diff(want, last); diff != "" {
		t.Errorf("push result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, w.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestWindowNoDeduplication(t *testing.T) {
	w := NewWindow(3)
	w.Push("happy")
	w.Push("happy")

	assert.Equal(t, []model.Label{"happy", "happy"}, w.Snapshot())
}

func TestWindowSnapshotIsCopy(t *testing.T) {
	w := NewWindow(2)
	pushed := w.Push("A")
	snap := w.Snapshot()

	pushed[0] = "X"
	snap[0] = "Y"

	assert.Equal(t, []model.Label{"A"}, w.Snapshot())
}

func TestWindowCapacityFloor(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, 1, w.Cap())

	w.Push("A")
	w.Push("B")
	assert.Equal(t, []model.Label{"B"}, w.Snapshot())
}

func TestWindowEmptySnapshotNotNil(t *testing.T) {
	assert.NotNil(t, NewWindow(4).Snapshot())
}
