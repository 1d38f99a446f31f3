package reach_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/net/reach"
)

func orJoinSpec() net.RawSpec {
	return net.RawSpec{
		ID: "orjoin", Input: "i", Output: "o",
		Conditions: []string{"i", "post_a", "post_b", "o"},
		Tasks: []net.RawTask{
			{ID: "A", In: []string{"i"}, Out: []net.RawFlow{{To: "post_a"}}, Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"}},
			{ID: "B", In: []string{"i"}, Out: []net.RawFlow{{To: "post_b"}}, Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"}},
			{ID: "C", In: []string{"post_a", "post_b"}, Join: "or", Out: []net.RawFlow{{To: "o"}}, Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"}},
		},
	}
}

// fakeState is a simple map-backed reach.State for tests.
type fakeState struct {
	marked  map[ident.Element]bool
	enabled map[ident.Element]bool
}

func (f fakeState) Marked(e ident.Element) bool        { return f.marked[e] }
func (f fakeState) EnabledOrBusy(t ident.Element) bool { return f.enabled[t] }

func TestCanFireZeroPresetTokensNeverFires(t *testing.T) {
	n, _, err := net.Build(orJoinSpec(), nil)
	require.NoError(t, err)

	s := fakeState{marked: map[ident.Element]bool{}, enabled: map[ident.Element]bool{}}
	assert.False(t, reach.CanFire(n, s, "C"))
}

// TestCanFireAfterOtherBranchUnreachable is scenario S5: only B fires, so
// A's sole preset condition (i) is consumed and A becomes unreachable;
// the OR-join must fire immediately rather than wait for A.
func TestCanFireAfterOtherBranchUnreachable(t *testing.T) {
	n, _, err := net.Build(orJoinSpec(), nil)
	require.NoError(t, err)

	s := fakeState{
		marked:  map[ident.Element]bool{"post_b": true},
		enabled: map[ident.Element]bool{}, // A is not enabled (i is empty) and not busy
	}
	assert.True(t, reach.CanFire(n, s, "C"))
}

// TestCanFireWaitsWhileOtherBranchStillLive verifies the converse: while
// A is still enabled (i still marked, so A could still deposit a token
// into post_a), C must wait.
func TestCanFireWaitsWhileOtherBranchStillLive(t *testing.T) {
	n, _, err := net.Build(orJoinSpec(), nil)
	require.NoError(t, err)

	s := fakeState{
		marked:  map[ident.Element]bool{"i": true, "post_b": true},
		enabled: map[ident.Element]bool{"A": true},
	}
	assert.False(t, reach.CanFire(n, s, "C"))
}
