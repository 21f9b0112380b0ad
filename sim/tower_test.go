package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectDisconnectSymmetric(t *testing.T) {
	w := NewWorld(1)
	a := w.CreateTower(1, 0, 0)
	b := w.CreateTower(2, 100, 0)

	w.Connect(a, b)
	require.True(t, w.tower(a).peers[b])
	require.True(t, w.tower(b).peers[a])
	require.False(t, w.tower(a).peers[a])

	w.Disconnect(a, b)
	require.False(t, w.tower(a).peers[b])
	require.False(t, w.tower(b).peers[a])
}

func TestSetOperationalFalsePrunesEdgesAndDetachesUEs(t *testing.T) {
	w := NewWorld(1)
	a := w.CreateTower(1, 0, 0)
	b := w.CreateTower(2, 100, 0)
	w.Connect(a, b)

	ue := w.CreateUE(50, 0, 0)
	w.ue(ue).currentTower = a
	w.tower(a).attach(w.ue(ue))

	w.SetOperational(a, false)

	require.False(t, w.tower(a).Operational)
	require.False(t, w.tower(a).peers[b])
	require.False(t, w.tower(b).peers[a])
	require.Equal(t, noTower, w.ue(ue).currentTower)
}

func TestReceiveRejectsOnHopLimit(t *testing.T) {
	w := NewWorld(1)
	tw := w.tower(w.CreateTower(1, 0, 0))
	tw.setHopLimit(2)

	p := newDataFragment(0, 1, 50, 51, []byte{1})
	p.HopCount = 2

	ok := tw.receive(p)
	require.False(t, ok)
	require.Empty(t, tw.ingress)
}

func TestReceiveRejectsOnBufferOverflow(t *testing.T) {
	w := NewWorld(1)
	tw := w.tower(w.CreateTower(1, 0, 0))
	tw.bufferThresh = 8 // bits; smaller than any real frame

	p := newDataFragment(0, 1, 50, 51, []byte{1})
	ok := tw.receive(p)
	require.False(t, ok)
	require.Zero(t, tw.ingressBits)
}

func TestReceiveSetsViaIPAndIncrementsHopCount(t *testing.T) {
	w := NewWorld(1)
	tw := w.tower(w.CreateTower(1, 0, 0))

	p := newDataFragment(0, 1, 50, 51, []byte{1})
	require.True(t, tw.receive(p))
	require.Len(t, tw.ingress, 1)
	require.Equal(t, 1, tw.ingress[0].HopCount)
	require.Equal(t, tw.IPAddr, tw.ingress[0].ViaIP)
}

func TestIngressIsFIFOTailOut(t *testing.T) {
	w := NewWorld(1)
	tw := w.tower(w.CreateTower(1, 0, 0))

	first := newDataFragment(0, 1, 50, 51, []byte{1})
	second := newDataFragment(0, 2, 50, 51, []byte{2})
	tw.receive(first)
	tw.receive(second)

	// oldest (first) sits at the tail and is the next to be popped.
	require.Equal(t, uint16(1), tw.ingress[len(tw.ingress)-1].PacketNum)
}

func TestTransmitDataBroadcastReachesAllAttachedUEs(t *testing.T) {
	w := NewWorld(1)
	towerID := w.CreateTower(1, 0, 0)
	tw := w.tower(towerID)

	srcUE := w.CreateUE(50, 0, 0)
	dstA := w.CreateUE(51, 10, 0)
	dstB := w.CreateUE(52, 20, 0)
	for _, id := range []UEID{srcUE, dstA, dstB} {
		u := w.ue(id)
		u.currentTower = towerID
		u.Band = "high"
		u.MaxRange = 300
		u.CurrentDist = 10
		tw.attach(u)
	}

	p := newDataFragment(0, 1, 50, BroadcastIP, []byte{9})
	tw.ingress = append(tw.ingress, p)
	tw.ingressBits = p.Bits()

	tw.step()

	// both dstA and dstB received the broadcast and each fired an ACK back
	// into the tower's ingress.
	require.Len(t, tw.ingress, 2)
	for _, ack := range tw.ingress {
		require.Equal(t, KindACK, ack.Kind)
	}
}

func TestTransmitForwardsOnlyToNonViaPeers(t *testing.T) {
	w := NewWorld(1)
	a := w.CreateTower(1, 0, 0)
	b := w.CreateTower(2, 100, 0)
	c := w.CreateTower(3, 200, 0)
	w.Connect(a, b)
	w.Connect(a, c)
	w.tower(a).setHopLimit(10)
	w.tower(b).setHopLimit(10)
	w.tower(c).setHopLimit(10)

	p := newDataFragment(0, 1, 50, 51, []byte{1})
	p = p.withVia(w.tower(b).IPAddr) // as if it arrived via b
	w.tower(a).ingress = append(w.tower(a).ingress, p)
	w.tower(a).ingressBits = p.Bits()

	w.tower(a).step()

	require.Empty(t, w.tower(b).ingress) // suppressed: via_ip == b
	require.Len(t, w.tower(c).ingress, 1) // forwarded to c
}

func TestBroadcastDedupSuppressesRepeatFlood(t *testing.T) {
	d := newDedupCache()
	require.False(t, d.seen(50, 1))
	d.mark(50, 1)
	require.True(t, d.seen(50, 1))
	require.False(t, d.seen(50, 2))
}
