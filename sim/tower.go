package sim

import (
	"math"

	"go.uber.org/zap"
	"towersim/utils"
)

// BandInfo is one of the high/mid/low service tiers.
type BandInfo struct {
	Name          string
	RangeM        float64
	ThroughputBps float64
}

// DefaultBands matches spec.md §4.3/§4.4: high ≤300m @1Gbps, mid ≤1500m
// @200Mbps, low ≤5000m @50Mbps.
var DefaultBands = []BandInfo{
	{Name: "high", RangeM: 300, ThroughputBps: 1e9},
	{Name: "mid", RangeM: 1500, ThroughputBps: 200e6},
	{Name: "low", RangeM: 5000, ThroughputBps: 50e6},
}

// Tower is a base station: it attaches UEs, arbitrates their per-tick bit
// budgets, and forwards packets across the backhaul graph.
type Tower struct {
	ID          TowerID
	IPAddr      IPAddr
	X, Y        float64
	Operational bool

	peers    map[TowerID]bool
	attached map[UEID]bool

	bandOccupancy map[string]int

	ueGrant  map[UEID]int // per-tick bit grant
	ueTxBits map[UEID]int // bits sent to this UE so far this tick

	ingress        []Packet // FIFO: append at head (index 0), pop from tail
	ingressBits    int
	bufferThresh   int
	hopLimit       int
	maxRateBps     float64
	deltaT         float64
	nTxBytes       int
	nRxBytes       int
	totalBitTx     float64
	bitErrors      float64
	ber            float64

	dedup *dedupCache

	world *World
}

func newTower(id TowerID, ip IPAddr, x, y float64, w *World) *Tower {
	return &Tower{
		ID:            id,
		IPAddr:        ip,
		X:             x,
		Y:             y,
		Operational:   true,
		peers:         map[TowerID]bool{},
		attached:      map[UEID]bool{},
		bandOccupancy: map[string]int{},
		ueGrant:       map[UEID]int{},
		ueTxBits:      map[UEID]int{},
		bufferThresh:  10e9,
		hopLimit:      1,
		maxRateBps:    10e9,
		deltaT:        0.5,
		totalBitTx:    1,
		dedup:         newDedupCache(),
		world:         w,
	}
}

func (t *Tower) distanceTo(x, y float64) float64 {
	dx := t.X - x
	dy := t.Y - y
	return math.Sqrt(dx*dx + dy*dy)
}

// setDeltaT updates the tick length used for bit-budget math.
func (t *Tower) setDeltaT(dt float64) { t.deltaT = dt }

// setHopLimit is re-broadcast by the driver whenever the live tower set
// changes, per spec.md §4.5 — it SHOULD be |towers|+1.
func (t *Tower) setHopLimit(n int) { t.hopLimit = n }

// recomputeRates runs spec.md §4.4 for every attached UE: base band rate
// divided by the number of UEs sharing that band on this tower, scaled into
// a per-tick bit grant by delta-t and the UE's own code rate.
func (t *Tower) recomputeRates() {
	t.ueGrant = map[UEID]int{}
	t.ueTxBits = map[UEID]int{}
	for ueID := range t.attached {
		ue := t.world.ue(ueID)
		if ue == nil {
			continue
		}
	base := t.world.bandThroughput(ue.Band)
		shared := base
		if n := t.bandOccupancy[ue.Band]; n > 0 {
			shared = base / float64(n)
		}
		ue.MaxDataRate = shared
		grant := shared * t.deltaT * ue.CodeRate
		t.ueGrant[ueID] = int(grant)
		t.ueTxBits[ueID] = 0
	}
}

// attach registers ue on this tower's band occupancy and attached list.
func (t *Tower) attach(ue *UE) {
	t.attached[ue.ID] = true
	t.bandOccupancy[ue.Band]++
	t.recomputeRates()
}

// detach removes ue from this tower's band occupancy and attached list.
func (t *Tower) detach(ue *UE) {
	delete(t.attached, ue.ID)
	if t.bandOccupancy[ue.Band] > 0 {
		t.bandOccupancy[ue.Band]--
	}
	delete(t.ueGrant, ue.ID)
	delete(t.ueTxBits, ue.ID)
	t.recomputeRates()
}

// connectPeer and disconnectPeer maintain one side of the symmetric graph
// edge; World.Connect/Disconnect call both sides.
func (t *Tower) connectPeer(other TowerID) { t.peers[other] = true }
func (t *Tower) disconnectPeer(other TowerID) { delete(t.peers, other) }

// receive is the tower's ingress path (spec.md §4.5). It returns false on
// hop-limit exceed or buffer overflow; both are silent drops from the
// sender's point of view.
func (t *Tower) receive(p Packet) bool {
	if !t.Operational {
		return false
	}
	if p.HopCount >= t.hopLimit {
		utils.Logger.Debug("hop limit exceeded",
			zap.Int("tower", int(t.ID)), zap.Int("hop_count", p.HopCount))
		return false
	}
	if t.ingressBits+p.Bits() > t.bufferThresh {
		utils.Logger.Warn("tower ingress buffer overflow",
			zap.Int("tower", int(t.ID)))
		return false
	}

	p = p.withVia(t.IPAddr)
	// push at the head: ingress[0] is newest, last element is oldest.
	t.ingress = append([]Packet{p}, t.ingress...)
	t.ingressBits += p.Bits()
	t.nRxBytes += len(p.Bytes)
	return true
}

// canTransmit reports whether the oldest queued packet can go out this tick
// without exceeding the tower's per-tick TX byte budget.
func (t *Tower) canTransmit() bool {
	if !t.Operational || len(t.ingress) == 0 {
		return false
	}
	next := t.ingress[len(t.ingress)-1]
	return float64(t.nTxBytes+len(next.Bytes)) <= t.maxRateBps*t.deltaT
}

// transmit pops the oldest ingress packet and either delivers it locally or
// floods it to peers other than via_ip, per spec.md §4.5.
func (t *Tower) transmit() {
	if !t.Operational || len(t.ingress) == 0 {
		return
	}

	n := len(t.ingress)
	p := t.ingress[n-1]
	t.ingress = t.ingress[:n-1]
	t.ingressBits -= p.Bits()
	if t.ingressBits < 0 {
		t.ingressBits = 0
	}

	if p.HopCount >= t.hopLimit {
		return
	}

	if p.Kind == KindACK {
		t.transmitACK(p)
		return
	}
	t.transmitData(p)
}

func (t *Tower) transmitACK(p Packet) {
	for ueID := range t.attached {
		ue := t.world.ue(ueID)
		if ue == nil || ue.IPAddr != p.DstIP {
			continue
		}
		ue.receiveFromTower(p)
		t.chargeTx(p)
		return
	}

	for peer := range t.peers {
		pt := t.world.tower(peer)
		if pt == nil || pt.IPAddr == p.ViaIP {
			continue
		}
		pt.receive(p)
		t.chargeTx(p)
	}
}

func (t *Tower) transmitData(p Packet) {
	delivered := false

	for ueID := range t.attached {
		ue := t.world.ue(ueID)
		if ue == nil || ue.IPAddr == p.SrcIP {
			continue
		}
		if ue.IPAddr != p.DstIP && p.DstIP != BroadcastIP {
			continue
		}

		if !t.world.channel.drop(ue.CurrentDist, ue.MaxRange, ue.CodeRate) {
			if t.ueTxBits[ueID]+p.Bits() <= t.ueGrant[ueID] {
				ue.receiveFromTower(p)
				t.ueTxBits[ueID] += p.Bits()
			}
		} else {
			t.bitErrors += bitErrors(p.Bits(), ue.CurrentDist, ue.MaxRange)
		}

		delivered = true
		t.chargeTx(p)
		if p.DstIP != BroadcastIP {
			break
		}
	}

	if delivered {
		return
	}

	if p.DstIP == BroadcastIP && t.dedup.seen(p.SrcIP, p.PacketNum) {
		return
	}
	if p.DstIP == BroadcastIP {
		t.dedup.mark(p.SrcIP, p.PacketNum)
	}

	for peer := range t.peers {
		pt := t.world.tower(peer)
		if pt == nil || pt.IPAddr == p.ViaIP {
			continue
		}
		pt.receive(p)
		t.chargeTx(p)
	}
}

func (t *Tower) chargeTx(p Packet) {
	t.nTxBytes += len(p.Bytes)
	t.totalBitTx += float64(p.Bits())
}

// clearTxCount resets the per-tick TX byte counter, called by the driver at
// the end of every tick.
func (t *Tower) clearTxCount() { t.nTxBytes = 0 }

// step transmits the oldest ingress packet, then refreshes the reported BER.
func (t *Tower) step() {
	t.transmit()
	if t.totalBitTx > 0 {
		t.ber = t.bitErrors / t.totalBitTx
	}
}

// Snapshot fields exposed read-only, per spec.md §6.
func (t *Tower) LastTxBytes() int  { return t.nTxBytes }
func (t *Tower) BER() float64      { return t.ber }
