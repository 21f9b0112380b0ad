package sim

import (
	"math/rand"

	"go.uber.org/zap"
	"towersim/utils"
)

// World owns every tower and UE and drives the per-tick simulation loop
// (spec.md §3, §4.8). UEs and towers reference each other only through the
// TowerID/UEID handles World resolves — never a raw pointer cycle.
type World struct {
	Tick   int
	deltaT float64

	towers     map[TowerID]*Tower
	towerOrder []TowerID
	nextTower  TowerID

	ues     map[UEID]*UE
	ueOrder []UEID
	nextUE  UEID

	channel  *channelModel
	tieBreak tieBreaker
	bands    []BandInfo

	arqTimeout int
	arqMaxRetx int
}

// NewWorld constructs an empty world. seed controls the channel model's
// pseudo-random drops, so scenarios are reproducible in tests.
func NewWorld(seed int64) *World {
	return &World{
		deltaT:  0.5,
		towers:  map[TowerID]*Tower{},
		ues:     map[UEID]*UE{},
		channel:    newChannelModel(rand.New(rand.NewSource(seed))),
		bands:      append([]BandInfo{}, DefaultBands...),
		arqTimeout: 5,
		arqMaxRetx: 3,
	}
}

// SetARQDefaults configures the stop-and-wait timeout/retry budget applied to
// every UE created from this point forward.
func (w *World) SetARQDefaults(timeoutTicks, maxRetx int) {
	w.arqTimeout = timeoutTicks
	w.arqMaxRetx = maxRetx
}

// SetBands replaces the high/mid/low service tiers, letting the driver feed
// config.SimConfig.Bands in instead of relying on the built-in defaults.
func (w *World) SetBands(bands []BandInfo) {
	if len(bands) == 0 {
		return
	}
	w.bands = bands
}

func (w *World) bandThroughput(name string) float64 {
	for _, b := range w.bands {
		if b.Name == name {
			return b.ThroughputBps
		}
	}
	return 0
}

func (w *World) bandRange(name string) float64 {
	for _, b := range w.bands {
		if b.Name == name {
			return b.RangeM
		}
	}
	return 0
}

func (w *World) tower(id TowerID) *Tower {
	if id == noTower {
		return nil
	}
	return w.towers[id]
}

func (w *World) ue(id UEID) *UE { return w.ues[id] }

// towerIDs returns the live towers in creation order, for deterministic
// distance computation and drain passes.
func (w *World) towerIDs() []TowerID {
	ids := make([]TowerID, 0, len(w.towerOrder))
	for _, id := range w.towerOrder {
		if _, ok := w.towers[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// CreateTower adds a new operational tower at the given meter coordinates.
func (w *World) CreateTower(ip IPAddr, x, y float64) TowerID {
	id := w.nextTower
	w.nextTower++
	t := newTower(id, ip, x, y, w)
	t.setDeltaT(w.deltaT)
	w.towers[id] = t
	w.towerOrder = append(w.towerOrder, id)
	w.recomputeHopLimits()
	return id
}

// CreateUE adds a new unattached UE at the given meter coordinates.
func (w *World) CreateUE(ip IPAddr, x, y float64) UEID {
	id := w.nextUE
	w.nextUE++
	u := newUE(id, ip, x, y, w)
	u.setDeltaT(w.deltaT)
	u.setARQ(w.arqTimeout, w.arqMaxRetx)
	w.ues[id] = u
	w.ueOrder = append(w.ueOrder, id)
	return id
}

// Connect adds a bidirectional backhaul edge between two distinct towers
// (spec.md §4.7). A duplicate or self-connect is a no-op.
func (w *World) Connect(a, b TowerID) {
	if a == b {
		return
	}
	ta, tb := w.tower(a), w.tower(b)
	if ta == nil || tb == nil {
		return
	}
	ta.connectPeer(b)
	tb.connectPeer(a)
}

// Disconnect removes the bidirectional edge between two towers.
func (w *World) Disconnect(a, b TowerID) {
	ta, tb := w.tower(a), w.tower(b)
	if ta != nil {
		ta.disconnectPeer(b)
	}
	if tb != nil {
		tb.disconnectPeer(a)
	}
}

// SetOperational enables/disables a tower. Disabling clears the flag,
// removes every peer edge symmetrically, and detaches every attached UE
// (spec.md §4.7); the tower object itself is retained for re-enable.
func (w *World) SetOperational(id TowerID, operational bool) {
	t := w.tower(id)
	if t == nil {
		return
	}
	if t.Operational == operational {
		return
	}
	t.Operational = operational
	if operational {
		return
	}

	for peer := range t.peers {
		w.Disconnect(id, peer)
	}
	for ueID := range t.attached {
		if u := w.ue(ueID); u != nil {
			u.detachFromTower()
		}
	}
	utils.Logger.Info("tower disabled", zap.Int("tower", int(id)))
}

// DeleteTower removes a tower entirely: detaches its UEs, severs its
// edges, and drops it from the live set.
func (w *World) DeleteTower(id TowerID) {
	t := w.tower(id)
	if t == nil {
		return
	}
	w.SetOperational(id, false)
	delete(w.towers, id)
	w.recomputeHopLimits()
	w.notifyTopologyChange()
}

// DeleteUE removes a UE, detaching it from its tower first.
func (w *World) DeleteUE(id UEID) {
	u := w.ue(id)
	if u == nil {
		return
	}
	u.detachFromTower()
	delete(w.ues, id)
}

// SetUETx sets a UE's traffic-generation configuration.
func (w *World) SetUETx(id UEID, intent TxIntent) {
	if u := w.ue(id); u != nil {
		u.SetIntent(intent)
	}
}

// SetNoise toggles the channel noise model for every future drop decision.
func (w *World) SetNoise(enabled bool) {
	w.channel.noiseEnabled = enabled
}

// SetStepsPerSec updates delta-t for every UE and tower, per spec.md §4.8
// step 1.
func (w *World) SetStepsPerSec(n int) {
	if n < 1 {
		n = 1
	}
	w.deltaT = 1.0 / float64(n)
	for _, t := range w.towers {
		t.setDeltaT(w.deltaT)
	}
	for _, u := range w.ues {
		u.setDeltaT(w.deltaT)
	}
}

// recomputeHopLimits re-broadcasts hop_limit = |towers|+1 to every tower,
// as spec.md §4.5 requires whenever the live tower set changes.
func (w *World) recomputeHopLimits() {
	limit := len(w.towers) + 1
	for _, t := range w.towers {
		t.setHopLimit(limit)
	}
}

// notifyTopologyChange tells every UE to recompute its attachment — called
// whenever the live tower set shrinks outside of the normal per-tick flow.
func (w *World) notifyTopologyChange() {
	for _, u := range w.ues {
		u.updateTowers()
	}
}

// Step advances the simulation by one tick, per spec.md §4.8:
//  1. delta-t is assumed already current (driver calls SetStepsPerSec as
//     needed before stepping);
//  2. materialize each UE's traffic intent;
//  3. stamp t_step and run each UE's step (attach/band/code-rate, ARQ+tx);
//  4. drain towers to exhaustion within the tick;
//  5. snapshot and clear per-tick counters.
func (w *World) Step(noise bool) Snapshot {
	for _, id := range w.ueOrder {
		u := w.ue(id)
		if u == nil {
			continue
		}
		u.materializeIntent()
	}

	for _, id := range w.ueOrder {
		u := w.ue(id)
		if u == nil {
			continue
		}
		u.TStep = w.Tick
		u.step(noise)
	}

	w.drainTowers()

	snap := w.Snapshot()

	for _, t := range w.towers {
		t.clearTxCount()
	}
	for _, u := range w.ues {
		u.clearTxCount()
	}

	w.Tick++
	return snap
}

// drainTowers repeats a full pass over the live towers until none of them
// can transmit, per spec.md §4.8 step 4. The loop terminates because every
// pass that makes progress consumes at least one ingress packet somewhere,
// and total in-flight bits are bounded by the aggregate buffer thresholds.
func (w *World) drainTowers() {
	for {
		progressed := false
		for _, id := range w.towerIDs() {
			t := w.tower(id)
			if t != nil && t.canTransmit() {
				t.step()
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}
