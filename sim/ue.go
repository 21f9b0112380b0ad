package sim

import (
	"math/rand"

	"go.uber.org/zap"
	"towersim/utils"
)

// TxMode selects how a UE materializes outbound traffic each tick, folding
// the original's dynamically-injected tx_target_ip/mode attributes into a
// typed configuration per spec.md §9's re-architecture cue.
type TxMode int

const (
	TxNone TxMode = iota
	TxFixed
	TxRandom
	TxMax
)

// TxIntent is a UE's current traffic-generation configuration.
type TxIntent struct {
	Mode   TxMode
	NBytes int
	DstIP  IPAddr
}

// handover hysteresis gates (spec.md §4.3): only the high and mid upgrade
// thresholds are scaled; low has no tier above it to guard against.
const (
	highHysteresis = 0.7
	midHysteresis  = 0.9
)

// UE is a mobile endpoint attached to at most one tower at a time.
type UE struct {
	ID     UEID
	IPAddr IPAddr
	X, Y   float64

	currentTower TowerID
	Band         string
	MaxRange     float64
	CodeRate     float64
	MaxDataRate  float64 // bits/sec, 0 when unattached
	CurrentDist  float64

	sendQueue    []Packet // FIFO: index 0 is oldest/head
	queueBits    int
	bufferThresh int

	TStep       int
	arqTimeout  int
	maxRetx     int
	packetNum   uint16

	deltaT float64

	Intent TxIntent

	txBytesTick int
	nTxBytes    int
	totalBitTx  float64
	bitErrors   float64
	ber         float64

	rng   *rand.Rand
	world *World
}

func newUE(id UEID, ip IPAddr, x, y float64, w *World) *UE {
	return &UE{
		ID:           id,
		IPAddr:       ip,
		X:            x,
		Y:            y,
		currentTower: noTower,
		CodeRate:     0.9,
		bufferThresh: 1e9,
		arqTimeout:   5,
		maxRetx:      3,
		deltaT:       0.5,
		totalBitTx:   1,
		rng:          rand.New(rand.NewSource(int64(id) + 1)),
		world:        w,
	}
}

// CurrentTowerIP reports the attached tower's address, or 0 when unattached.
func (u *UE) CurrentTowerIP() IPAddr {
	if t := u.world.tower(u.currentTower); t != nil {
		return t.IPAddr
	}
	return 0
}

func (u *UE) setDeltaT(dt float64) { u.deltaT = dt }

// setARQ configures the ARQ timeout and retry cap. maxRetx=0 disables ARQ.
func (u *UE) setARQ(timeoutTicks, maxRetx int) {
	u.arqTimeout = timeoutTicks
	u.maxRetx = maxRetx
}

// SetIntent sets what traffic this UE will generate on upcoming ticks.
func (u *UE) SetIntent(intent TxIntent) { u.Intent = intent }

// detachFromTower clears attachment state and releases this UE's slot on
// its former tower's band occupancy, mirroring update_towers()/
// connect_to_best_tower()'s "no towers" branch in ue.py.
func (u *UE) detachFromTower() {
	if t := u.world.tower(u.currentTower); t != nil {
		t.detach(u)
	}
	u.currentTower = noTower
	u.Band = ""
	u.MaxRange = 0
	u.MaxDataRate = 0
}

// updateTowers is called by World when a tower is deleted. It detaches the UE
// only when no towers remain; it does not recompute attachment itself, which
// happens on the UE's next step. Connect, Disconnect and SetOperational do not
// call it.
func (u *UE) updateTowers() {
	if len(u.world.towers) == 0 {
		u.detachFromTower()
	}
}

// recomputeAttachment runs spec.md §4.3: find the nearest tower, select a
// band (with handover hysteresis), and attach/detach as needed.
func (u *UE) recomputeAttachment() {
	var ids []TowerID
	for _, id := range u.world.towerIDs() {
		if u.world.towers[id].Operational {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		u.detachFromTower()
		return
	}

	distances := computeDistances(u.world.towers, ids, u.X, u.Y)
	best, ok := nearest(distances, &u.world.tieBreak)
	if !ok {
		u.detachFromTower()
		return
	}
	u.CurrentDist = best.dist

	handover := best.id != u.currentTower

	var band string
	var rangeM float64
	if handover {
		band, rangeM = u.world.selectBandHysteresis(best.dist)
	} else {
		band, rangeM = u.world.selectBandRaw(best.dist)
	}

	if band == "" {
		if u.currentTower != noTower {
			utils.Logger.Info("UE lost coverage",
				zap.Int("ue", int(u.ID)), zap.Int("tower", int(u.currentTower)))
		}
		u.detachFromTower()
		return
	}

	if handover {
		u.detachFromTower()
		u.currentTower = best.id
		u.Band = band
		u.MaxRange = rangeM
		u.world.tower(best.id).attach(u)
		return
	}

	if band != u.Band {
		t := u.world.tower(u.currentTower)
		if t.bandOccupancy[u.Band] > 0 {
			t.bandOccupancy[u.Band]--
		}
		u.Band = band
		u.MaxRange = rangeM
		t.bandOccupancy[u.Band]++
		t.recomputeRates()
	}
}

// selectBandHysteresis applies the 0.7/0.9 upgrade gates used only when the
// best tower differs from the UE's current one (spec.md §4.3).
func (w *World) selectBandHysteresis(d float64) (string, float64) {
	high, mid, low := w.bandRange("high"), w.bandRange("mid"), w.bandRange("low")
	switch {
	case d <= high*highHysteresis:
		return "high", high
	case d <= mid*midHysteresis:
		return "mid", mid
	case d <= low:
		return "low", low
	default:
		return "", 0
	}
}

// selectBandRaw applies the unscaled thresholds used when the UE is
// re-evaluating its band on the tower it is already attached to.
func (w *World) selectBandRaw(d float64) (string, float64) {
	high, mid, low := w.bandRange("high"), w.bandRange("mid"), w.bandRange("low")
	switch {
	case d <= high:
		return "high", high
	case d <= mid:
		return "mid", mid
	case d <= low:
		return "low", low
	default:
		return "", 0
	}
}

// setCodeRate runs the piecewise code-rate function from spec.md §4.3.
func (u *UE) setCodeRate() {
	if u.currentTower == noTower || u.MaxRange == 0 {
		u.CodeRate = 0.9
		return
	}
	ratio := u.CurrentDist / u.MaxRange
	switch {
	case ratio <= 0.3:
		u.CodeRate = 0.9
	case ratio <= 0.7:
		u.CodeRate = 2.0 / 3.0
	default:
		u.CodeRate = 0.5
	}
}

// materializeIntent enqueues this tick's traffic per spec.md §4.8 step 2.
func (u *UE) materializeIntent() {
	switch u.Intent.Mode {
	case TxNone:
		return
	case TxFixed:
		u.enqueueBytes(u.Intent.NBytes, u.Intent.DstIP)
	case TxRandom:
		n := 1 + u.rng.Intn(65535)
		u.enqueueBytes(n, u.Intent.DstIP)
	case TxMax:
		n := int(u.MaxDataRate * u.CodeRate * u.deltaT / 8)
		if n > 0 {
			u.enqueueBytes(n, u.Intent.DstIP)
		}
	}
}

// enqueueBytes fragments an n-byte send into DATA packets of up to
// maxFragmentBytes each, enqueueing only while bufferThresh allows.
func (u *UE) enqueueBytes(n int, dst IPAddr) {
	remaining := n
	for remaining > 0 {
		fragSize := remaining
		if fragSize > maxFragmentBytes {
			fragSize = maxFragmentBytes
		}
		payload := defaultScratchPool.get(fragSize)

		pkt := newDataFragment(u.TStep, u.packetNum, u.IPAddr, dst, payload)
		bits := pkt.Bits()
		defaultScratchPool.put(payload) // encodeFrame copied payload into pkt.Bytes

		if u.queueBits+bits > u.bufferThresh {
			utils.Logger.Warn("UE send queue buffer overflow",
				zap.Int("ue", int(u.ID)))
			return
		}

		u.sendQueue = append(u.sendQueue, pkt)
		u.queueBits += bits
		u.packetNum++

		remaining -= fragSize
	}
}

// step runs one UE tick: ARQ/transmit against the last tick's attachment,
// then recompute attachment, band, and code rate for the next tick.
func (u *UE) step(noise bool) {
	u.transmit(noise)

	if len(u.world.towers) > 0 {
		u.recomputeAttachment()
		u.setCodeRate()
	}

	if u.totalBitTx > 0 {
		u.ber = u.bitErrors / u.totalBitTx
	}
}

// transmit implements spec.md §4.6: ARQ timeout/retry on the head packet,
// then an attempt to send it if a tower is attached and the bit budget
// allows. Sending never removes the head; only an ACK or the max-retx drop
// does.
func (u *UE) transmit(noise bool) {
	u.txBytesTick = 0

	if len(u.sendQueue) == 0 {
		return
	}

	head := &u.sendQueue[0]

	if head.Kind == KindData && u.maxRetx > 0 && head.DstIP != BroadcastIP {
		if u.TStep-head.TStep >= u.arqTimeout {
			head.RetxCount++
			head.TStep = u.TStep

			if head.RetxCount > u.maxRetx {
				dropped := u.sendQueue[0]
				u.sendQueue = u.sendQueue[1:]
				u.queueBits -= dropped.Bits()
				utils.Logger.Info("UE ARQ max retx exceeded, packet dropped",
					zap.Int("ue", int(u.ID)), zap.Int("packet_num", int(dropped.PacketNum)))
				return
			}
		}
	}

	tower := u.world.tower(u.currentTower)
	if tower == nil {
		return
	}

	bitBudget := u.MaxDataRate * u.deltaT * u.CodeRate
	if float64(head.Bits()) > bitBudget {
		return
	}

	if !u.world.channel.drop(u.CurrentDist, u.MaxRange, u.CodeRate) {
		tower.receive(*head)
	} else if u.MaxRange > 0 {
		u.bitErrors += bitErrors(head.Bits(), u.CurrentDist, u.MaxRange)
	}

	u.txBytesTick += len(head.Bytes)
	u.nTxBytes += len(head.Bytes)
	u.totalBitTx += float64(head.Bits())
}

// receiveFromTower handles an inbound packet delivered by the attached
// tower (spec.md §4.6): DATA triggers an ACK back through the tower, ACK
// removes the matching queued DATA packet.
func (u *UE) receiveFromTower(p Packet) {
	if p.Kind == KindData {
		ack := newACK(u.TStep, p, u.IPAddr)
		if t := u.world.tower(u.currentTower); t != nil {
			t.receive(ack)
		}
		return
	}

	for i, queued := range u.sendQueue {
		if queued.Kind == KindData && queued.PacketNum == p.PacketNum {
			u.sendQueue = append(u.sendQueue[:i], u.sendQueue[i+1:]...)
			u.queueBits -= queued.Bits()
			return
		}
	}
}

// clearTxCount resets the per-tick TX counters, called by the driver.
func (u *UE) clearTxCount() {
	u.nTxBytes = 0
	u.txBytesTick = 0
}

// Jitter relocates a UE to a uniformly random point inside [-halfW,halfW] x
// [-halfH,halfH] — the driver-triggered analogue of ue.py's move(), kept out
// of Step per SPEC_FULL.md §9.
func (u *UE) Jitter(halfW, halfH float64) {
	u.X = (u.rng.Float64()*2 - 1) * halfW
	u.Y = (u.rng.Float64()*2 - 1) * halfH
}

// Read-only metrics per spec.md §6.
func (u *UE) LastTxBytes() int { return u.nTxBytes }
func (u *UE) BER() float64     { return u.ber }
