package sim

// TowerSnapshot is one tower's read-only per-tick metrics (spec.md §6).
type TowerSnapshot struct {
	ID            TowerID
	IPAddr        IPAddr
	Operational   bool
	AttachedUEs   int
	LastTxBytes   int
	BER           float64
	IngressQueued int
}

// UESnapshot is one UE's read-only per-tick metrics (spec.md §6).
type UESnapshot struct {
	ID             UEID
	IPAddr         IPAddr
	CurrentTowerIP IPAddr
	Band           string
	CodeRate       float64
	LastTxBytes    int
	BER            float64
	QueueDepth     int
}

// Snapshot is the full-world state published once per tick, the payload the
// telemetry server streams to subscribers.
type Snapshot struct {
	Tick   int
	Towers []TowerSnapshot
	UEs    []UESnapshot
}

// Snapshot captures every tower's and UE's current read-only metrics, in
// creation order for deterministic output.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{Tick: w.Tick}

	for _, id := range w.towerIDs() {
		t := w.towers[id]
		snap.Towers = append(snap.Towers, TowerSnapshot{
			ID:            t.ID,
			IPAddr:        t.IPAddr,
			Operational:   t.Operational,
			AttachedUEs:   len(t.attached),
			LastTxBytes:   t.LastTxBytes(),
			BER:           t.BER(),
			IngressQueued: len(t.ingress),
		})
	}

	for _, id := range w.ueOrder {
		u, ok := w.ues[id]
		if !ok {
			continue
		}
		snap.UEs = append(snap.UEs, UESnapshot{
			ID:             u.ID,
			IPAddr:         u.IPAddr,
			CurrentTowerIP: u.CurrentTowerIP(),
			Band:           u.Band,
			CodeRate:       u.CodeRate,
			LastTxBytes:    u.LastTxBytes(),
			BER:            u.BER(),
			QueueDepth:     len(u.sendQueue),
		})
	}

	return snap
}
