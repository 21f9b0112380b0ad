package sim

import "fmt"

// IPAddr is a 32-bit IPv4-shaped address, used for towers and UEs alike.
type IPAddr uint32

// BroadcastIP is the reserved destination meaning "every attached UE".
const BroadcastIP IPAddr = 65535

// String renders an address as dotted decimal, the way the original's
// int_to_ip() did for its console output.
func (a IPAddr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		(a>>24)&0xFF, (a>>16)&0xFF, (a>>8)&0xFF, a&0xFF)
}

// TowerID and UEID are stable handles into a World's maps. Never hold a
// *Tower or *UE across a topology mutation — resolve the handle again.
type TowerID int
type UEID int

const noTower TowerID = -1
