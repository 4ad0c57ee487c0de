package pcp

import "nearby/wire"

// BwuEventType aliases wire.BwuEventType. The five-event bandwidth-upgrade
// negotiation sequence spec §4.6 describes has to be owned by the wire
// codec already (it is encoded directly into a frame field), so this
// package reuses that definition instead of declaring a second, parallel
// enum that could drift out of sync with it.
type BwuEventType = wire.BwuEventType

const (
	BwuUnknown                 = wire.BwuUnknown
	BwuUpgradePathAvailable    = wire.BwuUpgradePathAvailable
	BwuClientIntroduction      = wire.BwuClientIntroduction
	BwuLastWriteToPriorChannel = wire.BwuLastWriteToPriorChannel
	BwuSafeToClosePriorChannel = wire.BwuSafeToClosePriorChannel
	BwuUpgradeFailure          = wire.BwuUpgradeFailure
)
