package reflector

import (
	"net"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/network"
	"github.com/dbehnke/reflector-nexus/pkg/peer"
)

// Broadcast sends frame to every peer in peers except sender. A non-empty
// scope restricts delivery to peers on that subchannel. A failed send is
// logged and does not stop delivery to the rest. It returns the number of
// peers the frame was handed to.
func Broadcast(tr network.Transport, peers []*peer.Peer, frame []byte, sender *net.UDPAddr, scope string, log *logger.Logger) int {
	senderKey := peer.AddrKey(sender)
	sent := 0
	for _, p := range peers {
		if p.Key() == senderKey {
			continue
		}
		if scope != "" && p.Subchannel != scope {
			continue
		}
		if err := tr.Send(frame, p.Address); err != nil {
			log.Warn("Failed to relay frame",
				logger.String("callsign", p.Callsign),
				logger.Addr("addr", p.Address),
				logger.Error(err))
			continue
		}
		p.RecordSent(len(frame))
		sent++
	}
	return sent
}
