package reflector

import (
	"errors"
	"strings"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/acl"
	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/peer"
)

// Disconnect removes the earliest registered peer with callsign and sends
// the protocol's disconnect notice when it has one. It reports whether a
// peer was removed.
func (e *Engine) Disconnect(callsign string) bool {
	p := e.registry.RemoveByCallsign(callsign)
	if p == nil {
		e.log.Warn("Disconnect: no such peer", logger.String("callsign", callsign))
		return false
	}

	if notice := e.adapter.DisconnectNotice(); notice != nil {
		if tr, ok := e.running(); ok {
			if err := tr.Send(notice, p.Address); err != nil {
				e.log.Warn("Failed to send disconnect notice", logger.Addr("to", p.Address), logger.Error(err))
			}
		}
	}

	e.log.Info("Peer disconnected by administrator",
		logger.String("callsign", p.Callsign),
		logger.Addr("addr", p.Address))
	e.closeCall(p, time.Now())
	e.rosterChanged()
	return true
}

// Block denies callsign in the access list, persists the list and
// disconnects every peer registered under it
func (e *Engine) Block(callsign string) bool {
	callsign = strings.TrimSpace(callsign)
	if e.acl == nil || callsign == "" {
		return false
	}

	e.acl.AddOrUpdate(acl.Entry{Callsign: callsign, Allowed: false})
	if err := e.acl.Persist(); err != nil {
		e.log.Error("Failed to persist access list", logger.Error(err))
		return false
	}
	e.log.Info("Callsign blocked", logger.String("callsign", callsign))

	for e.registry.FindByCallsign(callsign) != nil && e.Disconnect(callsign) {
	}
	return true
}

// UnBlock allows an existing access list entry again. Unknown callsigns
// are left alone and reported as a failure.
func (e *Engine) UnBlock(callsign string) bool {
	callsign = strings.TrimSpace(callsign)
	if e.acl == nil || callsign == "" {
		return false
	}

	if err := e.acl.SetAllowed(callsign, true); err != nil {
		if errors.Is(err, acl.ErrNotFound) {
			e.log.Warn("UnBlock: callsign not in access list", logger.String("callsign", callsign))
		} else {
			e.log.Error("UnBlock failed", logger.Error(err))
		}
		return false
	}
	if err := e.acl.Persist(); err != nil {
		e.log.Error("Failed to persist access list", logger.Error(err))
		return false
	}
	e.log.Info("Callsign unblocked", logger.String("callsign", callsign))
	return true
}

// Status returns the management view of the engine. The access list is
// included when enforcement is enabled.
func (e *Engine) Status() Status {
	state := "Stopped"
	if _, ok := e.running(); ok {
		state = "Running"
	}

	st := Status{
		Mode:           e.adapter.Mode().String(),
		Status:         state,
		Port:           e.cfg.Port,
		ConnectedPeers: e.registry.Count(),
	}
	if addr, err := e.Addr(); err == nil && addr != nil {
		st.Port = addr.Port
	}
	if e.cfg.ACL && e.acl != nil {
		st.ACL = e.acl.Entries()
	}
	return st
}

// Peers returns a snapshot of the linked peers in registration order
func (e *Engine) Peers() []peer.Info {
	peers := e.registry.Snapshot()
	infos := make([]peer.Info, 0, len(peers))
	for _, p := range peers {
		infos = append(infos, p.Info())
	}
	return infos
}
