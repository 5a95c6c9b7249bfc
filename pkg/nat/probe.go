package nat

import (
	"context"
	"net/netip"
)

// Probe runs all three backends once each (establish then immediately
// release), returning a report per backend, for the admin channel's
// nat-probe command (spec.md §4.6). gatewayOverride may be invalid (zero
// value) to use automatic discovery.
func Probe(ctx context.Context, localIP netip.Addr, internalPort uint16, gatewayOverride netip.Addr) []ProbeReport {
	if skipRequested() {
		return []ProbeReport{{Backend: BackendUPnP, Status: "skipped"}, {Backend: BackendPCP, Status: "skipped"}, {Backend: BackendNATPMP, Status: "skipped"}}
	}

	gw := gatewayOverride
	var gwErr error
	if !gw.IsValid() {
		gw, gwErr = DiscoverGateway()
	}

	reports := make([]ProbeReport, 0, 3)
	reports = append(reports, probeUPnP(ctx, localIP, internalPort))
	if gwErr != nil {
		reports = append(reports,
			ProbeReport{Backend: BackendPCP, Status: "error", Error: gwErr.Error()},
			ProbeReport{Backend: BackendNATPMP, Status: "error", Error: gwErr.Error()},
		)
		return reports
	}
	reports = append(reports, probePCP(gw, internalPort))
	reports = append(reports, probeNATPMP(gw, internalPort))
	return reports
}

func probeUPnP(ctx context.Context, localIP netip.Addr, internalPort uint16) ProbeReport {
	client := &Client{}
	handle, dev, err := client.acquireUPnP(ctx, localIP, internalPort)
	if err != nil {
		return ProbeReport{Backend: BackendUPnP, Status: "error", Error: err.Error()}
	}
	releaseCtx, cancel := context.WithTimeout(ctx, ReceiveTimeout)
	defer cancel()
	_ = client.releaseUPnP(releaseCtx, dev.ControlURL, dev.ServiceType, handle.ExternalPort)

	return ProbeReport{
		Backend:      BackendUPnP,
		Status:       "ok",
		ExternalPort: handle.ExternalPort,
		Service:      handle.Service,
		LifetimeS:    handle.LifetimeS,
	}
}

func probePCP(gw netip.Addr, internalPort uint16) ProbeReport {
	handle, peerState, err := acquirePCP(gw, internalPort)
	if err != nil {
		return ProbeReport{Backend: BackendPCP, Status: "error", Gateway: gw.String(), Error: err.Error()}
	}
	_ = deletePCP(gw, internalPort)

	rep := ProbeReport{
		Backend:      BackendPCP,
		Status:       "ok",
		ExternalPort: handle.ExternalPort,
		LifetimeS:    handle.LifetimeS,
		Gateway:      gw.String(),
		PeerState:    peerState,
	}
	if handle.ExternalIPv4.IsValid() {
		rep.ExternalIPv4 = handle.ExternalIPv4.String()
	}
	return rep
}

func probeNATPMP(gw netip.Addr, internalPort uint16) ProbeReport {
	handle, err := acquireNATPMP(gw, internalPort)
	if err != nil {
		return ProbeReport{Backend: BackendNATPMP, Status: "error", Gateway: gw.String(), Error: err.Error()}
	}
	_ = deleteNATPMP(gw, internalPort)

	return ProbeReport{
		Backend:      BackendNATPMP,
		Status:       "ok",
		ExternalPort: handle.ExternalPort,
		LifetimeS:    handle.LifetimeS,
		Gateway:      gw.String(),
	}
}
