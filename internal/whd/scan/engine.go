package scan

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/Infineon/whd-expansion/internal/telemetry"
	"github.com/Infineon/whd-expansion/internal/whd/bus"
	"github.com/Infineon/whd-expansion/internal/whd/codec"
	"github.com/Infineon/whd-expansion/internal/whd/command"
	"github.com/Infineon/whd-expansion/internal/whd/domain"
	"github.com/Infineon/whd-expansion/internal/whd/events"
)

const escanVersion = 1

// Firmware-convention bits carried on the escan event header's Flags
// word.
const (
	fwFlagOffChannel = 1 << 0
	fwFlagBeacon     = 1 << 1
)

// Firmware scan-completion statuses carried on the escan event header's
// Status word.
const (
	fwScanPartial  = 0
	fwScanSuccess  = 1
	fwScanNewScan  = 2
	fwScanNewAssoc = 3
	fwScanAbort    = 4
)

// Request is a scan's caller-supplied parameters.
type Request struct {
	Active   bool
	SSID     string
	BSSID    net.HardwareAddr
	Channels []int
	Band     domain.Band

	// KeepOffChannel disables the default off-channel-result drop
	// behavior; set true only for diagnostic callers that
	// want to see every observation the radio made.
	KeepOffChannel bool
}

// Engine drives one interface's escan lifecycle: issuing the request,
// classifying partial results, and running the completion state
// machine.
type Engine struct {
	ch        *command.Channel
	disp      *events.Dispatcher
	internal  *domain.InternalInfo
	ifaceName string
	bssCfgIdx int

	mu                    sync.Mutex
	active                bool
	handlerID             domain.EventHandlerID
	syncID                uint16
	lastReqKeepOffChannel bool
}

// New builds a scan Engine bound to one interface's command channel.
func New(ch *command.Channel, disp *events.Dispatcher, internal *domain.InternalInfo, ifaceName string, bssCfgIdx int) *Engine {
	return &Engine{ch: ch, disp: disp, internal: internal, ifaceName: ifaceName, bssCfgIdx: bssCfgIdx}
}

// Scan issues an escan request and registers the completion handler,
// invoking cb for each kept partial result and finally with a terminal
// ScanStatus. It returns once the request has been
// accepted by firmware, not once the scan completes.
func (e *Engine) Scan(ctx context.Context, req Request, cb domain.ScanResultCallback) error {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return domain.ErrScanInProgress
	}
	e.syncID++
	syncID := e.syncID
	e.active = true
	e.lastReqKeepOffChannel = req.KeepOffChannel
	e.mu.Unlock()
	e.internal.SetScanCallback(cb)

	id, err := e.disp.RegisterMulti(e.ifaceName, []events.EventType{events.EventEscanResult}, e.handleEscanEvent)
	if err != nil {
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
		return fmt.Errorf("whd/scan: register escan handler: %w", err)
	}
	e.mu.Lock()
	e.handlerID = id
	e.mu.Unlock()

	params := buildEscanParams(req, syncID)
	if _, err := e.ch.Iovar(ctx, "escan", params.Encode(), e.bssCfgIdx, true, 0); err != nil {
		e.teardown()
		return fmt.Errorf("whd/scan: escan start: %w", err)
	}
	return nil
}

// StopScan aborts an in-progress scan by issuing a new escan request with
// EscanActionAbort. The completion handler still fires
// (with ScanAborted) once firmware acknowledges.
func (e *Engine) StopScan(ctx context.Context) error {
	e.mu.Lock()
	active := e.active
	syncID := e.syncID
	e.mu.Unlock()
	if !active {
		return nil
	}
	params := buildEscanParams(Request{}, syncID)
	params.Action = codec.EscanActionAbort
	_, err := e.ch.Iovar(ctx, "escan", params.Encode(), e.bssCfgIdx, true, 0)
	if err != nil {
		return fmt.Errorf("whd/scan: escan abort: %w", err)
	}
	return nil
}

// ScanSynchronous runs a scan to completion and returns the accumulated
// results, blocking until firmware reports SCAN_COMPLETED_SUCCESSFULLY
// or SCAN_ABORTED, or ctx is canceled.
func (e *Engine) ScanSynchronous(ctx context.Context, req Request) ([]domain.ScanResult, error) {
	var results []domain.ScanResult
	done := make(chan struct{})
	var doneOnce sync.Once

	err := e.Scan(ctx, req, func(r *domain.ScanResult, status domain.ScanStatus) {
		if r != nil {
			results = append(results, *r)
		}
		switch status {
		case domain.ScanCompletedSuccessfully, domain.ScanAborted:
			doneOnce.Do(func() { close(done) })
		}
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-done:
		return results, nil
	case <-ctx.Done():
		_ = e.StopScan(context.Background())
		return results, ctx.Err()
	}
}

// handleEscanEvent implements the scan-completion state machine:
// Success deregisters and reports completion, NewScan/
// NewAssoc/Abort deregister and report abort, Partial parses and
// delivers one result (dropping off-channel/malformed records without
// counting them toward the invocation total), any other status code is
// ignored.
func (e *Engine) handleEscanEvent(hdr bus.EventHeader, data []byte) {
	switch hdr.Status {
	case fwScanPartial:
		result, err := parseResult(data, hdr.Flags)
		if err != nil {
			telemetry.ScanDroppedTotal.WithLabelValues(e.ifaceName, "parse_error").Inc()
			return
		}
		if !e.keepOffChannel() && result.Flags&domain.FlagRssiOffChannel != 0 {
			telemetry.ScanDroppedTotal.WithLabelValues(e.ifaceName, "off_channel").Inc()
			return
		}
		telemetry.ScanResultsTotal.WithLabelValues(e.ifaceName).Inc()
		e.deliver(result, domain.ScanIncomplete)
	case fwScanSuccess:
		e.deliver(nil, domain.ScanCompletedSuccessfully)
		e.teardown()
	case fwScanNewScan, fwScanNewAssoc, fwScanAbort:
		e.deliver(nil, domain.ScanAborted)
		e.teardown()
	default:
	}
}

func (e *Engine) keepOffChannel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReqKeepOffChannel
}

func (e *Engine) deliver(result *domain.ScanResult, status domain.ScanStatus) {
	if cb := e.internal.ScanCallback(); cb != nil {
		cb(result, status)
	}
}

func (e *Engine) teardown() {
	e.mu.Lock()
	id := e.handlerID
	e.active = false
	e.handlerID = 0
	e.mu.Unlock()
	if id != 0 {
		_ = e.disp.Deregister(id)
	}
}

// parseResult decodes one escan BSS record into a ScanResult, classifying
// its security posture from the trailing IE blob.
func parseResult(raw []byte, fwFlags uint32) (*domain.ScanResult, error) {
	info, err := codec.DecodeWLBssInfo(raw)
	if err != nil {
		return nil, err
	}
	ies := raw[codec.WLBssInfoLen:]

	sec, secFlags := classifySecurity(ies, info.CapabilityCap)
	band, channel := codec.ParseChanSpec(info.ChanSpec)
	rate := parseHTMaxRate(ies)

	result := &domain.ScanResult{
		SSID:            string(info.SSID[:info.SSIDLen]),
		BSSID:           append(net.HardwareAddr(nil), info.BSSID[:]...),
		Band:            band,
		Channel:         channel,
		SignalDBM:       int(info.RSSI),
		BSSType:         domain.BSSTypeInfrastructure,
		Security:        sec,
		MaxDataRateKbps: rate,
		RawIEs:          append([]byte(nil), ies...),
		Flags:           secFlags,
	}
	if cc, ok := parseCountry(ies); ok {
		result.CountryCode = cc
		result.HasCountry = true
	}
	if fwFlags&fwFlagOffChannel != 0 {
		result.Flags |= domain.FlagRssiOffChannel
	}
	if fwFlags&fwFlagBeacon != 0 {
		result.Flags |= domain.FlagBeacon
	}
	return result, nil
}

func buildEscanParams(req Request, syncID uint16) *codec.WLEscanParams {
	p := &codec.WLEscanParams{
		Version: escanVersion,
		Action:  codec.EscanActionStart,
		SyncID:  syncID,
	}
	if !req.Active {
		p.ScanType = 1
	}
	if len(req.SSID) > 0 {
		p.SSIDLen = uint8(len(req.SSID))
		copy(p.SSID[:], req.SSID)
	}
	if len(req.BSSID) == 6 {
		copy(p.BSSID[:], req.BSSID)
	} else {
		for i := range p.BSSID {
			p.BSSID[i] = 0xff
		}
	}
	for _, ch := range req.Channels {
		p.ChannelList = append(p.ChannelList, codec.BuildChanSpec(ch, req.Band))
	}
	return p
}
