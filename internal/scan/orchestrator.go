// Package scan owns the scan lifecycle: it admits discovery requests,
// drives the probe adapter from background jobs, tracks per-scan
// progress, and applies classification and enrichment to device
// records. The in-memory scan table is the only state shared between
// concurrent jobs; everything else flows through the registry.
package scan

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asplund/netasset/internal/classify"
	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/enrich"
	"github.com/asplund/netasset/internal/errors"
	"github.com/asplund/netasset/internal/logging"
	"github.com/asplund/netasset/internal/metrics"
	"github.com/asplund/netasset/internal/probe"
	"github.com/asplund/netasset/internal/registry"
)

const statusPollInterval = 50 * time.Millisecond

// Config holds orchestrator settings.
type Config struct {
	// MaxHosts caps the address count of an admitted range. Discovery
	// jobs have no end-to-end deadline, so the cap is the only guard
	// against a range that would run for hours. Zero disables the cap.
	MaxHosts int `yaml:"max_hosts" json:"max_hosts"`
}

// DefaultConfig returns default orchestrator configuration.
func DefaultConfig() Config {
	return Config{MaxHosts: 65536}
}

// ProgressEvent is published to subscribers after every committed
// progress update for a scan.
type ProgressEvent struct {
	ScanID      uuid.UUID `json:"scan_id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	DeviceCount int       `json:"total_devices"`
}

// Orchestrator sequences discovery and detailed scans. The scan table
// maps scan id to authoritative state; reads take a consistent snapshot
// and writes are serialized per entry under the table lock.
type Orchestrator struct {
	config   Config
	adapter  probe.Adapter
	enricher *enrich.Engine
	store    registry.Store
	logger   *logging.Logger
	metrics  metrics.MetricsRegistry

	mu    sync.RWMutex
	scans map[uuid.UUID]*device.Scan

	subMu       sync.Mutex
	subscribers map[uuid.UUID][]chan ProgressEvent

	jobs sync.WaitGroup
}

// New creates an orchestrator. The scan table starts empty; entries are
// added on submission and kept for the process lifetime so terminal
// states stay queryable.
func New(cfg Config, adapter probe.Adapter, enricher *enrich.Engine,
	store registry.Store, metricsRegistry metrics.MetricsRegistry) *Orchestrator {
	return &Orchestrator{
		config:      cfg,
		adapter:     adapter,
		enricher:    enricher,
		store:       store,
		logger:      logging.Default().WithComponent("orchestrator"),
		metrics:     metricsRegistry,
		scans:       make(map[uuid.UUID]*device.Scan),
		subscribers: make(map[uuid.UUID][]chan ProgressEvent),
	}
}

// SubmitDiscovery validates the range, registers a fresh scan in state
// running with progress 0, and dispatches the discovery job. Validation
// failures reject the request synchronously; no scan record exists for
// a rejected submission.
func (o *Orchestrator) SubmitDiscovery(ctx context.Context, networkRange string) (*device.Scan, error) {
	_, ipnet, err := net.ParseCIDR(networkRange)
	if err != nil {
		return nil, errors.ErrInvalidRange(networkRange)
	}
	if o.config.MaxHosts > 0 && rangeSize(ipnet) > o.config.MaxHosts {
		return nil, errors.NewScanErrorWithTarget(errors.CodeValidation,
			"network range exceeds the configured host cap", networkRange)
	}

	scan := &device.Scan{
		ID:           uuid.New(),
		NetworkRange: ipnet.String(),
		Status:       device.ScanStatusRunning,
		Progress:     0,
		StartedAt:    time.Now().UTC(),
	}

	if err := o.register(scan); err != nil {
		return nil, err
	}

	o.logger.InfoDiscovery("Discovery scan admitted", scan.NetworkRange, "scan_id", scan.ID)
	o.counter("scans_started_total", nil)

	o.jobs.Add(1)
	go o.runDiscovery(context.WithoutCancel(ctx), scan.ID, scan.NetworkRange)

	snapshot := *scan
	return &snapshot, nil
}

// register adds the scan to the table. Ids are generated fresh per
// request, so a collision means a caller reused a scan object; that is
// a programming error and is reported, not resolved.
func (o *Orchestrator) register(scan *device.Scan) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.scans[scan.ID]; exists {
		return errors.ErrDuplicateScan(scan.ID.String())
	}
	o.scans[scan.ID] = scan
	return nil
}

// Status returns a consistent snapshot of a scan's status, progress and
// device count, or a not-found error for an unissued id. Terminal
// states are idempotent to re-query.
func (o *Orchestrator) Status(scanID uuid.UUID) (*device.Scan, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	scan, ok := o.scans[scanID]
	if !ok {
		return nil, errors.ErrScanNotFound(scanID.String())
	}
	snapshot := *scan
	return &snapshot, nil
}

// WaitForCompletion polls a scan until it reaches a terminal state or
// the timeout expires.
func (o *Orchestrator) WaitForCompletion(ctx context.Context, scanID uuid.UUID, timeout time.Duration) (*device.Scan, error) {
	deadline := time.Now().Add(timeout)
	for {
		scan, err := o.Status(scanID)
		if err != nil {
			return nil, err
		}
		if scan.IsTerminal() {
			return scan, nil
		}
		if time.Now().After(deadline) {
			return scan, errors.NewScanErrorWithTarget(errors.CodeTimeout,
				"scan did not complete in time", scanID.String())
		}
		select {
		case <-ctx.Done():
			return scan, ctx.Err()
		case <-time.After(statusPollInterval):
		}
	}
}

// Wait blocks until every in-flight background job has finished.
func (o *Orchestrator) Wait() {
	o.jobs.Wait()
}

// runDiscovery is the discovery background job. Hosts are processed in
// the order the probe reports them; each finalized record bumps the
// committed progress. A probe failure fails the scan but keeps every
// record committed before the failure.
func (o *Orchestrator) runDiscovery(ctx context.Context, scanID uuid.UUID, networkRange string) {
	defer o.jobs.Done()

	hosts, err := o.adapter.DiscoverHosts(ctx, networkRange)
	if err != nil {
		o.logger.ErrorDiscovery("Discovery scan failed", networkRange, err, "scan_id", scanID)
		o.fail(ctx, scanID, err)
		return
	}

	total := len(hosts)
	for processed, host := range hosts {
		d := o.buildDevice(ctx, scanID, host)
		if err := o.store.UpsertDevice(ctx, d); err != nil {
			o.logger.ErrorRegistry("Failed to persist discovered device", err,
				"scan_id", scanID, "ip", d.IPAddress)
			o.fail(ctx, scanID, err)
			return
		}
		o.counter("devices_discovered_total", nil)
		o.commitProgress(scanID, (processed+1)*100/total, processed+1)
	}

	o.complete(ctx, scanID, total)
}

// buildDevice assembles a Device record from one raw discovery result,
// running the hostname and MAC fallbacks and the tier-1 classification.
// Both fallbacks are soft: their failures are absorbed here.
func (o *Orchestrator) buildDevice(ctx context.Context, scanID uuid.UUID, host probe.RawHost) *device.Device {
	d := &device.Device{
		ID:           uuid.New(),
		ScanID:       scanID,
		IPAddress:    host.IP,
		Type:         device.TypeUnknown,
		Status:       device.StatusDown,
		DiscoveredAt: time.Now().UTC(),
		OpenPorts:    []device.OpenPort{},
	}
	if host.Status == device.StatusUp {
		d.Status = device.StatusUp
	}

	hostname := host.Hostname
	if hostname == "" {
		resolved, err := o.adapter.ResolveHostname(ctx, host.IP)
		if err != nil || resolved == "" {
			hostname = device.HostnameUnknown
		} else {
			hostname = resolved
		}
	}
	d.Hostname = &hostname

	if host.MAC != "" {
		mac := host.MAC
		d.MACAddress = &mac
	} else if mac, err := o.adapter.LookupMAC(ctx, host.IP); err == nil && mac != "" {
		d.MACAddress = &mac
	}

	d.Type = classify.ByHostname(hostname)
	return d
}

// SubmitDetailed looks up the device and dispatches a detailed-scan job
// for it. Unknown device ids are rejected synchronously; everything
// that happens inside the job is recorded on the device, not returned.
// Detailed scans for different devices run independently and never
// touch the owning discovery scan's status.
func (o *Orchestrator) SubmitDetailed(ctx context.Context, deviceID uuid.UUID, creds *device.Credentials) (*device.Device, error) {
	d, err := o.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	o.logger.InfoScan("Detailed scan admitted", d.IPAddress,
		"device_id", deviceID, "authenticated", creds != nil)
	o.counter("detailed_scans_started_total", nil)

	o.jobs.Add(1)
	go o.runDetailed(context.WithoutCancel(ctx), d, creds)

	return d, nil
}

// runDetailed is the detailed-scan background job for a single device.
func (o *Orchestrator) runDetailed(ctx context.Context, d *device.Device, creds *device.Credentials) {
	defer o.jobs.Done()

	// Each detailed scan is a fresh attempt; a stale error from a
	// previous run must not survive a successful one.
	d.ScanError = nil

	detail, err := o.adapter.ProbeHost(ctx, d.IPAddress)
	if err != nil {
		msg := err.Error()
		d.ScanError = &msg
		o.finishDetailed(ctx, d, "probe_failed")
		return
	}

	o.applyDetail(d, detail)

	if creds != nil {
		facts, errText := o.enricher.Collect(ctx, d.IPAddress, *creds)
		if errText != "" {
			d.ScanError = &errText
		} else if len(facts) > 0 {
			// Full replace of the facts bundle, not a field-level merge.
			d.HardwareSpecs = facts
			d.Authenticated = true
		}
	}

	o.finishDetailed(ctx, d, "ok")
}

// applyDetail merges deep-probe output into the record and applies the
// tier-2 classification.
func (o *Orchestrator) applyDetail(d *device.Device, detail *probe.HostDetail) {
	if len(detail.OSMatches) > 0 {
		best := detail.OSMatches[0]
		d.OSInfo = &device.OSInfo{
			Name:     best.Name,
			Accuracy: best.Accuracy,
			Type:     best.Type,
			Vendor:   best.Vendor,
			Family:   best.Family,
		}
	}
	if len(detail.OpenPorts) > 0 {
		ports := make([]device.OpenPort, 0, len(detail.OpenPorts))
		for _, p := range detail.OpenPorts {
			ports = append(ports, device.OpenPort{
				Port:    p.Port,
				Service: p.Service,
				Product: p.Product,
				Version: p.Version,
			})
		}
		d.OpenPorts = ports
	}
	d.Type = classify.ByServices(d)
}

// finishDetailed stamps the record and persists it. The timestamp is
// refreshed on every attempt, success or not.
func (o *Orchestrator) finishDetailed(ctx context.Context, d *device.Device, outcome string) {
	now := time.Now().UTC()
	d.LastScanned = &now

	if err := o.store.UpsertDevice(ctx, d); err != nil {
		o.logger.ErrorRegistry("Failed to persist detailed scan result", err,
			"device_id", d.ID, "ip", d.IPAddress)
		return
	}
	o.counter("detailed_scans_total", metrics.Labels{"outcome": outcome})
}

// commitProgress publishes a progress update. Progress never moves
// backwards and writes to terminal scans are dropped, so a straggling
// job update cannot disturb a finished record.
func (o *Orchestrator) commitProgress(scanID uuid.UUID, progress, deviceCount int) {
	o.mu.Lock()
	scan, ok := o.scans[scanID]
	if !ok || scan.IsTerminal() {
		o.mu.Unlock()
		return
	}
	if progress > scan.Progress {
		scan.Progress = progress
	}
	scan.DeviceCount = deviceCount
	event := o.eventLocked(scan)
	o.mu.Unlock()

	o.publish(event)
}

// complete transitions the scan to its terminal completed state and
// hands the history record to the registry.
func (o *Orchestrator) complete(ctx context.Context, scanID uuid.UUID, deviceCount int) {
	now := time.Now().UTC()

	o.mu.Lock()
	scan, ok := o.scans[scanID]
	if !ok || scan.IsTerminal() {
		o.mu.Unlock()
		return
	}
	scan.Status = device.ScanStatusCompleted
	scan.Progress = 100
	scan.DeviceCount = deviceCount
	scan.CompletedAt = &now
	record := *scan
	event := o.eventLocked(scan)
	o.mu.Unlock()

	o.publish(event)
	o.counter("scans_total", metrics.Labels{"status": "completed"})
	o.logger.InfoDiscovery("Discovery scan completed", record.NetworkRange,
		"scan_id", scanID, "devices", deviceCount)

	if err := o.store.InsertScan(ctx, &record); err != nil {
		o.logger.ErrorRegistry("Failed to record scan history", err, "scan_id", scanID)
	}
}

// fail transitions the scan to its terminal failed state, retaining the
// error text. Devices committed before the failure are kept.
func (o *Orchestrator) fail(ctx context.Context, scanID uuid.UUID, cause error) {
	now := time.Now().UTC()
	msg := cause.Error()

	o.mu.Lock()
	scan, ok := o.scans[scanID]
	if !ok || scan.IsTerminal() {
		o.mu.Unlock()
		return
	}
	scan.Status = device.ScanStatusFailed
	scan.CompletedAt = &now
	scan.Error = &msg
	record := *scan
	event := o.eventLocked(scan)
	o.mu.Unlock()

	o.publish(event)
	o.counter("scans_total", metrics.Labels{"status": "failed"})

	if err := o.store.InsertScan(ctx, &record); err != nil {
		o.logger.ErrorRegistry("Failed to record scan history", err, "scan_id", scanID)
	}
}

// Subscribe registers a progress listener for a scan. The returned
// cancel function must be called to release the channel. Events are
// delivered best-effort; a slow consumer misses intermediate updates
// rather than blocking the scan job.
func (o *Orchestrator) Subscribe(scanID uuid.UUID) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)

	o.subMu.Lock()
	o.subscribers[scanID] = append(o.subscribers[scanID], ch)
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		subs := o.subscribers[scanID]
		for i, sub := range subs {
			if sub == ch {
				subs = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
		if len(subs) == 0 {
			delete(o.subscribers, scanID)
		} else {
			o.subscribers[scanID] = subs
		}
	}
	return ch, cancel
}

func (o *Orchestrator) eventLocked(scan *device.Scan) ProgressEvent {
	return ProgressEvent{
		ScanID:      scan.ID,
		Status:      scan.Status,
		Progress:    scan.Progress,
		DeviceCount: scan.DeviceCount,
	}
}

func (o *Orchestrator) publish(event ProgressEvent) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subscribers[event.ScanID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (o *Orchestrator) counter(name string, labels metrics.Labels) {
	if o.metrics != nil {
		o.metrics.Counter(name, labels)
	}
}

// rangeSize returns the number of addresses a CIDR covers, saturating
// at MaxInt for very large prefixes.
func rangeSize(ipnet *net.IPNet) int {
	ones, bits := ipnet.Mask.Size()
	hostBits := bits - ones
	if hostBits >= 31 {
		return int(^uint(0) >> 1)
	}
	return 1 << hostBits
}
