// Package metrics periodically samples host telemetry — CPU, memory,
// temperature, per-interface byte rates, conntrack connection counts —
// and emits a METRICS RpcMessage on every tick.
package metrics

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// monitoredInterfaces are the only interfaces byte-rate telemetry is
// computed for; anything else on the host is ignored.
var monitoredInterfaces = []string{"br0", "eth0"}

// cpuSampleWindow is how far apart the two /proc/stat reads are taken
// when computing instantaneous CPU usage.
const cpuSampleWindow = 100 * time.Millisecond

// Sampler owns the periodic collection loop. Construct with NewSampler
// and run with Run, which blocks until ctx is canceled.
type Sampler struct {
	interval time.Duration
	outbound chan<- protocol.RpcMessage
	log      *zap.Logger

	prevBytes map[string]ifaceBytes
	prevTime  time.Time
}

type ifaceBytes struct {
	rx, tx uint64
}

// NewSampler constructs a Sampler that emits a METRICS message onto
// outbound every interval.
func NewSampler(interval time.Duration, outbound chan<- protocol.RpcMessage, log *zap.Logger) *Sampler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sampler{
		interval:  interval,
		outbound:  outbound,
		log:       log,
		prevBytes: make(map[string]ifaceBytes),
	}
}

// Run ticks every s.interval, collecting and sending one METRICS
// message per tick, until ctx is canceled. A tick missed because the
// previous collection overran is coalesced rather than queued, the
// same missed-tick behavior a Go ticker gives for free.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.prevTime = time.Now()
	s.log.Debug("metrics sampler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("metrics sampler stopped")
			return
		case <-ticker.C:
			msg, err := s.collectOnce(ctx)
			if err != nil {
				s.log.Warn("failed to build metrics payload", zap.Error(err))
				continue
			}
			select {
			case s.outbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// collectOnce takes one sample and builds the RpcMessage to send. It
// is split out from Run so tests can exercise it without a ticker.
func (s *Sampler) collectOnce(ctx context.Context) (protocol.RpcMessage, error) {
	now := time.Now()
	elapsedSecs := now.Sub(s.prevTime).Seconds()

	cpu := readCPU(ctx)
	memory := readMemory()
	temperature := readTemperature(ctx)
	interfaces, newBytes := s.readInterfaces(elapsedSecs)
	connections := readConnections()

	s.prevBytes = newBytes
	s.prevTime = now

	payload := protocol.MetricsPayload{
		Timestamp:   now.Unix(),
		CPU:         cpu,
		Memory:      memory,
		Temperature: temperature,
		Interfaces:  interfaces,
		Connections: connections,
		DNS:         protocol.DnsMetrics{},
	}

	return protocol.New(protocol.MessageMetrics, payload)
}

// Snapshot is a single-shot version of the figures the periodic
// sampler computes, for callers (like a STATUS_REQUEST handler) that
// need an on-demand read rather than the steady ticking stream.
type Snapshot struct {
	CPU         float32
	Memory      float32
	Temperature *float32
	Connections protocol.ConnectionCounts
}

// CollectSnapshot takes one instantaneous reading using the same
// procfs/sysfs algorithms the periodic sampler uses, without needing a
// Sampler instance or its interface-rate history.
func CollectSnapshot(ctx context.Context) Snapshot {
	return Snapshot{
		CPU:         readCPU(ctx),
		Memory:      readMemory(),
		Temperature: readTemperature(ctx),
		Connections: readConnections(),
	}
}

// readFileTrimmed returns the trimmed contents of path, or "" if it
// cannot be read.
func readFileTrimmed(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func readUint64File(path string) (uint64, bool) {
	raw, ok := readFileTrimmed(path)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type cpuSnapshot struct {
	idle, total uint64
	ok          bool
}

// readCPUSnapshot parses the aggregate "cpu " line of /proc/stat.
func readCPUSnapshot() cpuSnapshot {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuSnapshot{}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuSnapshot{}
	}
	return parseCPUStatLine(scanner.Text())
}

// parseCPUStatLine parses a single "cpu ..." line from /proc/stat into
// a cpuSnapshot. Split out from readCPUSnapshot so it can be tested
// without a real /proc/stat.
func parseCPUStatLine(line string) cpuSnapshot {
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuSnapshot{}
	}

	var values []uint64
	for _, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) < 4 {
		return cpuSnapshot{}
	}

	idle := values[3]
	var total uint64
	for _, v := range values {
		total += v
	}
	return cpuSnapshot{idle: idle, total: total, ok: true}
}

// readCPU samples /proc/stat twice, cpuSampleWindow apart, and returns
// the percentage of time spent outside idle between the two samples.
func readCPU(ctx context.Context) float32 {
	before := readCPUSnapshot()
	if !before.ok {
		return 0
	}

	select {
	case <-time.After(cpuSampleWindow):
	case <-ctx.Done():
		return 0
	}

	after := readCPUSnapshot()
	if !after.ok {
		return 0
	}

	totalDelta := satSub(after.total, before.total)
	if totalDelta == 0 {
		return 0
	}
	idleDelta := satSub(after.idle, before.idle)
	busy := satSub(totalDelta, idleDelta)
	return float32(float64(busy) / float64(totalDelta) * 100.0)
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// readMemory returns 1 - MemAvailable/MemTotal as a percentage.
func readMemory() float32 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()
	return parseMeminfo(f)
}

// parseMeminfo computes the memory-usage percentage from a
// /proc/meminfo-formatted reader. Split out from readMemory for tests.
func parseMeminfo(r io.Reader) float32 {
	var total, available uint64
	var haveTotal, haveAvailable bool

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total, haveTotal = parseMeminfoKB(strings.TrimPrefix(line, "MemTotal:"))
		case strings.HasPrefix(line, "MemAvailable:"):
			available, haveAvailable = parseMeminfoKB(strings.TrimPrefix(line, "MemAvailable:"))
		}
		if haveTotal && haveAvailable {
			break
		}
	}

	if !haveTotal || !haveAvailable || total == 0 {
		return 0
	}
	used := satSub(total, available)
	return float32(float64(used) / float64(total) * 100.0)
}

func parseMeminfoKB(s string) (uint64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// readTemperature tries /sys/class/thermal/thermal_zone*/temp first,
// falling back to the Broadcom `wl` utility's phy_tempsense reading.
func readTemperature(ctx context.Context) *float32 {
	if t, ok := readThermalZone(); ok {
		return &t
	}
	if t, ok := readWlTempsense(ctx); ok {
		return &t
	}
	return nil
}

func readThermalZone() (float32, bool) {
	entries, err := os.ReadDir("/sys/class/thermal")
	if err != nil {
		return 0, false
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "thermal_zone") {
			continue
		}
		raw, ok := readFileTrimmed("/sys/class/thermal/" + e.Name() + "/temp")
		if !ok {
			continue
		}
		millideg, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		return float32(millideg) / 1000.0, true
	}
	return 0, false
}

func readWlTempsense(ctx context.Context) (float32, bool) {
	out, err := runCommand(ctx, "wl", "-i", "eth6", "phy_tempsense")
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, false
	}
	raw, err := strconv.ParseFloat(fields[0], 32)
	if err != nil {
		return 0, false
	}
	return float32(raw/2.0 + 20.0), true
}

// readInterfaces computes per-second rx/tx rates for monitoredInterfaces
// using the byte counts from the previous sample.
func (s *Sampler) readInterfaces(elapsedSecs float64) (map[string]protocol.InterfaceRates, map[string]ifaceBytes) {
	rates := make(map[string]protocol.InterfaceRates)
	current := make(map[string]ifaceBytes)

	for _, iface := range monitoredInterfaces {
		base := "/sys/class/net/" + iface + "/statistics/"
		rx, okRx := readUint64File(base + "rx_bytes")
		tx, okTx := readUint64File(base + "tx_bytes")
		if !okRx || !okTx {
			continue
		}
		current[iface] = ifaceBytes{rx: rx, tx: tx}

		var rxRate, txRate uint64
		if prev, ok := s.prevBytes[iface]; ok && elapsedSecs > 0 {
			rxRate = uint64(float64(satSub(rx, prev.rx)) / elapsedSecs)
			txRate = uint64(float64(satSub(tx, prev.tx)) / elapsedSecs)
		}
		rates[iface] = protocol.InterfaceRates{RxRate: rxRate, TxRate: txRate}
	}

	return rates, current
}

// readConnections reports the conntrack table total plus a TCP/UDP
// breakdown. Both sources degrade to zero rather than erroring when
// conntrack isn't loaded.
func readConnections() protocol.ConnectionCounts {
	total, _ := readUint64File("/proc/sys/net/netfilter/nf_conntrack_count")

	tcp, udp := countConntrackProtocols()
	return protocol.ConnectionCounts{Total: uint32(total), TCP: tcp, UDP: udp}
}

func countConntrackProtocols() (tcp, udp uint32) {
	f, err := os.Open("/proc/net/nf_conntrack")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	return parseConntrackProtocols(f)
}

// parseConntrackProtocols counts "tcp"/"udp" entries in a
// /proc/net/nf_conntrack-formatted reader, e.g.:
//
//	ipv4     2 tcp      6 300 ESTABLISHED src=... dst=...
//
// Split out from countConntrackProtocols for tests.
func parseConntrackProtocols(r io.Reader) (tcp, udp uint32) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		switch fields[2] {
		case "tcp":
			tcp++
		case "udp":
			udp++
		}
	}
	return tcp, udp
}
