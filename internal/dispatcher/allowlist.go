package dispatcher

import "strings"

// allowedCommands are the only base commands EXEC may ever run,
// regardless of mode. Anything else is rejected outright.
var allowedCommands = map[string]struct{}{
	"iptables":         {},
	"iptables-save":    {},
	"iptables-restore": {},
	"ip":               {},
	"ifconfig":         {},
	"brctl":            {},
	"nvram":            {},
	"wl":               {},
	"service":          {},
	"dnsmasq":          {},
	"cat":              {},
	"ls":               {},
	"df":               {},
	"free":             {},
	"uptime":           {},
	"uname":            {},
	"ping":             {},
	"traceroute":       {},
	"nslookup":         {},
}

// diagnosticCommands are the read-only subset of allowedCommands that
// shadow mode permits; everything else in allowedCommands requires
// takeover.
var diagnosticCommands = map[string]struct{}{
	"cat":           {},
	"ls":            {},
	"df":            {},
	"free":          {},
	"uptime":        {},
	"uname":         {},
	"ping":          {},
	"traceroute":    {},
	"nslookup":      {},
	"iptables-save": {},
	"ip":            {},
	"ifconfig":      {},
	"nvram":         {},
	"wl":            {},
}

// baseCommand extracts the command name EXEC's allow-list checks
// against: strip any leading path, then take the first whitespace
// token, so "/usr/sbin/nvram get wan_ipaddr" and "nvram get wan_ipaddr"
// are judged identically.
func baseCommand(command string) string {
	stripped := command
	if idx := strings.LastIndex(command, "/"); idx >= 0 {
		stripped = command[idx+1:]
	}
	fields := strings.Fields(stripped)
	if len(fields) == 0 {
		return stripped
	}
	return fields[0]
}

func isAllowed(cmd string) bool {
	_, ok := allowedCommands[cmd]
	return ok
}

func isDiagnostic(cmd string) bool {
	_, ok := diagnosticCommands[cmd]
	return ok
}
