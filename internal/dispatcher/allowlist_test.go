package dispatcher

import "testing"

func TestBaseCommandStripsPathAndArgs(t *testing.T) {
	cases := map[string]string{
		"/usr/sbin/nvram get wan_ipaddr": "nvram",
		"nvram get wan_ipaddr":           "nvram",
		"iptables-save":                  "iptables-save",
		"/bin/cat /proc/uptime":          "cat",
		"":                                "",
	}
	for in, want := range cases {
		if got := baseCommand(in); got != want {
			t.Errorf("baseCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAllowlistMembership(t *testing.T) {
	if !isAllowed("iptables") {
		t.Error("iptables should be allowed")
	}
	if isAllowed("rm") {
		t.Error("rm should not be allowed")
	}
	if !isDiagnostic("cat") {
		t.Error("cat should be diagnostic")
	}
	if isDiagnostic("iptables") {
		t.Error("iptables (mutating) should not be diagnostic")
	}
	if !isAllowed("iptables-restore") || isDiagnostic("iptables-restore") {
		t.Error("iptables-restore should be mutating-only")
	}
}
