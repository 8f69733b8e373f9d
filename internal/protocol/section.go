package protocol

// ConfigSection names a router subsystem the agent manages. Wire form
// is lowercase.
type ConfigSection string

const (
	SectionWan      ConfigSection = "wan"
	SectionLan      ConfigSection = "lan"
	SectionWifi     ConfigSection = "wifi"
	SectionDhcp     ConfigSection = "dhcp"
	SectionFirewall ConfigSection = "firewall"
	SectionNat      ConfigSection = "nat"
	SectionDns      ConfigSection = "dns"
	SectionIds      ConfigSection = "ids"
	SectionVpn      ConfigSection = "vpn"
	SectionQos      ConfigSection = "qos"
	SectionSystem   ConfigSection = "system"
	// SectionFull is the union of every other section; it expands to the
	// cross product over the other sections during apply.
	SectionFull ConfigSection = "full"
)

// AllSections lists every concrete (non-Full) section, in the order
// Full expands to during a cross-product apply.
var AllSections = []ConfigSection{
	SectionWan, SectionLan, SectionWifi, SectionDhcp, SectionFirewall,
	SectionNat, SectionDns, SectionIds, SectionVpn, SectionQos, SectionSystem,
}
