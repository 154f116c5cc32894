package util

import (
	"net"
	"os"
	"runtime"
	"strings"
)

// SystemInfo describes the host the agent runs on. It is sent at registration.
type SystemInfo struct {
	OS        string
	OSVersion string
	Arch      string
	Hostname  string
}

// GetSystemInfo collects host details. Missing pieces are left empty.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
	info.Hostname, _ = os.Hostname()
	if runtime.GOOS == "linux" {
		if data, err := os.ReadFile("/etc/os-release"); err == nil {
			info.OSVersion = parseOSRelease(string(data))
		}
	}
	return info
}

// Platform renders "os/arch" with the distribution name when known.
func (s SystemInfo) Platform() string {
	p := s.OS + "/" + s.Arch
	if s.OSVersion != "" {
		p += " (" + s.OSVersion + ")"
	}
	return p
}

func parseOSRelease(data string) string {
	var name, version string
	for _, line := range strings.Split(data, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		val = strings.Trim(val, `"`)
		switch key {
		case "PRETTY_NAME":
			return val
		case "NAME":
			name = val
		case "VERSION":
			version = val
		}
	}
	return strings.TrimSpace(name + " " + version)
}

// LocalIP returns the source address the host would use for outbound traffic,
// falling back to the first non-loopback IPv4 interface address.
func LocalIP() string {
	if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.IP.String()
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return ""
}
