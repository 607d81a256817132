package transport

import (
	"errors"
	"net"
	"strconv"
)

// AdvertisableAddrs expands a listen address bound to the wildcard host into
// one "ip:port" per usable interface address. Addresses with a concrete host
// are returned unchanged.
func AdvertisableAddrs(listen string) ([]string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return nil, err
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, err
	}

	if ip := net.ParseIP(host); host != "" && (ip == nil || !ip.IsUnspecified()) {
		return []string{listen}, nil
	}

	ips, err := localIPs()
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, errors.New("could not determine any advertisable IP addresses")
	}

	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.JoinHostPort(ip.String(), port))
	}
	return out, nil
}

// localIPs iterates all network interfaces for valid addresses.
func localIPs() ([]net.IP, error) {
	var ips []net.IP
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, i := range interfaces {
		if i.Flags&net.FlagUp == 0 || i.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := i.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if isValidIP(ip) {
				ips = append(ips, ip)
			}
		}
	}
	return ips, nil
}

// isValidIP filters out Loopback, Multicast, Unspecified, and Link-Local (fe80::) addresses.
func isValidIP(ip net.IP) bool {
	return ip != nil && !ip.IsLoopback() && !ip.IsMulticast() && !ip.IsUnspecified() && !ip.IsLinkLocalUnicast()
}
