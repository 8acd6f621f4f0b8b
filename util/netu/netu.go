// Package netu turns listen addresses into URLs people can click.
package netu

import (
	"net"
	"strconv"
	"strings"
)

// ResolveAddr expands a short listen address (e.g. ":8000") into a full
// URL. Addresses that already carry a scheme pass through unchanged.
func ResolveAddr(addr string) (string, error) {
	if strings.Contains(addr, "://") {
		return addr, nil
	}

	resolved, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return "", err
	}

	host := resolved.IP.String()
	if host == "<nil>" {
		host = "0.0.0.0"
	}

	scheme := "http://"
	if resolved.Port == 443 {
		scheme = "https://"
	}

	url := scheme + host
	if resolved.Port != 80 && resolved.Port != 443 {
		url += ":" + strconv.Itoa(resolved.Port)
	}
	return url, nil
}
