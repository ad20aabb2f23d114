package net

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_sharedboard._tcp"

// Service is one host found on the LAN.
type Service struct {
	Instance  string
	Addr      string
	Code      string
	Transport string
	Codec     string
}

// Link is the share link that joins this service.
func (s Service) Link() (ShareLink, error) {
	host, port, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return ShareLink{}, err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return ShareLink{}, err
	}
	return ShareLink{Host: host, Port: p, Code: s.Code, Transport: s.Transport, Codec: s.Codec}, nil
}

// Advertise announces a hosted session until the server is shut down.
func Advertise(instance, code, transport, codec string, port int) (*mdns.Server, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}
	info := []string{"code=" + code, "transport=" + transport, "codec=" + codec}
	ips := []net.IP{net.ParseIP(GetOutgoingIP())}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, ips, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Browse lists the sessions that answer within timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Service, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan error, 1)
	go func() {
		done <- mdns.Query(&mdns.QueryParam{Service: ServiceType, Timeout: timeout, Entries: entries})
	}()

	var found []Service
	seen := make(map[string]bool)
	add := func(e *mdns.ServiceEntry) {
		svc, ok := serviceFromEntry(e)
		if !ok || seen[svc.Addr+"/"+svc.Code] {
			return
		}
		seen[svc.Addr+"/"+svc.Code] = true
		found = append(found, svc)
	}
	for {
		select {
		case e := <-entries:
			add(e)
		case err := <-done:
			for {
				select {
				case e := <-entries:
					add(e)
				default:
					if err != nil {
						return found, fmt.Errorf("mDNS query: %w", err)
					}
					return found, nil
				}
			}
		case <-ctx.Done():
			return found, ctx.Err()
		}
	}
}

func serviceFromEntry(e *mdns.ServiceEntry) (Service, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Service{}, false
	}
	svc := Service{
		Instance:  strings.TrimSuffix(strings.TrimSuffix(e.Name, "."), "."+ServiceType+".local"),
		Addr:      net.JoinHostPort(e.AddrV4.String(), strconv.Itoa(e.Port)),
		Transport: TransportWS,
		Codec:     "json",
	}
	for _, field := range e.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "code":
			svc.Code = value
		case "transport":
			svc.Transport = value
		case "codec":
			svc.Codec = value
		}
	}
	return svc, svc.Code != ""
}

// FindCode picks the service hosting code, ignoring case.
func FindCode(services []Service, code string) (Service, bool) {
	for _, s := range services {
		if strings.EqualFold(s.Code, code) {
			return s, true
		}
	}
	return Service{}, false
}
