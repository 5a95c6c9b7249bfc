package nat

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	ssdpMulticastAddr = "239.255.255.250:1900"
	ssdpSearchTarget  = "urn:schemas-upnp-org:device:InternetGatewayDevice:1"

	upnpPreferredService1 = "urn:schemas-upnp-org:service:WANIPConnection:2"
	upnpPreferredService2 = "urn:schemas-upnp-org:service:WANIPConnection:1"
	upnpFallbackService   = "urn:schemas-upnp-org:service:WANPPPConnection:1"
)

// Client is a small HTTP client with per-request timeouts, the same shape
// as the teacher's pkg/eax.Client, reused here for UPnP device description
// fetches and SOAP calls instead of GraphQL queries.
type Client struct {
	HTTP *http.Client
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

type upnpDevice struct {
	ControlURL  string
	ServiceType string
}

// discoverUPnPLocation sends an SSDP M-SEARCH over multicast and returns
// the LOCATION header of the first InternetGatewayDevice response
// (spec.md §4.6 step 1).
func discoverUPnPLocation(ctx context.Context) (string, error) {
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return "", fmt.Errorf("nat: listen for ssdp: %w", err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	dst, err := net.ResolveUDPAddr("udp4", ssdpMulticastAddr)
	if err != nil {
		return "", err
	}

	req := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 2\r\n" +
		"ST: " + ssdpSearchTarget + "\r\n\r\n"

	if _, err := pc.WriteTo([]byte(req), nil, dst); err != nil {
		return "", fmt.Errorf("nat: send ssdp m-search: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(ReceiveTimeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return "", fmt.Errorf("nat: no ssdp response: %w", err)
		}
		loc := parseSSDPLocation(buf[:n])
		if loc != "" {
			return loc, nil
		}
	}
}

func parseSSDPLocation(resp []byte) string {
	for _, line := range strings.Split(string(resp), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "LOCATION") {
			return strings.TrimSpace(value[strings.IndexAny(value, "htHT"):])
		}
	}
	return ""
}

// xml description shapes, trimmed to the fields we need.
type upnpDeviceDescription struct {
	Device upnpDeviceXML `xml:"device"`
}

type upnpDeviceXML struct {
	DeviceList  []upnpDeviceXML    `xml:"deviceList>device"`
	ServiceList []upnpServiceXML   `xml:"serviceList>service"`
}

type upnpServiceXML struct {
	ServiceType string `xml:"serviceType"`
	ControlURL  string `xml:"controlURL"`
}

func (c *Client) fetchIGDControlURL(ctx context.Context, location string) (upnpDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, DeviceDescriptionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return upnpDevice{}, err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return upnpDevice{}, fmt.Errorf("nat: fetch device description: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return upnpDevice{}, err
	}

	var desc upnpDeviceDescription
	if err := xml.Unmarshal(body, &desc); err != nil {
		return upnpDevice{}, fmt.Errorf("nat: parse device description: %w", err)
	}

	if svc, ok := findIGDService(desc.Device); ok {
		base, err := resolveControlURL(location, svc.ControlURL)
		if err != nil {
			return upnpDevice{}, err
		}
		return upnpDevice{ControlURL: base, ServiceType: svc.ServiceType}, nil
	}
	return upnpDevice{}, fmt.Errorf("nat: no WANIPConnection/WANPPPConnection service found")
}

// findIGDService walks the device tree depth-first, preferring
// WANIPConnection:2, then :1, then WANPPPConnection:1 (spec.md §4.6).
func findIGDService(d upnpDeviceXML) (upnpServiceXML, bool) {
	var byType = map[string]upnpServiceXML{}
	var walk func(upnpDeviceXML)
	walk = func(d upnpDeviceXML) {
		for _, s := range d.ServiceList {
			if _, exists := byType[s.ServiceType]; !exists {
				byType[s.ServiceType] = s
			}
		}
		for _, child := range d.DeviceList {
			walk(child)
		}
	}
	walk(d)

	for _, t := range []string{upnpPreferredService1, upnpPreferredService2, upnpFallbackService} {
		if s, ok := byType[t]; ok {
			return s, true
		}
	}
	return upnpServiceXML{}, false
}

func resolveControlURL(base, controlURL string) (string, error) {
	if strings.HasPrefix(controlURL, "http://") || strings.HasPrefix(controlURL, "https://") {
		return controlURL, nil
	}
	idx := strings.Index(base[len("http://"):], "/")
	if idx < 0 {
		return base + controlURL, nil
	}
	host := base[:len("http://")+idx]
	if !strings.HasPrefix(controlURL, "/") {
		controlURL = "/" + controlURL
	}
	return host + controlURL, nil
}

const soapAddPortMappingTemplate = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body><u:AddPortMapping xmlns:u="%s">
<NewRemoteHost></NewRemoteHost>
<NewExternalPort>%d</NewExternalPort>
<NewProtocol>UDP</NewProtocol>
<NewInternalPort>%d</NewInternalPort>
<NewInternalClient>%s</NewInternalClient>
<NewEnabled>1</NewEnabled>
<NewPortMappingDescription>boxd</NewPortMappingDescription>
<NewLeaseDuration>%d</NewLeaseDuration>
</u:AddPortMapping></s:Body></s:Envelope>`

const soapDeletePortMappingTemplate = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body><u:DeletePortMapping xmlns:u="%s">
<NewRemoteHost></NewRemoteHost>
<NewExternalPort>%d</NewExternalPort>
<NewProtocol>UDP</NewProtocol>
</u:DeletePortMapping></s:Body></s:Envelope>`

func (c *Client) soapCall(ctx context.Context, controlURL, serviceType, action, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL, bytes.NewReader([]byte(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, serviceType, action))

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("nat: soap %s: %w", action, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("nat: soap %s: status %s", action, resp.Status)
	}
	return nil
}

// acquireUPnP discovers an IGD and requests a UDP port mapping
// (spec.md §4.6 step 1). It returns the resolved device alongside the
// handle so the caller can release the mapping later without re-discovering.
func (c *Client) acquireUPnP(ctx context.Context, localIP netip.Addr, port uint16) (MappingHandle, upnpDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, ReceiveTimeout)
	defer cancel()

	location, err := discoverUPnPLocation(ctx)
	if err != nil {
		return MappingHandle{}, upnpDevice{}, err
	}
	dev, err := c.fetchIGDControlURL(ctx, location)
	if err != nil {
		return MappingHandle{}, upnpDevice{}, err
	}

	body := fmt.Sprintf(soapAddPortMappingTemplate, dev.ServiceType, port, port, localIP, 3600)
	if err := c.soapCall(ctx, dev.ControlURL, dev.ServiceType, "AddPortMapping", body); err != nil {
		return MappingHandle{}, upnpDevice{}, err
	}

	return MappingHandle{
		Backend:      BackendUPnP,
		ExternalPort: port,
		Service:      dev.ServiceType,
		LifetimeS:    3600,
	}, dev, nil
}

// releaseUPnP issues DeletePortMapping for a previously acquired mapping.
func (c *Client) releaseUPnP(ctx context.Context, controlURL, serviceType string, port uint16) error {
	body := fmt.Sprintf(soapDeletePortMappingTemplate, serviceType, port)
	return c.soapCall(ctx, controlURL, serviceType, "DeletePortMapping", body)
}
