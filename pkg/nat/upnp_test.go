package nat

import "testing"

func TestParseSSDPLocation(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=1800\r\n" +
		"LOCATION: http://192.168.1.1:5000/rootDesc.xml\r\n" +
		"ST: urn:schemas-upnp-org:device:InternetGatewayDevice:1\r\n\r\n"
	loc := parseSSDPLocation([]byte(resp))
	if loc != "http://192.168.1.1:5000/rootDesc.xml" {
		t.Errorf("got %q", loc)
	}
}

func TestParseSSDPLocationMissing(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nST: something\r\n\r\n"
	if loc := parseSSDPLocation([]byte(resp)); loc != "" {
		t.Errorf("expected empty location, got %q", loc)
	}
}

func TestParseSSDPLocationCaseInsensitiveHeader(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nlocation: http://10.0.0.1:49152/desc.xml\r\n\r\n"
	if loc := parseSSDPLocation([]byte(resp)); loc != "http://10.0.0.1:49152/desc.xml" {
		t.Errorf("got %q", loc)
	}
}

func TestFindIGDServicePrefersWANIPConnection2(t *testing.T) {
	dev := upnpDeviceXML{
		ServiceList: []upnpServiceXML{
			{ServiceType: upnpFallbackService, ControlURL: "/ppp"},
			{ServiceType: upnpPreferredService2, ControlURL: "/ip1"},
			{ServiceType: upnpPreferredService1, ControlURL: "/ip2"},
		},
	}
	svc, ok := findIGDService(dev)
	if !ok {
		t.Fatal("expected a service to be found")
	}
	if svc.ServiceType != upnpPreferredService1 {
		t.Errorf("got %s, want %s", svc.ServiceType, upnpPreferredService1)
	}
}

func TestFindIGDServiceWalksNestedDevices(t *testing.T) {
	dev := upnpDeviceXML{
		DeviceList: []upnpDeviceXML{
			{
				ServiceList: []upnpServiceXML{
					{ServiceType: upnpPreferredService2, ControlURL: "/nested"},
				},
			},
		},
	}
	svc, ok := findIGDService(dev)
	if !ok {
		t.Fatal("expected nested service to be found")
	}
	if svc.ControlURL != "/nested" {
		t.Errorf("got %q", svc.ControlURL)
	}
}

func TestFindIGDServiceNoneMatch(t *testing.T) {
	dev := upnpDeviceXML{ServiceList: []upnpServiceXML{{ServiceType: "urn:unrelated:service:1"}}}
	if _, ok := findIGDService(dev); ok {
		t.Fatal("expected no match")
	}
}

func TestResolveControlURLAbsolute(t *testing.T) {
	got, err := resolveControlURL("http://192.168.1.1:5000/rootDesc.xml", "http://elsewhere/ctl")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://elsewhere/ctl" {
		t.Errorf("got %q", got)
	}
}

func TestResolveControlURLRelative(t *testing.T) {
	got, err := resolveControlURL("http://192.168.1.1:5000/rootDesc.xml", "/ctl/WANIPConn")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://192.168.1.1:5000/ctl/WANIPConn" {
		t.Errorf("got %q", got)
	}
}
