package presence

import (
	"fmt"
	"net/netip"
	"os"
	"sync"

	"github.com/pg9182/ip2x"

	"github.com/boxnet/boxd/pkg/regionmap"
)

// Geolocator tags addresses with a best-effort region name from an optional
// IP2Location database, the same file-backed-database-manager shape as the
// teacher's ip2xMgr (load once, serve concurrent lookups under an RWMutex).
// A Geolocator with no database loaded is a no-op, so wiring one into a
// Publisher's RecordSource is always safe.
type Geolocator struct {
	mu   sync.RWMutex
	file *os.File
	db   *ip2x.DB
}

// Load opens and validates name as an IP2Location database, replacing any
// previously loaded one. Passing an empty name clears the loaded database.
func (g *Geolocator) Load(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file != nil {
		g.file.Close()
		g.file, g.db = nil, nil
	}
	if name == "" {
		return nil
	}

	f, err := os.Open(name)
	if err != nil {
		return err
	}
	db, err := ip2x.New(f)
	if err != nil {
		f.Close()
		return err
	}
	if p, _ := db.Info(); p != ip2x.IP2Location {
		f.Close()
		return fmt.Errorf("presence: %s is not an ip2location database", name)
	}

	g.file, g.db = f, db
	return nil
}

// Region returns the region name regionmap assigns to ip, or ("", false) if
// no database is loaded or the address is unrecognized.
func (g *Geolocator) Region(ip netip.Addr) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.db == nil {
		return "", false
	}
	rec, err := g.db.Lookup(ip)
	if err != nil {
		return "", false
	}
	region, err := regionmap.GetRegion(ip, rec)
	if err != nil {
		return "", false
	}
	return region, true
}

// TagAddresses returns a tags map with "region" set to the region of the
// first global-scope address in addrs, for merging into a LocationRecord
// before publishing. It returns nil if no region could be determined.
func (g *Geolocator) TagAddresses(addrs []Address) map[string]string {
	for _, a := range addrs {
		if a.Scope != ScopeGlobal {
			continue
		}
		ip, err := netip.ParseAddr(a.IP)
		if err != nil {
			continue
		}
		if region, ok := g.Region(ip); ok {
			return map[string]string{"region": region}
		}
	}
	return nil
}
