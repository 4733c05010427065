package dnsinfo

import (
	"strings"

	"github.com/sgerhart/webby/internal/model"
)

// FindZone returns the most specific zone whose name is a suffix of domain.
// Among equally long matches the first one in zones wins.
func FindZone(domain string, zones []model.Zone) (model.Zone, error) {
	var best model.Zone
	found := false

	for _, zone := range zones {
		if zone.Name == "" || !strings.HasSuffix(domain, zone.Name) {
			continue
		}
		if !found || len(zone.Name) > len(best.Name) {
			best = zone
			found = true
		}
	}

	if !found {
		return model.Zone{}, model.NewZoneNotFoundError(domain)
	}
	return best, nil
}
