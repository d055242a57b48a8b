package device

import (
	"path/filepath"
	"regexp"
	"sort"

	"github.com/europasms/sender/log"
	"github.com/europasms/sender/model"
)

var ifSuffixRx = regexp.MustCompile(`^(.+)-if(\d+)(?:-port\d+)?$`)

type Registry interface {
	//Discover enumerates transport endpoints and returns them as channels in
	//deterministic order. preferred holds canonical (or raw) identifiers of
	//previously selected channels; within a multi-interface device the
	//preferred endpoint wins over the lowest interface index. Zero channels
	//is not an error, callers must handle the empty case.
	Discover(preferred map[string]bool) []model.Channel
}

func NewRegistry(patterns ...string) Registry {
	if len(patterns) == 0 {
		patterns = []string{"/dev/ttyUSB*", "/dev/serial/by-id/*"}
	}
	return &registry{patterns: patterns, resolve: filepath.EvalSymlinks}
}

type registry struct {
	patterns []string
	resolve  func(string) (string, error)
}

type endpoint struct {
	raw       string
	canonical string
	group     string
	ifIndex   int
	grouped   bool //group learned from an interface-suffixed name
}

func (r *registry) Discover(preferred map[string]bool) []model.Channel {
	endpoints := r.enumerate()

	//interface-suffixed names reveal which canonical devices belong to the
	//same physical modem; plain endpoints with a matching canonical join
	//that group instead of forming their own
	groupOf := make(map[string]string)
	indexOf := make(map[string]int)
	for _, e := range endpoints {
		if e.grouped {
			groupOf[e.canonical] = e.group
			indexOf[e.canonical] = e.ifIndex
		}
	}

	groups := make(map[string][]endpoint)
	for _, e := range endpoints {
		if !e.grouped {
			if g, ok := groupOf[e.canonical]; ok {
				e.group = g
				e.ifIndex = indexOf[e.canonical]
			}
		}
		groups[e.group] = append(groups[e.group], e)
	}

	var keys []string
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	//within a group: preferred endpoint, else lowest interface index;
	//across groups: dedupe by canonical identity so the same physical
	//device enumerated via two namespaces appears once
	seen := make(map[string]bool)
	var channels []model.Channel
	for _, k := range keys {
		e := pick(groups[k], preferred)
		if seen[e.canonical] {
			continue
		}
		seen[e.canonical] = true
		channels = append(channels, model.Channel{
			Raw:       e.raw,
			Canonical: e.canonical,
			Label:     filepath.Base(e.canonical),
			Status:    model.UNKNOWN,
			Ordinal:   len(channels),
		})
	}

	return channels
}

func (r *registry) enumerate() []endpoint {
	rawSeen := make(map[string]bool)
	var endpoints []endpoint
	for _, pattern := range r.patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			log.WarnIfErr("Bad device pattern "+pattern, err)
			continue
		}
		sort.Strings(matches)
		for _, raw := range matches {
			if rawSeen[raw] {
				continue
			}
			rawSeen[raw] = true

			canonical, err := r.resolve(raw)
			if err != nil {
				canonical = filepath.Clean(raw)
			}

			e := endpoint{raw: raw, canonical: canonical, group: canonical}
			if m := ifSuffixRx.FindStringSubmatch(filepath.Base(raw)); m != nil {
				e.group = m[1]
				e.ifIndex = atoiSafe(m[2])
				e.grouped = true
			}

			endpoints = append(endpoints, e)
		}
	}
	return endpoints
}

func pick(candidates []endpoint, preferred map[string]bool) endpoint {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ifIndex != candidates[j].ifIndex {
			return candidates[i].ifIndex < candidates[j].ifIndex
		}
		return candidates[i].raw < candidates[j].raw
	})
	for _, c := range candidates {
		if preferred[c.canonical] || preferred[c.raw] {
			return c
		}
	}
	return candidates[0]
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
