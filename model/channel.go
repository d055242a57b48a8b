package model

import (
	"fmt"
	"path/filepath"
	"regexp"
)

const (
	//channel liveness statuses
	UNKNOWN string = "?"
	READY          = "OK"
	UNREADY        = "FAIL"
)

var sectionRx = regexp.MustCompile(`[^A-Za-z0-9_]+`)

//Channel is an addressable transport endpoint. Identity across rescans is
//the canonical (symlink-resolved) path, not the raw path: serial ports get
//renumbered, the underlying device does not.
type Channel struct {
	Raw       string //path as enumerated, e.g. /dev/serial/by-id/usb-...-if00
	Canonical string //symlink-resolved path, e.g. /dev/ttyUSB0
	Label     string //short display name
	Status    string
	Number    string //own phone number if discovered, empty otherwise
	Ordinal   int    //position within the discovery scan
}

//Section returns the transport-facing session name for the channel,
//built from the sanitized basename and the scan ordinal.
func (c Channel) Section() string {
	name := sectionRx.ReplaceAllString(filepath.Base(c.Raw), "_")
	if name == "" || name == "_" {
		name = "device"
	}
	return fmt.Sprintf("%s_%d", name, c.Ordinal)
}
