package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelSection(t *testing.T) {
	ch := Channel{Raw: "/dev/ttyUSB0", Ordinal: 2}
	require.Equal(t, "ttyUSB0_2", ch.Section())

	ch = Channel{Raw: "/dev/serial/by-id/usb-HUAWEI-if00-port0", Ordinal: 0}
	require.Equal(t, "usb_HUAWEI_if00_port0_0", ch.Section())

	ch = Channel{Raw: "///", Ordinal: 1}
	require.Equal(t, "device_1", ch.Section())
}
