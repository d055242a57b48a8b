package modem

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/europasms/sender/log"
	"github.com/europasms/sender/model"
)

//ReleasePort kills whatever process holds the device open so a wedged
//session cannot block the next batch. fuser exits nonzero when nothing
//holds the port.
func (c *gammuClient) ReleasePort(ch model.Channel) (bool, string) {
	out, errOut, err := c.runner.Run(c.probeTimeout, "fuser", "-k", ch.Canonical)
	response := out
	if response == "" {
		response = errOut
	}
	return err == nil, strings.TrimSpace(response)
}

//RunRawCommands writes AT commands straight to the device and collects
//whatever the modem answers. Used for activation and keepalive, never for
//message dispatch.
func (c *gammuClient) RunRawCommands(ch model.Channel, commands []string, baud int) (bool, string) {
	if baud > 0 {
		_, errOut, err := c.runner.Run(c.probeTimeout, "stty", "-F", ch.Canonical, strconv.Itoa(baud), "raw", "-echo")
		if err != nil {
			log.Warn.Println("Error setting baud rate", errOut, err)
			return false, errOut
		}
	}

	f, err := os.OpenFile(ch.Canonical, os.O_RDWR, 0)
	if err != nil {
		return false, err.Error()
	}
	defer f.Close()

	//regular files (tests) do not support deadlines, ttys do
	deadlineOk := f.SetDeadline(time.Now().Add(2*time.Second)) == nil

	var response strings.Builder
	for _, cmd := range commands {
		if _, err := f.WriteString(cmd + "\r"); err != nil {
			return false, response.String()
		}

		if !deadlineOk {
			continue
		}
		buf := make([]byte, 4096)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				response.Write(buf[:n])
			}
			if err != nil {
				break
			}
			if strings.Contains(response.String(), "OK") || strings.Contains(response.String(), "ERROR") {
				break
			}
		}
	}

	return true, strings.TrimSpace(response.String())
}
