package modem

import (
	"bytes"
	"context"
	"io/ioutil"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/europasms/sender/log"
	"github.com/europasms/sender/model"
	"golang.org/x/time/rate"
)

var numberRx = regexp.MustCompile(`[^\d+]`)

type RateLimiter interface {
	// Wait blocks until the limiter permits an event to happen.
	Wait(ctx context.Context) error
}

//Runner executes an external command and returns its trimmed output.
type Runner interface {
	Run(timeout time.Duration, name string, args ...string) (stdout, stderr string, err error)
}

type execRunner struct {
}

func (execRunner) Run(timeout time.Duration, name string, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err := cmd.Run()

	return strings.TrimSpace(out.String()), strings.TrimSpace(errOut.String()), err
}

type Client interface {
	//WriteConfig rewrites the channel-to-session mapping file used by the
	//transport. Must not be called while a send is in flight.
	WriteConfig(channels []model.Channel) error
	//IsReady probes channel liveness
	IsReady(ch model.Channel) bool
	//OwnNumber returns the channel's own phone number, best effort
	OwnNumber(ch model.Channel) string
	//Send transmits one message over the named session
	Send(section, number, text string, flash bool) (ok bool, stdout, stderr string)
	//RunRawCommands feeds raw AT commands to the device, outside the
	//dispatch path proper
	RunRawCommands(ch model.Channel, commands []string, baud int) (bool, string)
	//ReleasePort kills processes holding the device open
	ReleasePort(ch model.Channel) (bool, string)
}

func NewClient(rcPath, connection string, sendsPerSec int) (Client, error) {
	//resolve the transport binary once at construction instead of keeping
	//a process-wide cache
	bin, err := exec.LookPath("gammu")
	if err != nil {
		return nil, err
	}
	if sendsPerSec <= 0 {
		sendsPerSec = 1
	}
	return &gammuClient{
		bin:          bin,
		rcPath:       rcPath,
		checkPath:    rcPath + "_check",
		connection:   connection,
		probeTimeout: 3 * time.Second,
		sendTimeout:  60 * time.Second,
		rateLimiter:  rate.NewLimiter(rate.Limit(sendsPerSec), 1),
		runner:       execRunner{},
	}, nil
}

type gammuClient struct {
	bin        string
	rcPath     string
	checkPath  string
	connection string

	probeTimeout time.Duration
	sendTimeout  time.Duration

	rateLimiter RateLimiter
	runner      Runner
}

func (c *gammuClient) WriteConfig(channels []model.Channel) error {
	var b strings.Builder
	for _, ch := range channels {
		b.WriteString("[" + ch.Section() + "]\n")
		b.WriteString("device = " + ch.Canonical + "\n")
		b.WriteString("connection = " + c.connection + "\n\n")
	}
	return ioutil.WriteFile(c.rcPath, []byte(b.String()), 0644)
}

//writeCheckConfig writes a one-channel config for out-of-band probes so
//probing never touches the config of an in-flight batch.
func (c *gammuClient) writeCheckConfig(ch model.Channel) (string, string, error) {
	section := ch.Section()
	content := "[" + section + "]\n" +
		"device = " + ch.Canonical + "\n" +
		"connection = " + c.connection + "\n"
	err := ioutil.WriteFile(c.checkPath, []byte(content), 0644)
	return c.checkPath, section, err
}

func (c *gammuClient) IsReady(ch model.Channel) bool {
	cfg, section, err := c.writeCheckConfig(ch)
	if err != nil {
		log.WarnIfErr("Error writing check config", err)
		return false
	}

	_, _, err = c.runner.Run(c.probeTimeout, c.bin, "-c", cfg, "-s", section, "identify")
	return err == nil
}

func (c *gammuClient) OwnNumber(ch model.Channel) string {
	cfg, section, err := c.writeCheckConfig(ch)
	if err != nil {
		log.WarnIfErr("Error writing check config", err)
		return ""
	}

	out, _, err := c.runner.Run(c.probeTimeout, c.bin, "-c", cfg, "-s", section, "getmemory", "ON", "1", "20", "-nonempty")
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(strings.ToLower(line), "number") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		val := numberRx.ReplaceAllString(strings.TrimSpace(parts[1]), "")
		if strings.Trim(val, "+") != "" {
			return val
		}
	}

	return ""
}

func (c *gammuClient) Send(section, number, text string, flash bool) (bool, string, string) {
	//impose the sends-per-second cap
	_ = c.rateLimiter.Wait(context.Background())

	args := []string{"-c", c.rcPath, "-s", section, "sendsms", "TEXT", number, "-textutf8", text}
	if flash {
		args = append(args, "-flash")
	}

	out, errOut, err := c.runner.Run(c.sendTimeout, c.bin, args...)
	if err != nil && errOut == "" {
		errOut = err.Error()
	}

	return err == nil, out, errOut
}
