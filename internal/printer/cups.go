package printer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner runs an external command, feeding stdin when non-nil, and
// returns its standard output.
type CommandRunner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// CUPSSpooler talks to the host print system through lpstat and lp.
type CUPSSpooler struct {
	run CommandRunner
}

func NewCUPSSpooler(run CommandRunner) *CUPSSpooler {
	if run == nil {
		run = execRunner
	}
	return &CUPSSpooler{run: run}
}

func (c *CUPSSpooler) Printers(ctx context.Context) ([]Info, error) {
	out, err := c.run(ctx, nil, "lpstat", "-p")
	if err != nil {
		// lpstat exits non-zero when no destinations exist.
		if len(bytes.TrimSpace(out)) == 0 {
			return nil, nil
		}
		return nil, err
	}
	printers := ParseLpstatPrinters(out)

	def, err := c.Default(ctx)
	if err == nil && def != "" {
		for i := range printers {
			printers[i].Default = printers[i].Name == def
		}
	}
	return printers, nil
}

func (c *CUPSSpooler) Default(ctx context.Context) (string, error) {
	out, err := c.run(ctx, nil, "lpstat", "-d")
	if err != nil {
		return "", err
	}
	return ParseLpstatDefault(out), nil
}

func (c *CUPSSpooler) Write(ctx context.Context, name string, data []byte) error {
	if _, err := c.run(ctx, data, "lp", "-d", name, "-o", "raw"); err != nil {
		return err
	}
	return nil
}

// ParseLpstatPrinters reads `lpstat -p` output:
//
//	printer Kitchen_TM is idle.  enabled since ...
//	printer Bar now printing Bar-12.  enabled since ...
//	printer Office disabled since ... -
func ParseLpstatPrinters(out []byte) []Info {
	var printers []Info
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || fields[0] != "printer" {
			continue
		}
		rest := strings.ToLower(strings.Join(fields[2:], " "))

		status := StatusUnknown
		switch {
		case strings.HasPrefix(rest, "is idle"):
			status = StatusIdle
		case strings.HasPrefix(rest, "now printing"):
			status = StatusPrinting
		case strings.HasPrefix(rest, "disabled"):
			status = StatusDisabled
		case strings.Contains(rest, "unavailable"), strings.Contains(rest, "not responding"):
			status = StatusUnavailable
		case strings.Contains(rest, "disconnected"):
			status = StatusDisconnected
		}
		printers = append(printers, Info{Name: fields[1], Status: status, Source: "cups"})
	}
	return printers
}

// ParseLpstatDefault reads `lpstat -d` output. It returns "" when there is no
// system default destination.
func ParseLpstatDefault(out []byte) string {
	line := strings.TrimSpace(string(out))
	if i := strings.LastIndex(line, ":"); i >= 0 && strings.Contains(line, "default destination") {
		return strings.TrimSpace(line[i+1:])
	}
	return ""
}
