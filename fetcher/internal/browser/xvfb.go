package browser

import (
	"fmt"
	"os/exec"
	"time"
)

// ensureXvfb starts the shared virtual display once and returns its name.
func (p *Pool) ensureXvfb() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	display := p.cfg.XvfbDisplay
	if p.xvfb != nil {
		return display, nil
	}

	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start xvfb: %w", err)
	}
	p.xvfb = cmd

	// Give Xvfb a moment to initialise.
	time.Sleep(500 * time.Millisecond)

	p.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return display, nil
}

// stopXvfb kills the Xvfb process if running. Caller holds p.mu.
func (p *Pool) stopXvfb() {
	if p.xvfb == nil {
		return
	}
	if p.xvfb.Process != nil {
		p.xvfb.Process.Kill()
		p.xvfb.Wait()
	}
	p.cfg.Logger.Info("browser: xvfb stopped")
	p.xvfb = nil
}
