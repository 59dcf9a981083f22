package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	// UnitName is the systemd unit routesync installs as.
	UnitName = "routesync"
	// UnitPath is where the unit file is written.
	UnitPath = "/etc/systemd/system/routesync.service"
)

// unitTemplate takes the executable and config paths.
const unitTemplate = `[Unit]
Description=Kernel routing table sync daemon
After=network.target redis-server.service
Wants=network.target

[Service]
Type=simple
ExecStart=%s run --config %s
Restart=always
RestartSec=5
User=root
Group=root
AmbientCapabilities=CAP_NET_ADMIN
LimitNOFILE=65536
StandardOutput=journal
StandardError=journal

[Install]
WantedBy=multi-user.target
`

// Runner executes a systemctl command and returns its standard output.
type Runner func(args ...string) (string, error)

func systemctl(args ...string) (string, error) {
	out, err := exec.Command("systemctl", args...).Output()
	return string(out), err
}

// SystemdService is the systemd unit for the daemon.
type SystemdService struct {
	execPath   string
	configPath string
	unitPath   string
	run        Runner
}

var _ Service = (*SystemdService)(nil)

func NewSystemdService(execPath, configPath string) *SystemdService {
	return &SystemdService{
		execPath:   execPath,
		configPath: configPath,
		unitPath:   UnitPath,
		run:        systemctl,
	}
}

// Unit renders the unit file.
func (s *SystemdService) Unit() string {
	return fmt.Sprintf(unitTemplate, s.execPath, s.configPath)
}

func (s *SystemdService) Install() error {
	if s.execPath == "" || s.configPath == "" {
		return errors.New("executable and config paths are required")
	}
	if err := os.WriteFile(s.unitPath, []byte(s.Unit()), 0644); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}
	if _, err := s.run("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if _, err := s.run("enable", UnitName); err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}
	return nil
}

// Uninstall stops and disables the unit before removing it. Stop and
// disable failures are ignored; the unit may never have been started.
func (s *SystemdService) Uninstall() error {
	s.run("disable", UnitName)
	s.run("stop", UnitName)
	if err := os.Remove(s.unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove service file: %w", err)
	}
	if _, err := s.run("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	return nil
}

func (s *SystemdService) Start() error {
	_, err := s.run("start", UnitName)
	return err
}

func (s *SystemdService) Stop() error {
	_, err := s.run("stop", UnitName)
	return err
}

// Status returns the unit's active state. systemctl exits non-zero for
// every state but active, so its error only matters without output.
func (s *SystemdService) Status() (string, error) {
	out, err := s.run("is-active", UnitName)
	status := strings.TrimSpace(out)
	if status == "" {
		if err != nil {
			return "unknown", err
		}
		return "unknown", nil
	}
	return status, nil
}

func (s *SystemdService) IsInstalled() bool {
	_, err := os.Stat(s.unitPath)
	return err == nil
}
