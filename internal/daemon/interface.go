// Package daemon installs routesync as a system service.
package daemon

// Service manages the installed service unit.
type Service interface {
	Install() error
	Uninstall() error
	Start() error
	Stop() error
	Status() (string, error)
	IsInstalled() bool
}
