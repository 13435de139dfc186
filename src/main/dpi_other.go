//go:build !windows

package main

// enableDPIAwareness is a no-op outside Windows; X11 and Wayland report
// physical pixels through the capture library already.
func enableDPIAwareness() {}
