//go:build windows

package main

import (
	"golang.org/x/sys/windows"

	"select2speak/src/logutil"
)

// enableDPIAwareness asks for per-monitor DPI awareness so the captured frame
// and the fullscreen overlay use the same pixel grid.
func enableDPIAwareness() {
	log := logutil.Component("main")
	const processPerMonitorDPIAware = 2

	shcore := windows.NewLazySystemDLL("Shcore.dll")
	setProcessDpiAwareness := shcore.NewProc("SetProcessDpiAwareness")
	if err := setProcessDpiAwareness.Find(); err == nil {
		ret, _, _ := setProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware))
		if ret == 0 {
			log.Debug().Msg("per-monitor DPI awareness set")
		} else {
			log.Debug().Uint64("hresult", uint64(ret)).Msg("per-monitor DPI awareness refused")
		}
		return
	}

	user32 := windows.NewLazySystemDLL("user32.dll")
	setProcessDPIAware := user32.NewProc("SetProcessDPIAware")
	if err := setProcessDPIAware.Find(); err != nil {
		log.Debug().Msg("no DPI awareness API available")
		return
	}
	if ret, _, _ := setProcessDPIAware.Call(); ret == 0 {
		log.Debug().Msg("system DPI awareness refused")
	}
}
