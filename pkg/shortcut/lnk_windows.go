//go:build windows

package shortcut

import (
	"fmt"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

func createLink(path string, s Shortcut) error {
	if err := ole.CoInitialize(0); err != nil {
		return fmt.Errorf("failed to initialize COM: %w", err)
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return fmt.Errorf("failed to create WScript.Shell: %w", err)
	}
	defer unknown.Release()

	wshell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("failed to query shell interface: %w", err)
	}
	defer wshell.Release()

	link, err := oleutil.CallMethod(wshell, "CreateShortcut", path)
	if err != nil {
		return fmt.Errorf("failed to create shortcut: %w", err)
	}
	disp := link.ToIDispatch()
	defer disp.Release()

	props := map[string]string{
		"TargetPath":       s.Executable,
		"WorkingDirectory": s.WorkingDir,
		"Description":      "Launch " + s.Name,
	}
	if s.Icon != "" {
		props["IconLocation"] = s.Icon
	}
	for name, value := range props {
		if _, err := oleutil.PutProperty(disp, name, value); err != nil {
			return fmt.Errorf("failed to set shortcut %s: %w", name, err)
		}
	}
	if _, err := oleutil.CallMethod(disp, "Save"); err != nil {
		return fmt.Errorf("failed to save shortcut: %w", err)
	}
	return nil
}
