package delivery

import "runtime"

// Permissions reports which optional OS capabilities are usable.
type Permissions struct {
	keys KeyInjector
}

func NewPermissions(keys KeyInjector) *Permissions {
	return &Permissions{keys: keys}
}

// Accessibility reports whether a suppressing system key tap can be installed.
func (p *Permissions) Accessibility() bool {
	return runtime.GOOS == "windows"
}

func (p *Permissions) InputInjection() bool {
	return p.keys != nil && p.keys.Available()
}
