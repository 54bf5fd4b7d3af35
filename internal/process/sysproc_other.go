//go:build !linux

package process

import "os/exec"

func configureSysProcAttr(_ *exec.Cmd) {}
