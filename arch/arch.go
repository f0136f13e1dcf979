// Package arch registers the supported instruction sets and their Linux
// personalities.
package arch

import (
	"github.com/pkg/errors"

	"github.com/keelos/pengolin/arch/arm64"
	"github.com/keelos/pengolin/arch/riscv64"
	"github.com/keelos/pengolin/arch/x86"
	"github.com/keelos/pengolin/arch/x86_64"
	"github.com/keelos/pengolin/models"
)

var archMap = map[string]*models.Arch{
	"arm64":   arm64.Arch,
	"riscv64": riscv64.Arch,
	"x86":     x86.Arch,
	"x86_64":  x86_64.Arch,
}

func GetArch(name, os string) (*models.Arch, *models.OS, error) {
	a, ok := archMap[name]
	if !ok {
		return nil, nil, errors.Errorf("arch '%s' not found", name)
	}
	o, ok := a.OS[os]
	if !ok {
		return nil, nil, errors.Errorf("os '%s' not found for arch '%s'", os, name)
	}
	return a, o, nil
}

func Names() []string {
	out := make([]string, 0, len(archMap))
	for name := range archMap {
		out = append(out, name)
	}
	return out
}
