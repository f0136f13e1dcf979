package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/lunixbochs/ghostrace/ghost/sys/num"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	"github.com/keelos/pengolin/arch/sysnum"
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/kernel/linux"
	"github.com/keelos/pengolin/models"
)

// sysdump prints syscall table coverage per architecture: which numbers
// the port maps to a name, and which names resolve to a handler.

type table struct {
	name    string
	nums    map[int]string
	flavors co.Kernel
}

func flavor(k co.Kernel) map[string]bool {
	// a nil task is fine for building the dispatch table
	co.Lookup(nil, k, "")
	out := make(map[string]bool)
	for name := range k.KeelKernel().Syscalls {
		out[name] = true
	}
	return out
}

func base() *linux.LinuxKernel {
	return &linux.LinuxKernel{KernelBase: &co.KernelBase{}}
}

func main() {
	missing := flag.Bool("missing", false, "list table entries with no handler")
	flag.Parse()

	config := (&models.Config{Color: true}).Init()
	config.LoadRC(models.RCDirs())
	color := config.Color && isatty.IsTerminal(os.Stdout.Fd())

	tables := []table{
		{"x86_64", num.Linux_x86_64, &linux.X8664Kernel{LinuxKernel: base()}},
		{"x86", num.Linux_x86, &linux.X86Kernel{LinuxKernel: base()}},
		{"arm64", sysnum.LinuxAsmGeneric, &linux.AsmGenericKernel{LinuxKernel: base()}},
		{"riscv64", sysnum.LinuxAsmGeneric, &linux.AsmGenericKernel{LinuxKernel: base()}},
	}
	for _, t := range tables {
		impl := flavor(t.flavors)
		var have, miss []string
		for _, name := range t.nums {
			if impl[name] {
				have = append(have, name)
			} else {
				miss = append(miss, name)
			}
		}
		title := t.name
		if color {
			title = ansi.Color(title, "green+b")
		}
		fmt.Printf("%s: %d syscalls mapped, %d handled\n", title, len(t.nums), len(have))
		if *missing {
			sort.Strings(miss)
			for _, name := range miss {
				fmt.Printf("  %s\n", name)
			}
		}
	}
}
