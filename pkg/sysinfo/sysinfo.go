// Package sysinfo captures the specifications of the machine a suite runs
// on so results from different hosts can be told apart.
package sysinfo

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

// Info describes the host.
type Info struct {
	Hostname           string  `json:"hostname" mapstructure:"hostname"`
	OS                 string  `json:"os" mapstructure:"os"`
	Platform           string  `json:"platform" mapstructure:"platform"`
	PlatformVersion    string  `json:"platformVersion" mapstructure:"platformVersion"`
	KernelVersion      string  `json:"kernelVersion" mapstructure:"kernelVersion"`
	Arch               string  `json:"arch" mapstructure:"arch"`
	Virtualization     string  `json:"virtualization,omitempty" mapstructure:"virtualization"`
	VirtualizationRole string  `json:"virtualizationRole,omitempty" mapstructure:"virtualizationRole"`
	CPUVendor          string  `json:"cpuVendor" mapstructure:"cpuVendor"`
	CPUModel           string  `json:"cpuModel" mapstructure:"cpuModel"`
	CPUCores           int     `json:"cpuCores" mapstructure:"cpuCores"`
	CPUMhz             float64 `json:"cpuMhz" mapstructure:"cpuMhz"`
	CPUCacheKB         int     `json:"cpuCacheKb" mapstructure:"cpuCacheKb"`
	MemoryTotalBytes   uint64  `json:"memoryTotalBytes" mapstructure:"memoryTotalBytes"`
	// Memory is MemoryTotalBytes in human-readable form.
	Memory    string `json:"memory" mapstructure:"memory"`
	GoVersion string `json:"goVersion" mapstructure:"goVersion"`
	Renderer  string `json:"renderer,omitempty" mapstructure:"renderer"`
}

// Collect gathers host information. Sources that fail are logged and left
// empty; Collect itself never fails.
func Collect(ctx context.Context, log logrus.FieldLogger) *Info {
	log = log.WithField("component", "sysinfo")

	info := &Info{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
	}

	if hi, err := host.InfoWithContext(ctx); err != nil {
		log.WithError(err).Debug("Failed to read host info")

		info.Hostname, _ = os.Hostname()
	} else {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform
		info.PlatformVersion = hi.PlatformVersion
		info.KernelVersion = hi.KernelVersion
		info.Virtualization = hi.VirtualizationSystem
		info.VirtualizationRole = hi.VirtualizationRole

		if hi.KernelArch != "" {
			info.Arch = hi.KernelArch
		}
	}

	if cpus, err := cpu.InfoWithContext(ctx); err != nil || len(cpus) == 0 {
		log.WithError(err).Debug("Failed to read cpu info")
	} else {
		info.CPUVendor = cpus[0].VendorID
		info.CPUModel = cpus[0].ModelName
		info.CPUMhz = cpus[0].Mhz
		info.CPUCacheKB = int(cpus[0].CacheSize)
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err != nil {
		log.WithError(err).Debug("Failed to count cpus")

		info.CPUCores = runtime.NumCPU()
	} else {
		info.CPUCores = cores
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.WithError(err).Debug("Failed to read memory info")
	} else {
		info.MemoryTotalBytes = vm.Total
		info.Memory = units.BytesSize(float64(vm.Total))
	}

	return info
}

// Map flattens i into the free-form map stored on run records.
func (i *Info) Map() map[string]any {
	m := map[string]any{
		"hostname":         i.Hostname,
		"os":               i.OS,
		"platform":         i.Platform,
		"platformVersion":  i.PlatformVersion,
		"kernelVersion":    i.KernelVersion,
		"arch":             i.Arch,
		"cpuVendor":        i.CPUVendor,
		"cpuModel":         i.CPUModel,
		"cpuCores":         i.CPUCores,
		"cpuMhz":           i.CPUMhz,
		"cpuCacheKb":       i.CPUCacheKB,
		"memoryTotalBytes": i.MemoryTotalBytes,
		"memory":           i.Memory,
		"goVersion":        i.GoVersion,
	}

	if i.Virtualization != "" {
		m["virtualization"] = i.Virtualization
		m["virtualizationRole"] = i.VirtualizationRole
	}

	if i.Renderer != "" {
		m["renderer"] = i.Renderer
	}

	return m
}

// String returns a one-line description for logs.
func (i *Info) String() string {
	return fmt.Sprintf("%s (%s/%s, %d cores, %s)", i.Hostname, i.OS, i.Arch, i.CPUCores, i.Memory)
}
