package tools

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const gib = 1 << 30

// SystemInfo 汇总本机的操作系统、CPU、内存与磁盘信息，供提示词使用
// SystemInfo summarizes the local OS, CPU, memory and disk for use in prompts
func SystemInfo(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	osInfo := "Unknown OS: " + runtime.GOOS
	additional := "No additional information available"
	if info, err := host.InfoWithContext(ctx); err == nil {
		switch info.OS {
		case "linux":
			osInfo = "Linux " + info.KernelVersion
			additional = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
			if additional == "" {
				additional = "Distribution information unavailable"
			}
		case "darwin":
			osInfo = "macOS " + info.PlatformVersion
			additional = info.KernelVersion
		case "windows":
			osInfo = "Windows " + info.PlatformVersion
			additional = info.Platform
		default:
			osInfo = fmt.Sprintf("%s %s", info.OS, info.PlatformVersion)
		}
	}

	lines := []string{osInfo, additional}

	cpuModel := runtime.GOARCH
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		cpuModel = infos[0].ModelName
	}
	lines = append(lines, "CPU: "+cpuModel)

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("RAM: %dGB total, %.1f%% used", vm.Total/gib, vm.UsedPercent))
	}
	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		lines = append(lines, fmt.Sprintf("Disk: %dGB total, %.1f%% used", usage.Total/gib, usage.UsedPercent))
	}
	return strings.Join(lines, "\n")
}
